package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/drpaneas/vitisexpert/internal/advice"
	"github.com/drpaneas/vitisexpert/internal/chart"
	"github.com/drpaneas/vitisexpert/internal/imageedit"
	"github.com/drpaneas/vitisexpert/internal/journal"
	"github.com/drpaneas/vitisexpert/internal/weather"
)

const (
	msgMethodNotAllowed = "Method not allowed"
	msgGeneric          = "Ein Fehler ist aufgetreten."
	msgImageEdit        = "Fehler bei der Bildbearbeitung."
	msgImagesDisabled   = "Bildbearbeitung ist nicht konfiguriert."
	msgHistoryDisabled  = "Verlauf ist nicht aktiviert."
	msgUnknownEntry     = "Eintrag nicht gefunden."
	msgUnknownStage     = "Unbekanntes BBCH-Stadium."
	msgBadRequest       = "Ungültige Anfrage."
	msgTooLarge         = "Anfrage ist zu groß."
	msgParse            = "Fehler beim Verarbeiten der Empfehlung."
	msgWeatherFetch     = "Fehler beim Abrufen der Wetterdaten."
)

type errorResponse struct {
	Error string `json:"error"`
}

// ImageEditRequest is the body of POST /api/image-edit.
type ImageEditRequest struct {
	Image  string `json:"image" jsonschema:"description=Foto als data:image/...;base64 URL"`
	Prompt string `json:"prompt" jsonschema:"description=Bearbeitungsanweisung"`
}

// ImageEditResponse carries the edited photo as a data URL.
type ImageEditResponse struct {
	Image string `json:"image"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("writing response failed", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// decodeJSON reads a JSON body into v and reports the status to use on failure.
func decodeJSON(r *http.Request, v any) (int, error) {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return http.StatusRequestEntityTooLarge, err
		}
		return http.StatusBadRequest, fmt.Errorf("decoding request: %w", err)
	}
	return 0, nil
}

func (s *Server) handleRecommend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, msgMethodNotAllowed)
		return
	}

	var in advice.Input
	if status, err := decodeJSON(r, &in); err != nil {
		slog.Debug("bad recommend request", "err", err)
		msg := msgBadRequest
		if status == http.StatusRequestEntityTooLarge {
			msg = msgTooLarge
		}
		writeError(w, status, msg)
		return
	}

	rec, err := s.opts.Advisor.Advise(r.Context(), in)
	if err != nil {
		status, msg := adviceErrorStatus(err)
		slog.Warn("recommendation failed", "status", status, "err", err)
		writeError(w, status, msg)
		return
	}
	s.record(r.Context(), in, rec)
	writeJSON(w, http.StatusOK, rec)
}

// adviceErrorStatus maps an advice failure to a status code and a message
// that is safe to show to the user.
func adviceErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, advice.ErrInvalidInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, advice.ErrParse):
		return http.StatusBadGateway, msgParse
	default:
		return http.StatusBadGateway, msgGeneric
	}
}

func (s *Server) handleWeather(w http.ResponseWriter, r *http.Request) {
	lat, latErr := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lon, lonErr := strconv.ParseFloat(r.URL.Query().Get("lon"), 64)
	if latErr != nil || lonErr != nil {
		writeError(w, http.StatusBadRequest, weather.ErrInvalidCoordinates.Error())
		return
	}

	aw, err := s.opts.Weather.ForPruning(r.Context(), lat, lon)
	switch {
	case errors.Is(err, weather.ErrInvalidCoordinates):
		writeError(w, http.StatusBadRequest, weather.ErrInvalidCoordinates.Error())
	case err != nil:
		writeError(w, http.StatusBadGateway, msgWeatherFetch)
	default:
		writeJSON(w, http.StatusOK, aw)
	}
}

func (s *Server) handleImageEdit(w http.ResponseWriter, r *http.Request) {
	if s.opts.Images == nil {
		writeError(w, http.StatusServiceUnavailable, msgImagesDisabled)
		return
	}

	var req ImageEditRequest
	if status, err := decodeJSON(r, &req); err != nil {
		msg := msgBadRequest
		if status == http.StatusRequestEntityTooLarge {
			msg = msgTooLarge
		}
		writeError(w, status, msg)
		return
	}

	out, err := s.opts.Images.Edit(r.Context(), req.Image, req.Prompt)
	if err != nil {
		status, msg := imageErrorStatus(err)
		slog.Warn("image edit failed", "status", status, "err", err)
		writeError(w, status, msg)
		return
	}
	writeJSON(w, http.StatusOK, ImageEditResponse{Image: out})
}

func imageErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, imageedit.ErrInvalidDataURL):
		return http.StatusBadRequest, imageedit.ErrInvalidDataURL.Error()
	case errors.Is(err, imageedit.ErrEmptyPrompt):
		return http.StatusBadRequest, imageedit.ErrEmptyPrompt.Error()
	case errors.Is(err, imageedit.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, imageedit.ErrTooLarge.Error()
	case errors.Is(err, imageedit.ErrNoImage):
		return http.StatusUnprocessableEntity, imageedit.ErrNoImage.Error()
	default:
		return http.StatusBadGateway, msgImageEdit
	}
}

func (s *Server) handleStages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.opts.Stages.Catalog().Stages())
}

func (s *Server) handleStage(w http.ResponseWriter, r *http.Request) {
	stage, ok := s.opts.Stages.Catalog().Lookup(r.PathValue("bbch"))
	if !ok {
		writeError(w, http.StatusNotFound, msgUnknownStage)
		return
	}
	writeJSON(w, http.StatusOK, stage)
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := chart.Render(&buf, s.opts.Stages.Catalog().Chart()); err != nil {
		slog.Error("rendering chart failed", "err", err)
		writeError(w, http.StatusInternalServerError, msgGeneric)
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.opts.Journal == nil {
		writeError(w, http.StatusNotFound, msgHistoryDisabled)
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, msgBadRequest)
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	entries, err := s.opts.Journal.List(r.Context(), limit)
	if err != nil {
		slog.Error("listing history failed", "err", err)
		writeError(w, http.StatusInternalServerError, msgGeneric)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleHistoryEntry(w http.ResponseWriter, r *http.Request) {
	if s.opts.Journal == nil {
		writeError(w, http.StatusNotFound, msgHistoryDisabled)
		return
	}

	e, err := s.opts.Journal.Get(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, journal.ErrNotFound):
		writeError(w, http.StatusNotFound, msgUnknownEntry)
	case err != nil:
		slog.Error("loading history entry failed", "id", r.PathValue("id"), "err", err)
		writeError(w, http.StatusInternalServerError, msgGeneric)
	default:
		writeJSON(w, http.StatusOK, e)
	}
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APISchema())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
