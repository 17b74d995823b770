package server

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/drpaneas/vitisexpert/internal/advice"
	"github.com/drpaneas/vitisexpert/internal/chart"
	"github.com/drpaneas/vitisexpert/internal/imageedit"
	"github.com/drpaneas/vitisexpert/internal/phenology"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	tabPruning = "pruning"
	tabGuide   = "guide"
	tabEditor  = "editor"
)

var pageFiles = map[string]string{
	tabPruning: "templates/pruning.html",
	tabGuide:   "templates/guide.html",
	tabEditor:  "templates/editor.html",
}

var templateFuncs = template.FuncMap{
	"verdictClass": verdictClass,
	"dict":         dict,
	"has":          slices.Contains[[]string],
}

// dict builds a map from alternating keys and values so templates can pass
// several values to a nested template.
func dict(kv ...any) (map[string]any, error) {
	if len(kv)%2 != 0 {
		return nil, fmt.Errorf("dict: odd number of arguments")
	}
	m := make(map[string]any, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			return nil, fmt.Errorf("dict: key %v is not a string", kv[i])
		}
		m[k] = kv[i+1]
	}
	return m, nil
}

// verdictClass picks the colour of the verdict banner.
func verdictClass(v advice.Verdict) string {
	s := strings.ToLower(string(v))
	switch {
	case strings.Contains(s, "jetzt"):
		return "verdict verdict-green"
	case strings.Contains(s, "warten"):
		return "verdict verdict-amber"
	default:
		return "verdict verdict-blue"
	}
}

func parsePages() (map[string]*template.Template, error) {
	pages := make(map[string]*template.Template, len(pageFiles))
	for name, file := range pageFiles {
		t, err := template.New("layout.html").Funcs(templateFuncs).
			ParseFS(templateFS, "templates/layout.html", file)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", file, err)
		}
		pages[name] = t
	}
	return pages, nil
}

type formOptions struct {
	TrainingSystems []string
	Phenology       []string
	TempTrends      []string
	FrostRisks      []string
	Goals           []string
}

type pageData struct {
	Active string
	Year   int

	Input   advice.Input
	Options formOptions
	Result  *advice.Recommendation
	Error   string

	Stages         []phenology.Stage
	Chart          chart.Layout
	Windows        []phenology.Window
	DelayNoteTitle string
	DelayNote      string

	Suggestions   []string
	ImagesEnabled bool
}

func (s *Server) newPage(active string) pageData {
	return pageData{
		Active: active,
		Year:   time.Now().Year(),
	}
}

func (s *Server) render(w http.ResponseWriter, status int, name string, data pageData) {
	var buf bytes.Buffer
	if err := s.pages[name].ExecuteTemplate(&buf, "layout", data); err != nil {
		slog.Error("rendering page failed", "page", name, "err", err)
		http.Error(w, msgGeneric, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) pruningPage(in advice.Input) pageData {
	data := s.newPage(tabPruning)
	data.Input = in
	data.Options = formOptions{
		TrainingSystems: advice.TrainingSystems,
		Phenology:       advice.PhenologyOptions,
		TempTrends:      advice.TempTrends,
		FrostRisks:      advice.FrostRisks,
		Goals:           advice.Goals,
	}
	return data
}

func (s *Server) handlePruningPage(w http.ResponseWriter, r *http.Request) {
	s.render(w, http.StatusOK, tabPruning, s.pruningPage(advice.DefaultInput()))
}

// handleAdviceForm serves browsers without JavaScript: the form posts here
// and the result is rendered below the filled-in form.
func (s *Server) handleAdviceForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		data := s.pruningPage(advice.DefaultInput())
		data.Error = msgBadRequest
		s.render(w, http.StatusBadRequest, tabPruning, data)
		return
	}
	in := inputFromForm(r)
	data := s.pruningPage(in)

	rec, err := s.opts.Advisor.Advise(r.Context(), in)
	if err != nil {
		status, msg := adviceErrorStatus(err)
		slog.Warn("form recommendation failed", "status", status, "err", err)
		data.Error = msg
		if errors.Is(err, advice.ErrInvalidInput) {
			data.Error = "Bitte alle Pflichtfelder ausfüllen."
		}
		s.render(w, status, tabPruning, data)
		return
	}
	s.record(r.Context(), in, rec)
	data.Result = rec
	s.render(w, http.StatusOK, tabPruning, data)
}

func inputFromForm(r *http.Request) advice.Input {
	get := func(k string) string { return strings.TrimSpace(r.PostFormValue(k)) }
	return advice.Input{
		Variety:        get("variety"),
		Region:         get("region"),
		Altitude:       get("altitude"),
		TrainingSystem: get("trainingSystem"),
		Phenology:      get("phenology"),
		TempTrend:      get("tempTrend"),
		FrostRisk:      get("frostRisk"),
		Goal:           get("goal"),
		Precipitation:  get("precipitation"),
		WindSpeed:      get("windSpeed"),
	}
}

func (s *Server) handleGuidePage(w http.ResponseWriter, r *http.Request) {
	cat := s.opts.Stages.Catalog()
	data := s.newPage(tabGuide)
	data.Stages = cat.Stages()
	data.Chart = chart.NewLayout(cat.Chart())
	data.Windows = phenology.Windows
	data.DelayNoteTitle = phenology.DelayNoteTitle
	data.DelayNote = phenology.DelayNote
	s.render(w, http.StatusOK, tabGuide, data)
}

func (s *Server) handleEditorPage(w http.ResponseWriter, r *http.Request) {
	data := s.newPage(tabEditor)
	data.Suggestions = imageedit.Suggestions
	data.ImagesEnabled = s.opts.Images != nil
	s.render(w, http.StatusOK, tabEditor, data)
}
