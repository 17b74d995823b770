// Package server exposes the pruning assistant, the stage guide and the
// photo editor over HTTP, both as server-rendered pages and as a JSON API.
package server

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/drpaneas/vitisexpert/internal/advice"
	"github.com/drpaneas/vitisexpert/internal/imageedit"
	"github.com/drpaneas/vitisexpert/internal/journal"
	"github.com/drpaneas/vitisexpert/internal/phenology"
	"github.com/drpaneas/vitisexpert/internal/weather"
)

const (
	// Room for a base64 photo at the image limit plus the JSON around it.
	maxBodyBytes      = imageedit.MaxImageBytes*4/3 + 1<<20
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
	maxHistoryLimit   = 100
)

// Advisor produces pruning recommendations.
type Advisor interface {
	Advise(ctx context.Context, in advice.Input) (*advice.Recommendation, error)
}

// WeatherService derives the weather fields for a location.
type WeatherService interface {
	ForPruning(ctx context.Context, lat, lon float64) (*weather.AutoWeather, error)
}

// ImageEditor edits data URL photos.
type ImageEditor interface {
	Edit(ctx context.Context, dataURL, instruction string) (string, error)
}

// Journal records, lists and fetches past recommendations.
type Journal interface {
	Record(ctx context.Context, e journal.Entry) (journal.Entry, error)
	List(ctx context.Context, limit int) ([]journal.Entry, error)
	Get(ctx context.Context, id string) (journal.Entry, error)
}

// Options wires the server's collaborators. Images and Journal may be nil,
// which disables photo editing and history respectively.
type Options struct {
	Advisor  Advisor
	Weather  WeatherService
	Images   ImageEditor
	Journal  Journal
	Stages   *phenology.Store
	Provider string
	Model    string
}

// Server serves the web app.
type Server struct {
	opts    Options
	pages   map[string]*template.Template
	handler http.Handler
}

// New validates opts, parses the page templates and builds the routes.
func New(opts Options) (*Server, error) {
	if opts.Advisor == nil {
		return nil, fmt.Errorf("server: advisor is required")
	}
	if opts.Weather == nil {
		return nil, fmt.Errorf("server: weather service is required")
	}
	if opts.Stages == nil {
		opts.Stages = phenology.NewStore(phenology.Default())
	}

	pages, err := parsePages()
	if err != nil {
		return nil, err
	}
	s := &Server{opts: opts, pages: pages}
	s.handler = s.routes()
	return s, nil
}

// Handler returns the root handler including middleware.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handlePruningPage)
	mux.HandleFunc("GET /guide", s.handleGuidePage)
	mux.HandleFunc("GET /editor", s.handleEditorPage)
	mux.HandleFunc("POST /advice", s.handleAdviceForm)

	mux.HandleFunc("/api/recommend", s.handleRecommend)
	mux.HandleFunc("GET /api/weather", s.handleWeather)
	mux.HandleFunc("POST /api/image-edit", s.handleImageEdit)
	mux.HandleFunc("GET /api/stages", s.handleStages)
	mux.HandleFunc("GET /api/stages/{bbch}", s.handleStage)
	mux.HandleFunc("GET /api/chart.svg", s.handleChart)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("GET /api/history/{id}", s.handleHistoryEntry)
	mux.HandleFunc("GET /api/schema", s.handleSchema)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	return requestID(accessLog(recoverer(limitBody(mux))))
}

// ListenAndServe listens on addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully, letting in-flight requests finish.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("serving", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return <-errCh
}

// record stores a recommendation in the journal if one is configured.
// Failures are logged and never fail the request.
func (s *Server) record(ctx context.Context, in advice.Input, rec *advice.Recommendation) {
	if s.opts.Journal == nil {
		return
	}
	e, err := s.opts.Journal.Record(ctx, journal.Entry{
		Input:          in,
		Recommendation: *rec,
		Provider:       s.opts.Provider,
		Model:          s.opts.Model,
	})
	if err != nil {
		slog.Warn("recording advice failed", "err", err)
		return
	}
	slog.Debug("recorded advice", "id", e.ID)
}
