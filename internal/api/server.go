// Package api exposes the HTTP control surface for the collector.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"ipowatch/internal/clock"
	"ipowatch/internal/export"
	"ipowatch/internal/progress"
	"ipowatch/internal/schedule"
	"ipowatch/internal/worker"
)

// CrawlControl is the worker surface the API drives.
type CrawlControl interface {
	StartCrawl() (uuid.UUID, error)
	Cancel() bool
	Status() (worker.RunInfo, bool)
}

// ScheduleReader is the store surface the API reads from.
type ScheduleReader interface {
	UpcomingSchedules(ctx context.Context, today, broker string) ([]schedule.Record, error)
	Brokers(ctx context.Context, today string) ([]string, error)
	Ping(ctx context.Context) error
}

// WorkbookWriter renders the collected table to a spreadsheet.
type WorkbookWriter interface {
	Write(ctx context.Context) (string, int, error)
}

// Activity exposes the recent progress events kept by the ring sink.
type Activity interface {
	Events() []progress.Event
}

// Config wires the Server's collaborators.
type Config struct {
	Worker   CrawlControl
	Reader   ScheduleReader
	Exporter WorkbookWriter
	Activity Activity
	Clock    clock.Clock
	Logger   *zap.Logger
	// Metrics serves GET /metrics; typically promhttp over the
	// process registry.
	Metrics http.Handler
	// RequestTimeout bounds every request (default 60s).
	RequestTimeout time.Duration
}

// Server wires HTTP handlers to the worker and store.
type Server struct {
	router   chi.Router
	worker   CrawlControl
	reader   ScheduleReader
	exporter WorkbookWriter
	activity Activity
	clock    clock.Clock
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		worker:   cfg.Worker,
		reader:   cfg.Reader,
		exporter: cfg.Exporter,
		activity: cfg.Activity,
		clock:    cfg.Clock,
		logger:   logger,
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(timeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Route("/crawls", func(r chi.Router) {
			r.Post("/", s.startCrawl)
			r.Get("/current", s.currentCrawl)
			r.Post("/current/cancel", s.cancelCrawl)
		})
		r.Get("/schedules/upcoming", s.upcomingSchedules)
		r.Get("/brokers", s.listBrokers)
		r.Post("/exports", s.exportWorkbook)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if err := s.reader.Ping(r.Context()); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "database unreachable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) startCrawl(w http.ResponseWriter, _ *http.Request) {
	runID, err := s.worker.StartCrawl()
	if err != nil {
		if errors.Is(err, worker.ErrRunInProgress) {
			s.writeError(w, http.StatusConflict, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID.String()})
}

func (s *Server) cancelCrawl(w http.ResponseWriter, _ *http.Request) {
	if !s.worker.Cancel() {
		s.writeError(w, http.StatusConflict, "no crawl run in progress")
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "canceling"})
}

func (s *Server) currentCrawl(w http.ResponseWriter, _ *http.Request) {
	info, ok := s.worker.Status()
	if !ok {
		s.writeError(w, http.StatusNotFound, "no crawl has run yet")
		return
	}
	payload := map[string]any{"run": info}
	if s.activity != nil {
		payload["activity"] = s.activity.Events()
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *Server) upcomingSchedules(w http.ResponseWriter, r *http.Request) {
	today := s.clock.Now().Format("2006-01-02")
	broker := r.URL.Query().Get("broker")
	recs, err := s.reader.UpcomingSchedules(r.Context(), today, broker)
	if err != nil {
		s.logger.Error("list upcoming schedules failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to load schedules")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"schedules": recs,
		"count":     len(recs),
	})
}

func (s *Server) listBrokers(w http.ResponseWriter, r *http.Request) {
	today := s.clock.Now().Format("2006-01-02")
	brokers, err := s.reader.Brokers(r.Context(), today)
	if err != nil {
		s.logger.Error("list brokers failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to load brokers")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"brokers": brokers})
}

func (s *Server) exportWorkbook(w http.ResponseWriter, r *http.Request) {
	path, rows, err := s.exporter.Write(r.Context())
	if err != nil {
		if errors.Is(err, export.ErrNoRecords) {
			s.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.logger.Error("export failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "export failed")
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{
		"path": path,
		"rows": rows,
	})
}
