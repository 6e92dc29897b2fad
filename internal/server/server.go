// Package server exposes the job history and runner over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"whisper-desk/internal/config"
	"whisper-desk/internal/domain"
	"whisper-desk/internal/jobs"
)

// Backend is the application surface the API serves.
type Backend interface {
	StartTranscription(cfg domain.TranscriptionConfig) (string, error)
	ListHistory(query domain.JobQuery) (domain.JobListResponse, error)
	GetHistory(jobID string) (*domain.JobRecord, error)
	DeleteHistory(jobID string) error
	UpdateTags(jobID string, tags []string) (*domain.JobRecord, error)
	UpdateNotes(jobID string, notes *string) (*domain.JobRecord, error)
	GetResultFilePath(jobID, format string) (string, error)
	ExportResult(jobID, format string) (*domain.JobRecord, error)
	JobEvents(jobID string, since int64) []jobs.Event
	SubscribeEvents() (<-chan jobs.Event, func())
	GetWhisperModels() []domain.WhisperModelOption
	GetDiagnostics() domain.DiagnosticReport
}

// Server serves the JSON API.
type Server struct {
	backend Backend
	cfg     config.ServerConfig
	logger  *zap.Logger
	router  chi.Router
}

// New builds a server and its routes.
func New(backend Backend, cfg config.ServerConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{backend: backend, cfg: cfg, logger: logger.Named("http")}
	s.router = s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", s.createJob)
			r.Get("/", s.listJobs)
			r.Route("/{jobID}", func(r chi.Router) {
				r.Get("/", s.getJob)
				r.Delete("/", s.deleteJob)
				r.Put("/tags", s.updateTags)
				r.Put("/notes", s.updateNotes)
				r.Get("/results/{format}", s.downloadResult)
				r.Post("/export/{format}", s.exportResult)
			})
		})
		r.Get("/events", s.listEvents)
		r.Get("/events/ws", s.streamEvents)
		r.Get("/models", s.listModels)
		r.Get("/diagnostics", s.diagnostics)
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		s.writeError(w, fmt.Errorf("route %w", domain.ErrNotFound))
	})
	return r
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutdown requested")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	s.logger.Info("server stopped gracefully")
	return nil
}
