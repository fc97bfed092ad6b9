package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/runward/runward/internal/core"
	"github.com/runward/runward/internal/logging"
	"github.com/runward/runward/internal/service"
)

// Server exposes the run ledger over HTTP for dashboards and scripts. The
// surface is observational: listing, inspection, plan previews, and probe
// triggers. Dispatch and resume stay on the CLI, where an operator is
// present to deal with conflicts.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	svc        *service.Service
	logger     *logging.Logger
}

// Config holds the server configuration.
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() Config {
	return Config{
		Addr:            "127.0.0.1:7171",
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// New creates a server over the given service.
func New(cfg Config, svc *service.Service, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultConfig().Addr
	}

	s := &Server{svc: svc, logger: logger}
	s.router = s.setupRouter(cfg)
	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Handler returns the underlying router, for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("status api listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) setupRouter(cfg Config) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.New(cors.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
			MaxAge:         300,
		}).Handler)
	}

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/runs", s.handleListRuns)
		r.Post("/reconcile", s.handleReconcileAll)
		r.Route("/runs/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetRun)
			r.Get("/plan", s.handleGetPlan)
			r.Post("/reconcile", s.handleReconcileRun)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	var filter core.Filter
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, err := core.ParseStatus(raw)
		if err != nil {
			s.writeError(w, core.ErrValidation(core.CodeInvalidTarget, err.Error()))
			return
		}
		filter.Status = status
	}
	filter.Host = r.URL.Query().Get("host")

	records, err := s.svc.List(r.Context(), filter)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if records == nil {
		records = []*core.RunRecord{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"runs": records})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	rec, err := s.svc.Get(r.Context(), core.RunID(chi.URLParam(r, "id")))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleGetPlan(w http.ResponseWriter, r *http.Request) {
	plan, err := s.svc.Planner.Plan(r.Context(), core.RunID(chi.URLParam(r, "id")))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, plan)
}

func (s *Server) handleReconcileRun(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Reconciler.Reconcile(r.Context(), core.RunID(chi.URLParam(r, "id")))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"run":     res.Record,
		"changed": res.Changed,
	})
}

func (s *Server) handleReconcileAll(w http.ResponseWriter, r *http.Request) {
	summary, err := s.svc.Reconciler.ReconcileAll(r.Context(), core.Filter{})
	if err != nil {
		s.writeError(w, err)
		return
	}

	errs := make([]map[string]string, 0, len(summary.Errors))
	for _, se := range summary.Errors {
		errs = append(errs, map[string]string{
			"run_id": string(se.RunID),
			"error":  se.Err.Error(),
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"total":       summary.Total,
		"changed":     summary.ChangedCount,
		"no_evidence": summary.NoEvidenceCount,
		"errors":      errs,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("encoding response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := "INTERNAL"

	var domErr *core.DomainError
	if errors.As(err, &domErr) {
		code = domErr.Code
		switch domErr.Category {
		case core.ErrCatValidation:
			status = http.StatusUnprocessableEntity
		case core.ErrCatNotFound:
			status = http.StatusNotFound
		case core.ErrCatConflict, core.ErrCatState:
			status = http.StatusConflict
		case core.ErrCatProbe, core.ErrCatDatabase:
			status = http.StatusBadGateway
		}
	}

	s.writeJSON(w, status, map[string]string{
		"code":  code,
		"error": err.Error(),
	})
}
