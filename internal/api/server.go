// Package api exposes the read-only status surface over HTTP. Mutating
// runs stay on the CLI; the API only serves state and dry-run previews.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/refitlab/refit/internal/coordinator"
	"github.com/refitlab/refit/internal/events"
	"github.com/refitlab/refit/internal/ledger"
	"github.com/refitlab/refit/internal/log"
	"github.com/refitlab/refit/internal/selector"
	"github.com/refitlab/refit/internal/worker"
)

// Config holds API server configuration.
type Config struct {
	Listen string
}

// Runner previews a task against a target. The API always runs dry.
type Runner interface {
	Run(ctx context.Context, target, task string, budget float64, apply bool) (*coordinator.SessionReport, error)
}

// SessionLister serves recent session history.
type SessionLister interface {
	Recent(ctx context.Context, limit int) ([]coordinator.SessionSummary, error)
}

// Server is the HTTP status server.
type Server struct {
	config    Config
	registry  *worker.Registry
	ledger    *ledger.Ledger
	runner    Runner
	sessions  SessionLister
	hub       *events.Hub
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates a server. sessions and hub may be nil; their endpoints then
// report unavailable.
func New(config Config, registry *worker.Registry, led *ledger.Ledger, runner Runner, sessions SessionLister, hub *events.Hub) *Server {
	return &Server{
		config:    config,
		registry:  registry,
		ledger:    led,
		runner:    runner,
		sessions:  sessions,
		hub:       hub,
		logger:    log.WithComponent("api"),
		startedAt: time.Now(),
	}
}

// Start runs the HTTP server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.config.Listen,
		Handler:      s.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("api server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("api server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// Routes builds the HTTP router.
func (s *Server) Routes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/status", s.handleStatus)
	r.Get("/workers", s.handleWorkers)
	r.Get("/ledger/stats", s.handleLedgerStats)
	r.Get("/sessions", s.handleSessions)
	r.Get("/events", s.handleEvents)
	r.Post("/run", s.handleRun)

	return r
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats := s.ledger.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"uptime_seconds": time.Since(s.startedAt).Seconds(),
		"workers":        len(s.registry.All()),
		"tasks":          selector.Tasks(),
		"ledger": map[string]any{
			"records":    stats.TotalRecords,
			"total_cost": stats.TotalCost,
		},
	})
}

func (s *Server) handleWorkers(w http.ResponseWriter, r *http.Request) {
	type workerInfo struct {
		Name          string `json:"name"`
		Description   string `json:"description"`
		Mutating      bool   `json:"mutating"`
		ProviderBound bool   `json:"provider_bound"`
		Provider      string `json:"provider,omitempty"`
		Enabled       bool   `json:"enabled"`
	}
	all := s.registry.All()
	out := make([]workerInfo, 0, len(all))
	for _, d := range all {
		out = append(out, workerInfo{
			Name:          d.Name,
			Description:   d.Description,
			Mutating:      d.Mutating,
			ProviderBound: d.ProviderBound,
			Provider:      d.Provider,
			Enabled:       d.Enabled,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"workers": out})
}

func (s *Server) handleLedgerStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ledger.Stats())
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		writeError(w, http.StatusServiceUnavailable, "session history not available")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	recent, err := s.sessions.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("list sessions", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": recent})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "event stream not available")
		return
	}
	since, _ := strconv.ParseInt(r.URL.Query().Get("since"), 10, 64)
	writeJSON(w, http.StatusOK, map[string]any{"events": s.hub.SnapshotSince(since)})
}

type runRequest struct {
	Target string  `json:"target"`
	Task   string  `json:"task"`
	Budget float64 `json:"budget"`
}

// handleRun previews a run. The API never applies changes: every run
// through this endpoint is a dry run.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Target == "" {
		writeError(w, http.StatusBadRequest, "target is required")
		return
	}
	if req.Task == "" {
		req.Task = "cleanup"
	}
	if !selector.KnownTask(req.Task) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown task %q", req.Task))
		return
	}

	report, err := s.runner.Run(r.Context(), req.Target, req.Task, req.Budget, false)
	if err != nil {
		s.logger.Error("dry run failed", "target", req.Target, "error", err)
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
