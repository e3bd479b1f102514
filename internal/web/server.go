// Package web provides the HTTP API for trip-planner.
package web

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/evcraddock/trip-planner/internal/auth"
	"github.com/evcraddock/trip-planner/internal/geo"
	"github.com/evcraddock/trip-planner/internal/job"
	"github.com/evcraddock/trip-planner/internal/logging"
)

// Config holds the server's dependencies.
type Config struct {
	DB           *sql.DB
	Orchestrator *job.Orchestrator
	// Gatherer backs /metrics. Nil uses the default registry.
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

// Server is the API HTTP server.
type Server struct {
	db      *sql.DB
	orch    *job.Orchestrator
	apiKeys *auth.APIKeyStore
	queue   *geo.Queue
	logger  *slog.Logger
	handler http.Handler
}

// NewServer creates a server and registers its routes.
func NewServer(cfg Config) *Server {
	s := &Server{
		db:      cfg.DB,
		orch:    cfg.Orchestrator,
		apiKeys: auth.NewAPIKeyStore(cfg.DB),
		queue:   geo.NewQueue(cfg.DB),
		logger:  cfg.Logger,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc("GET /api/plans", s.apiListPlans)
	mux.HandleFunc("POST /api/plans", s.apiCreatePlan)
	mux.HandleFunc("GET /api/plans/{id}", s.apiGetPlan)
	mux.HandleFunc("DELETE /api/plans/{id}", s.apiDeletePlan)
	mux.HandleFunc("POST /api/plans/{id}/generate", s.apiGenerate)
	mux.HandleFunc("POST /api/plans/{id}/regenerate", s.apiRegenerate)
	mux.HandleFunc("GET /api/plans/{id}/status", s.apiStatus)
	mux.HandleFunc("PUT /api/plans/{id}/days/{day}", s.apiUpdateDay)

	s.handler = logging.RequestLogger(s.logger, auth.RequireAPIKey(s.apiKeys, mux))
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// ListenAndServe serves on port until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting API server", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// handleHealth reports database reachability and geocode queue depth.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.PingContext(r.Context()); err != nil {
		apiError(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	stats, err := s.queue.Stats(r.Context())
	if err != nil {
		apiError(w, fmt.Sprintf("reading queue stats: %v", err), http.StatusInternalServerError)
		return
	}
	apiJSON(w, map[string]any{"status": "ok", "geocode_queue": stats}, http.StatusOK)
}
