// Package httpapi exposes the serve-mode HTTP surface: health, stats, the
// last persisted run, and a trigger endpoint that starts an ingestion run.
package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/rosterwatch/internal/report"
	"github.com/hazyhaar/rosterwatch/roster"
)

// Runner executes one ingestion run. Implemented by the pipeline.
type Runner interface {
	Run(ctx context.Context) (roster.RunResult, error)
}

// Reporter is the read-side surface the endpoints serve from. Nil when the
// server runs without a store.
type Reporter interface {
	DBStats(ctx context.Context) (*report.DBStats, error)
	LastRun(ctx context.Context) (*report.LastRun, error)
	Trending(ctx context.Context, dir report.Direction, limit int) ([]roster.Record, error)
}

// Server is the HTTP facade. One run at a time: a trigger while a run is in
// flight is rejected with 409 rather than queued.
type Server struct {
	runner   Runner
	reporter Reporter
	logger   *slog.Logger

	running sync.Mutex
}

// NewServer creates a Server.
func NewServer(runner Runner, reporter Reporter, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{runner: runner, reporter: reporter, logger: logger}
}

// Router builds the chi router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/stats", s.handleStats)
	r.Get("/last", s.handleLast)
	r.Get("/trending", s.handleTrending)
	r.Post("/run", s.handleRun)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.reporter == nil {
		writeError(w, http.StatusServiceUnavailable, "store disabled")
		return
	}
	stats, err := s.reporter.DBStats(r.Context())
	if err != nil {
		s.logger.Error("httpapi: stats failed", "error", err)
		writeError(w, http.StatusInternalServerError, "stats unavailable")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleLast(w http.ResponseWriter, r *http.Request) {
	if s.reporter == nil {
		writeError(w, http.StatusServiceUnavailable, "store disabled")
		return
	}
	last, err := s.reporter.LastRun(r.Context())
	if err != nil {
		s.logger.Error("httpapi: last run failed", "error", err)
		writeError(w, http.StatusInternalServerError, "last run unavailable")
		return
	}
	if last == nil {
		writeError(w, http.StatusNotFound, "no runs recorded")
		return
	}
	writeJSON(w, http.StatusOK, last)
}

func (s *Server) handleTrending(w http.ResponseWriter, r *http.Request) {
	if s.reporter == nil {
		writeError(w, http.StatusServiceUnavailable, "store disabled")
		return
	}

	dir := report.Rising
	if r.URL.Query().Get("dir") == string(report.Falling) {
		dir = report.Falling
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	movers, err := s.reporter.Trending(r.Context(), dir, limit)
	if err != nil {
		s.logger.Error("httpapi: trending failed", "error", err)
		writeError(w, http.StatusInternalServerError, "trending unavailable")
		return
	}
	writeJSON(w, http.StatusOK, movers)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if !s.running.TryLock() {
		writeError(w, http.StatusConflict, "a run is already in flight")
		return
	}
	defer s.running.Unlock()

	started := time.Now()
	res, err := s.runner.Run(r.Context())
	if err != nil {
		s.logger.Error("httpapi: triggered run failed", "run_id", res.RunID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":  err.Error(),
			"result": res,
		})
		return
	}

	s.logger.Info("httpapi: triggered run complete",
		"run_id", res.RunID, "written", res.Written, "duration", time.Since(started))
	writeJSON(w, http.StatusOK, res)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
