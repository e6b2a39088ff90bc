/*
Package opsserver implements the internal supervisor control plane: a
chi router exposing /healthz, /readyz, /metrics, and
/admin/cameras/{pause,resume}. Grounded on the teacher gateway's
router/router.go middleware-chain shape, generalized from the public
REST façade to an internal-only operations surface (§6).
*/
package opsserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/alfred-ops/restaurant-core/internal/camera"
	"github.com/alfred-ops/restaurant-core/internal/redisclient"
	"github.com/alfred-ops/restaurant-core/internal/store"
)

// Server is the internal ops HTTP surface. It never serves
// restaurant-facing traffic; that REST façade is explicitly out of
// scope (§6 Non-goals).
type Server struct {
	handler    http.Handler
	supervisor *camera.Supervisor
	store      *store.Store
	redis      *redisclient.Client
	logger     zerolog.Logger
}

// New builds the chi router and wraps it in a Server.
func New(st *store.Store, redis *redisclient.Client, supervisor *camera.Supervisor, registry *prometheus.Registry, logger zerolog.Logger) *Server {
	s := &Server{
		supervisor: supervisor,
		store:      st,
		redis:      redis,
		logger:     logger.With().Str("component", "opsserver").Logger(),
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(requestLogger(s.logger))

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	r.Route("/admin/cameras", func(r chi.Router) {
		r.Post("/pause", s.handlePauseAll)
		r.Post("/resume", s.handleResumeAll)
	})

	s.handler = r
	return s
}

// Handler returns the http.Handler to mount on an *http.Server.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func requestLogger(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(rw, r)
			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", rw.Status()).
				Dur("duration", time.Since(start)).
				Msg("ops request")
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadyz checks the store and redis connections, failing readiness
// if either is unreachable.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{}
	ready := true

	if err := s.store.Ping(ctx); err != nil {
		checks["store"] = err.Error()
		ready = false
	} else {
		checks["store"] = "ok"
	}

	if s.redis != nil {
		if err := s.redis.Ping(ctx); err != nil {
			checks["redis"] = err.Error()
			ready = false
		} else {
			checks["redis"] = "ok"
		}
	}

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]interface{}{"ready": ready, "checks": checks})
}

// handlePauseAll suspends every registered camera worker (§6
// /admin/cameras/pause).
func (s *Server) handlePauseAll(w http.ResponseWriter, r *http.Request) {
	s.supervisor.PauseAll()
	s.logger.Info().Msg("all camera workers paused via admin endpoint")
	writeJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

// handleResumeAll resumes every registered camera worker.
func (s *Server) handleResumeAll(w http.ResponseWriter, r *http.Request) {
	s.supervisor.ResumeAll()
	s.logger.Info().Msg("all camera workers resumed via admin endpoint")
	writeJSON(w, http.StatusOK, map[string]string{"status": "resumed"})
}
