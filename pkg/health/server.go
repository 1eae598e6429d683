package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/speedrun-hq/rerunner/pkg/circuitbreaker"
	"github.com/speedrun-hq/rerunner/pkg/logger"
	"github.com/speedrun-hq/rerunner/pkg/marker"
	"github.com/speedrun-hq/rerunner/pkg/models"
	"github.com/speedrun-hq/rerunner/pkg/policy"
	"github.com/speedrun-hq/rerunner/pkg/rescheduler"
)

// Rescheduler is the service the server exposes
type Rescheduler interface {
	OnBuildFinished(ctx context.Context, build models.Build) (policy.Decision, error)
	Forget(ctx context.Context, buildID string) error
	QueueSize() int
	Store() marker.Store
	Breakers() *circuitbreaker.Registry
}

// Server represents a health check HTTP server
type Server struct {
	port          string
	rescheduler   Rescheduler
	logger        logger.Logger
	metricsAPIKey string
}

// decisionResponse is the reply to a build completion
type decisionResponse struct {
	Schedule     bool   `json:"schedule"`
	Reason       string `json:"reason,omitempty"`
	Gate         string `json:"gate,omitempty"`
	GateBypassed bool   `json:"gate_bypassed,omitempty"`
}

// NewServer creates a new health check server
func NewServer(port string, rescheduler Rescheduler, log logger.Logger) *Server {
	return &Server{
		port:          port,
		rescheduler:   rescheduler,
		logger:        log,
		metricsAPIKey: os.Getenv("METRICS_API_KEY"),
	}
}

// metricsAuthMiddleware is a middleware that checks for a valid API key
func (s *Server) metricsAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip auth if no API key is configured
		if s.metricsAPIKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Missing Authorization header", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
			return
		}

		if parts[1] != s.metricsAPIKey {
			http.Error(w, "Invalid API key", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Handler returns the routes of the server
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// Ready once the marker store answers
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if _, err := s.rescheduler.Store().Count(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(fmt.Sprintf("Marker store unavailable: %v", err)))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("Ready"))
	})

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		circuits := make(map[string]string)
		for job, open := range s.rescheduler.Breakers().Snapshot() {
			circuits[job] = "closed"
			if open {
				circuits[job] = "open"
			}
		}

		status := map[string]interface{}{
			"retry_queue": s.rescheduler.QueueSize(),
			"circuits":    circuits,
		}
		if markers, err := s.rescheduler.Store().Count(r.Context()); err == nil {
			status["markers"] = markers
		}

		s.writeJSON(w, http.StatusOK, status)
	})

	// Circuit breaker admin control endpoint
	mux.HandleFunc("/circuit/reset", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		job := r.URL.Query().Get("job")
		if job == "" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte("Missing job parameter"))
			return
		}

		cb, ok := s.rescheduler.Breakers().Lookup(job)
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(fmt.Sprintf("No circuit breaker for job %s", job)))
			return
		}

		cb.Reset()
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(fmt.Sprintf("Circuit breaker for job %s reset", job)))
	})

	// Build host notifications
	mux.HandleFunc("/builds/completed", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		var build models.Build
		if err := json.NewDecoder(r.Body).Decode(&build); err != nil {
			http.Error(w, fmt.Sprintf("Invalid build: %v", err), http.StatusBadRequest)
			return
		}
		if build.ID == "" || build.Job == "" {
			http.Error(w, "Build id and job are required", http.StatusBadRequest)
			return
		}
		build.Normalize()

		decision, err := s.rescheduler.OnBuildFinished(r.Context(), build)
		if errors.Is(err, rescheduler.ErrQueueFull) {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		if err != nil {
			s.logger.ErrorWithJob(build.Job, "Failed to handle completion of %s: %v", build, err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		resp := decisionResponse{
			Schedule:     decision.Schedule,
			Reason:       string(decision.Reason),
			GateBypassed: decision.GateBypassed(),
		}
		if decision.Reason != "" {
			resp.Gate = decision.Gate.String()
		}
		s.writeJSON(w, http.StatusOK, resp)
	})

	mux.HandleFunc("/builds/deleted", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		id := r.URL.Query().Get("id")
		if id == "" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte("Missing id parameter"))
			return
		}
		if err := s.rescheduler.Forget(r.Context(), id); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	// Expose Prometheus metrics with API key authentication
	mux.Handle("/metrics", s.metricsAuthMiddleware(promhttp.Handler()))

	return mux
}

// Start serves until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("Starting health and metrics server on port %s", s.port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("health server error: %w", err)
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Error encoding JSON response: %v", err)
	}
}
