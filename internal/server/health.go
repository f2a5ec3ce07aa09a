// Package server provides the admin HTTP server (health and metrics) and
// signal-driven shutdown.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"
)

// HealthStatus represents the health state of a component.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
	HealthStatusDegraded  HealthStatus = "degraded"
)

// HealthCheck represents a single health check.
type HealthCheck struct {
	Name    string            `json:"name"`
	Status  HealthStatus      `json:"status"`
	Message string            `json:"message,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// HealthResponse is the response from health endpoints.
type HealthResponse struct {
	Status    HealthStatus  `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Version   string        `json:"version,omitempty"`
	Checks    []HealthCheck `json:"checks,omitempty"`
}

// HealthChecker is a function that performs a health check.
type HealthChecker func(ctx context.Context) HealthCheck

// HealthServer provides health and metrics endpoints.
type HealthServer struct {
	mu      sync.RWMutex
	checks  map[string]HealthChecker
	version string
	ready   bool
	live    bool
	metrics http.Handler
	srv     *http.Server
}

// HealthConfig configures the health server.
type HealthConfig struct {
	Version string
	// Metrics is served at /metrics when set.
	Metrics http.Handler
}

// NewHealthServer creates a new health server.
func NewHealthServer(config *HealthConfig) *HealthServer {
	s := &HealthServer{
		checks: make(map[string]HealthChecker),
		live:   true,
	}
	if config != nil {
		s.version = config.Version
		s.metrics = config.Metrics
	}
	return s
}

// RegisterCheck adds a health check.
func (s *HealthServer) RegisterCheck(name string, checker HealthChecker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[name] = checker
}

// SetReady marks the server as ready to accept traffic.
func (s *HealthServer) SetReady(ready bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = ready
}

// SetLive marks the server as live (or not).
func (s *HealthServer) SetLive(live bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.live = live
}

// Handler returns an http.Handler for the admin endpoints.
func (s *HealthServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/ready", s.handleReady)
	mux.HandleFunc("/live", s.handleLive)
	mux.HandleFunc("/healthz", s.handleHealth) // Kubernetes alias
	mux.HandleFunc("/readyz", s.handleReady)   // Kubernetes alias
	mux.HandleFunc("/livez", s.handleLive)     // Kubernetes alias
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}
	return mux
}

// ListenAndServe serves the admin endpoints until Shutdown is called.
func (s *HealthServer) ListenAndServe(addr string) error {
	if addr == "" {
		addr = ":8080"
	}

	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	s.mu.Lock()
	s.srv = srv
	s.mu.Unlock()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server started by ListenAndServe.
func (s *HealthServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.ready = false
	srv := s.srv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// handleHealth handles the /health endpoint - full health check.
func (s *HealthServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	s.mu.RLock()
	checks := make(map[string]HealthChecker, len(s.checks))
	for k, v := range s.checks {
		checks[k] = v
	}
	version := s.version
	s.mu.RUnlock()

	response := HealthResponse{
		Status:    HealthStatusHealthy,
		Timestamp: time.Now().UTC(),
		Version:   version,
		Checks:    make([]HealthCheck, 0, len(checks)),
	}

	for name, checker := range checks {
		check := checker(ctx)
		check.Name = name
		response.Checks = append(response.Checks, check)

		if check.Status == HealthStatusUnhealthy {
			response.Status = HealthStatusUnhealthy
		} else if check.Status == HealthStatusDegraded && response.Status == HealthStatusHealthy {
			response.Status = HealthStatusDegraded
		}
	}

	statusCode := http.StatusOK
	if response.Status == HealthStatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	s.writeJSON(w, statusCode, response)
}

// handleReady handles the /ready endpoint - readiness probe.
func (s *HealthServer) handleReady(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	ready := s.ready
	s.mu.RUnlock()
	s.writeProbe(w, ready)
}

// handleLive handles the /live endpoint - liveness probe.
func (s *HealthServer) handleLive(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	live := s.live
	s.mu.RUnlock()
	s.writeProbe(w, live)
}

func (s *HealthServer) writeProbe(w http.ResponseWriter, ok bool) {
	response := HealthResponse{
		Status:    HealthStatusHealthy,
		Timestamp: time.Now().UTC(),
	}
	if !ok {
		response.Status = HealthStatusUnhealthy
		s.writeJSON(w, http.StatusServiceUnavailable, response)
		return
	}
	s.writeJSON(w, http.StatusOK, response)
}

func (s *HealthServer) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Common health checkers

// DependencyHealthChecker reports a remote dependency (Qdrant, Neo4j,
// Temporal) as unhealthy when checkFn fails.
func DependencyHealthChecker(name string, checkFn func(ctx context.Context) error) HealthChecker {
	return func(ctx context.Context) HealthCheck {
		if err := checkFn(ctx); err != nil {
			return HealthCheck{
				Status:  HealthStatusUnhealthy,
				Message: name + " connection failed: " + err.Error(),
			}
		}
		return HealthCheck{
			Status:  HealthStatusHealthy,
			Message: name + " connection OK",
		}
	}
}

// EmbeddingHealthChecker reports the embedding provider. A failing probe
// degrades rather than fails: the collector retries and records timeouts.
func EmbeddingHealthChecker(providerName string, checkFn func(ctx context.Context) error) HealthChecker {
	return func(ctx context.Context) HealthCheck {
		details := map[string]string{"provider": providerName}
		if checkFn == nil {
			return HealthCheck{
				Status:  HealthStatusHealthy,
				Message: "embedding provider configured: " + providerName,
				Details: details,
			}
		}
		if err := checkFn(ctx); err != nil {
			return HealthCheck{
				Status:  HealthStatusDegraded,
				Message: "embedding provider degraded: " + err.Error(),
				Details: details,
			}
		}
		return HealthCheck{
			Status:  HealthStatusHealthy,
			Message: "embedding provider OK",
			Details: details,
		}
	}
}

// ChunkStoreHealthChecker verifies the chunk directory exists and is a directory.
func ChunkStoreHealthChecker(dir string, countFn func() (int, error)) HealthChecker {
	return func(ctx context.Context) HealthCheck {
		details := map[string]string{"dir": dir}
		info, err := os.Stat(dir)
		if err != nil {
			return HealthCheck{Status: HealthStatusUnhealthy, Message: err.Error(), Details: details}
		}
		if !info.IsDir() {
			return HealthCheck{Status: HealthStatusUnhealthy, Message: dir + " is not a directory", Details: details}
		}
		if countFn != nil {
			n, err := countFn()
			if err != nil {
				return HealthCheck{Status: HealthStatusDegraded, Message: err.Error(), Details: details}
			}
			details["chunk_files"] = fmt.Sprint(n)
		}
		return HealthCheck{Status: HealthStatusHealthy, Message: "chunk store OK", Details: details}
	}
}
