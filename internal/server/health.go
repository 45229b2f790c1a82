package server

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// Status of a component or the whole service.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Check is one component probe result.
type Check struct {
	Name    string `json:"name"`
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// Checker probes one dependency. It must respect ctx.
type Checker func(ctx context.Context) Check

// Health aggregates dependency probes behind /healthz and /readyz. Liveness
// stays green as long as the process responds; readiness reflects registered
// checks and the shutdown state.
type Health struct {
	version string

	mu     sync.RWMutex
	checks map[string]Checker
	ready  bool
}

// NewHealth creates the aggregator. Ready starts false until Serve flips it.
func NewHealth(version string) *Health {
	return &Health{version: version, checks: make(map[string]Checker)}
}

// Register adds a named dependency probe.
func (h *Health) Register(name string, check Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

// SetReady flips readiness. Shutdown sets it false so load balancers drain
// the instance before connections are closed.
func (h *Health) SetReady(ready bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.ready = ready
}

type healthResponse struct {
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version,omitempty"`
	Checks    []Check   `json:"checks,omitempty"`
}

func (h *Health) handleLive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    StatusHealthy,
		Timestamp: time.Now().UTC(),
		Version:   h.version,
	})
}

func (h *Health) handleReady(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	ready := h.ready
	checkers := make(map[string]Checker, len(h.checks))
	for name, c := range h.checks {
		checkers[name] = c
	}
	h.mu.RUnlock()

	resp := healthResponse{
		Status:    StatusHealthy,
		Timestamp: time.Now().UTC(),
		Version:   h.version,
	}
	if !ready {
		resp.Status = StatusUnhealthy
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	for name, check := range checkers {
		c := check(ctx)
		c.Name = name
		resp.Checks = append(resp.Checks, c)
		switch c.Status {
		case StatusUnhealthy:
			resp.Status = StatusUnhealthy
			status = http.StatusServiceUnavailable
		case StatusDegraded:
			if resp.Status == StatusHealthy {
				resp.Status = StatusDegraded
			}
		}
	}
	writeJSON(w, status, resp)
}

// PingChecker wraps a dependency's connectivity probe into a Checker.
func PingChecker(ping func(ctx context.Context) error) Checker {
	return func(ctx context.Context) Check {
		if err := ping(ctx); err != nil {
			return Check{Status: StatusUnhealthy, Message: err.Error()}
		}
		return Check{Status: StatusHealthy}
	}
}
