// Package health serves liveness and readiness probes for the engine.
//
// Liveness answers "is the process up"; readiness runs the registered
// per-component checks (policy source readable, audit store reachable, and
// so on) and degrades to 503 when any of them fails.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// CheckFunc probes one component. A nil return means healthy.
type CheckFunc func(ctx context.Context) error

// CheckResult is the outcome of a single component check.
type CheckResult struct {
	Status     string  `json:"status"`
	Message    string  `json:"message,omitempty"`
	DurationMS float64 `json:"duration_ms"`
}

// Status is the aggregate probe response.
type Status struct {
	Status    string                 `json:"status"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Checker runs registered component checks with a per-check timeout.
type Checker struct {
	mu      sync.RWMutex
	checks  map[string]CheckFunc
	timeout time.Duration
}

// New returns a checker. A zero timeout defaults to 5 seconds per check.
func New(timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Checker{
		checks:  make(map[string]CheckFunc),
		timeout: timeout,
	}
}

// Register adds or replaces the check for a named component.
func (c *Checker) Register(name string, check CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// Readiness runs every registered check and aggregates the results. The
// aggregate status is "ok" only when all checks pass.
func (c *Checker) Readiness(ctx context.Context) Status {
	c.mu.RLock()
	checks := make(map[string]CheckFunc, len(c.checks))
	for name, fn := range c.checks {
		checks[name] = fn
	}
	c.mu.RUnlock()

	status := Status{
		Status:    "ok",
		Checks:    make(map[string]CheckResult, len(checks)),
		Timestamp: time.Now(),
	}
	for name, fn := range checks {
		start := time.Now()
		checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
		err := fn(checkCtx)
		cancel()

		result := CheckResult{
			Status:     "ok",
			DurationMS: float64(time.Since(start).Microseconds()) / 1000,
		}
		if err != nil {
			result.Status = "unhealthy"
			result.Message = err.Error()
			status.Status = "unhealthy"
		}
		status.Checks[name] = result
	}
	return status
}

// LivenessHandler answers 200 as long as the process can serve HTTP.
func (c *Checker) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, Status{Status: "ok", Timestamp: time.Now()})
	}
}

// ReadinessHandler runs the component checks, answering 503 on any failure.
func (c *Checker) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := c.Readiness(r.Context())
		code := http.StatusOK
		if status.Status != "ok" {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, status)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
