package rollback

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Monitor periodically evaluates canary metrics against the rollback
// thresholds and triggers an automatic rollback when they are breached.
//
// Cancellation is cooperative: the stop flag is polled once per tick, so a
// stop request is honored within one evaluation window, not instantaneously.
type Monitor struct {
	manager *Manager
	logger  *slog.Logger

	stopped atomic.Bool
	mu      sync.Mutex
	done    chan struct{}
	running bool
}

// NewMonitor creates a monitor for the given rollback manager. The tick
// interval is the manager's EvaluationWindow.
func NewMonitor(manager *Manager, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default().With("component", "rollout.rollback.monitor")
	}

	return &Monitor{
		manager: manager,
		logger:  logger,
	}
}

// Start launches the evaluation loop in a background goroutine. A second
// Start while running is a no-op.
func (mon *Monitor) Start(ctx context.Context) {
	mon.mu.Lock()
	defer mon.mu.Unlock()

	if mon.running {
		return
	}
	mon.running = true
	mon.stopped.Store(false)
	mon.done = make(chan struct{})

	interval := mon.manager.config.EvaluationWindow
	mon.logger.Info("rollback monitor started",
		"evaluation_window", interval,
		"error_rate_threshold", mon.manager.config.ErrorRateThreshold,
		"response_time_threshold_ms", mon.manager.config.ResponseTimeThresholdMS,
	)

	go mon.loop(ctx, interval)
}

// loop is the evaluation loop. Any single evaluation error is logged and
// the loop continues; only cancellation or Stop terminates it.
func (mon *Monitor) loop(ctx context.Context, interval time.Duration) {
	defer close(mon.done)
	defer func() {
		mon.mu.Lock()
		mon.running = false
		mon.mu.Unlock()
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			mon.logger.Info("rollback monitor stopped (context cancelled)")
			return
		case <-ticker.C:
			if mon.stopped.Load() {
				mon.logger.Info("rollback monitor stopped")
				return
			}
			mon.evaluate(ctx)
		}
	}
}

// evaluate takes a fresh metrics snapshot and triggers at most one rollback.
func (mon *Monitor) evaluate(ctx context.Context) {
	metrics := mon.manager.deployment.MetricsSnapshot()

	if !mon.manager.ShouldTriggerAutoRollback(metrics) {
		return
	}

	reason := "canary thresholds breached"
	mon.logger.Warn("rollback thresholds breached",
		"canary_error_rate", metrics.Canary.ErrorRate(),
		"canary_avg_latency_ms", metrics.Canary.AverageLatencyMS,
		"canary_requests", metrics.Canary.TotalRequests,
	)

	if err := mon.manager.TriggerAutoRollback(ctx, reason, metrics); err != nil {
		// Keep evaluating on the next tick regardless of the failure.
		mon.logger.Error("automatic rollback attempt failed", "error", err)
	}
}

// Stop requests termination. The loop observes the flag on its next tick;
// Stop does not wait for it.
func (mon *Monitor) Stop() {
	mon.stopped.Store(true)
}

// Wait blocks until the loop has exited. Returns immediately if the monitor
// never started.
func (mon *Monitor) Wait() {
	mon.mu.Lock()
	done := mon.done
	mon.mu.Unlock()

	if done != nil {
		<-done
	}
}

// IsRunning reports whether the loop is active.
func (mon *Monitor) IsRunning() bool {
	mon.mu.Lock()
	defer mon.mu.Unlock()
	return mon.running
}
