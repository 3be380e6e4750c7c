package canary

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"mercator-hq/callisto/pkg/policy"
	"mercator-hq/callisto/pkg/rollout/events"
)

// Telemetry receives rollout measurements from the manager. It is satisfied
// by the telemetry/metrics collector; a nil Telemetry disables reporting.
type Telemetry interface {
	RecordCanaryRequest(branch string, success bool, latencyMS float64)
	SetCanaryPercentage(pct float64)
	RecordCustomCriteriaFallback()
}

// ManagerConfig tunes optional manager behavior.
type ManagerConfig struct {
	// EventBufferSize is the per-subscriber event channel capacity.
	// Defaults to events.DefaultBufferSize.
	EventBufferSize int

	// Telemetry receives measurements. Optional.
	Telemetry Telemetry
}

// Manager owns a canary deployment: the stable and canary policies, the
// traffic split, per-branch metrics, the deployment state machine, and an
// event feed. All exported methods are safe for concurrent use.
//
// Locking: the state lock guards policies, split, and deployment state; the
// metrics collector has its own lock. No method holds both at once.
type Manager struct {
	logger    *slog.Logger
	telemetry Telemetry

	mu     sync.RWMutex
	stable *policy.Policy
	canary *policy.Policy
	split  TrafficSplit
	state  DeploymentState

	splitter *splitter
	metrics  *metricsCollector
	eventBus *events.Bus[Event]
}

// NewManager creates a canary deployment manager with the given stable
// policy and initial traffic split. The split percentage must be in [0,100].
func NewManager(stable *policy.Policy, split TrafficSplit, cfg *ManagerConfig, logger *slog.Logger) (*Manager, error) {
	if stable == nil {
		return nil, ErrNilPolicy
	}
	if err := validatePercentage(split.Percentage); err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = &ManagerConfig{}
	}
	if logger == nil {
		logger = slog.Default().With("component", "rollout.canary")
	}

	m := &Manager{
		logger:    logger,
		telemetry: cfg.Telemetry,
		stable:    stable.Clone(),
		split:     split.clone(),
		state:     DeploymentState{Phase: PhaseIdle},
		metrics:   newMetricsCollector(),
		eventBus:  events.NewBus[Event]("canary", cfg.EventBufferSize, logger),
	}
	m.splitter = newSplitter(logger, m.recordCustomFallback)

	return m, nil
}

// StartCanaryDeployment begins routing pct percent of traffic to the given
// canary policy. It fails with ErrDeploymentActive unless the manager is
// Idle. Branch metrics are reset so the rollback monitor only evaluates the
// new deployment.
func (m *Manager) StartCanaryDeployment(canaryPolicy *policy.Policy, pct float64) error {
	if canaryPolicy == nil {
		return ErrNilPolicy
	}
	if err := validatePercentage(pct); err != nil {
		return err
	}

	m.mu.Lock()
	if m.state.Phase != PhaseIdle {
		m.mu.Unlock()
		return fmt.Errorf("%w: deployment in phase %s", ErrDeploymentActive, m.state.Phase)
	}

	now := time.Now()
	m.canary = canaryPolicy.Clone()
	m.split.Percentage = pct
	m.state = DeploymentState{
		Phase:      PhaseCanaryActive,
		Percentage: pct,
		StartedAt:  now,
	}
	policyID := canaryPolicy.ID
	m.mu.Unlock()

	m.metrics.Reset()
	m.setTelemetryPercentage(pct)

	m.logger.Info("canary deployment started",
		"policy_id", policyID,
		"percentage", pct,
	)

	m.publish(Event{
		Type:          EventCanaryStarted,
		Timestamp:     now,
		Message:       fmt.Sprintf("canary %s started at %.1f%%", policyID, pct),
		PolicyID:      policyID,
		NewPercentage: pct,
	})

	return nil
}

// StopCanaryDeployment ends the active deployment and returns the state
// machine to Idle. With promote=true the canary policy becomes the stable
// policy; otherwise the canary is discarded.
func (m *Manager) StopCanaryDeployment(promote bool) error {
	m.mu.Lock()
	if m.state.Phase == PhaseIdle {
		m.mu.Unlock()
		return ErrNoActiveDeployment
	}

	policyID := ""
	if m.canary != nil {
		policyID = m.canary.ID
	}
	if promote && m.canary != nil {
		m.stable = m.canary
	}
	m.canary = nil
	m.split.Percentage = 0
	m.state = DeploymentState{Phase: PhaseIdle}
	m.mu.Unlock()

	m.setTelemetryPercentage(0)

	m.logger.Info("canary deployment stopped",
		"policy_id", policyID,
		"promoted", promote,
	)

	m.publish(Event{
		Type:      EventCanaryStopped,
		Timestamp: time.Now(),
		Message:   fmt.Sprintf("canary %s stopped (promoted=%v)", policyID, promote),
		PolicyID:  policyID,
		Promoted:  promote,
	})

	return nil
}

// ShouldUseCanary decides whether a request is served by the canary policy.
// It is read-only and safe to call on every request. Returns false when no
// canary policy is live.
func (m *Manager) ShouldUseCanary(ctx RequestContext) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.canary == nil {
		return false
	}
	if m.state.Phase != PhaseCanaryActive && m.state.Phase != PhaseScaling {
		return false
	}

	return m.splitter.decide(ctx, m.split)
}

// UpdateTrafficSplit changes the live canary percentage. Values outside
// [0,100] are rejected and the prior percentage is left unchanged. During an
// active deployment the state machine moves to Scaling.
func (m *Manager) UpdateTrafficSplit(pct float64) error {
	if err := validatePercentage(pct); err != nil {
		return err
	}

	m.mu.Lock()
	old := m.split.Percentage
	m.split.Percentage = pct
	if m.state.Phase != PhaseIdle {
		m.state.Phase = PhaseScaling
		m.state.Percentage = pct
	}
	m.mu.Unlock()

	m.setTelemetryPercentage(pct)

	snapshot := m.metrics.Snapshot(pct)
	m.logger.Info("traffic split updated",
		"old_percentage", old,
		"new_percentage", pct,
	)

	m.publish(Event{
		Type:          EventTrafficSplitChanged,
		Timestamp:     time.Now(),
		Message:       fmt.Sprintf("traffic split %.1f%% -> %.1f%%", old, pct),
		OldPercentage: old,
		NewPercentage: pct,
		Metrics:       &snapshot,
	})

	return nil
}

// RecordRequestMetrics reports the outcome of one request to the branch that
// served it. This is the sole feedback loop for the rollback monitor.
func (m *Manager) RecordRequestMetrics(isCanary, success bool, latencyMS float64) {
	m.metrics.Record(isCanary, success, latencyMS)

	if m.telemetry != nil {
		branch := "stable"
		if isCanary {
			branch = "canary"
		}
		m.telemetry.RecordCanaryRequest(branch, success, latencyMS)
	}
}

// MetricsSnapshot returns a point-in-time copy of both branches' metrics
// paired with the current split percentage.
func (m *Manager) MetricsSnapshot() MetricsSnapshot {
	m.mu.RLock()
	pct := m.split.Percentage
	m.mu.RUnlock()

	return m.metrics.Snapshot(pct)
}

// State returns the current deployment state.
func (m *Manager) State() DeploymentState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// StablePolicy returns a copy of the stable policy.
func (m *Manager) StablePolicy() *policy.Policy {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stable.Clone()
}

// CanaryPolicy returns a copy of the canary policy, or nil when no
// deployment is active.
func (m *Manager) CanaryPolicy() *policy.Policy {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.canary.Clone()
}

// TrafficSplit returns a copy of the current split configuration.
func (m *Manager) TrafficSplit() TrafficSplit {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.split.clone()
}

// RestoreStablePolicy replaces the stable policy. Used by rollback execution
// to reinstate a snapshot's policy.
func (m *Manager) RestoreStablePolicy(p *policy.Policy) error {
	if p == nil {
		return ErrNilPolicy
	}

	m.mu.Lock()
	m.stable = p.Clone()
	m.mu.Unlock()

	m.logger.Info("stable policy restored", "policy_id", p.ID)
	return nil
}

// DroppedEvents reports how many events the bus has discarded.
func (m *Manager) DroppedEvents() int64 {
	return m.eventBus.Dropped()
}

// Subscribe registers a new event receiver on the manager's best-effort
// event feed. Slow receivers see gaps, not producer backpressure.
func (m *Manager) Subscribe() (<-chan Event, func()) {
	return m.eventBus.Subscribe()
}

// Close shuts down the event feed.
func (m *Manager) Close() {
	m.eventBus.Close()
}

func (m *Manager) publish(event Event) {
	m.eventBus.Publish(event)
}

func (m *Manager) setTelemetryPercentage(pct float64) {
	if m.telemetry != nil {
		m.telemetry.SetCanaryPercentage(pct)
	}
}

func (m *Manager) recordCustomFallback() {
	if m.telemetry != nil {
		m.telemetry.RecordCustomCriteriaFallback()
	}
}

// validatePercentage rejects values outside [0,100].
func validatePercentage(pct float64) error {
	if pct < 0 || pct > 100 {
		return &InvalidPercentageError{Percentage: pct}
	}
	return nil
}
