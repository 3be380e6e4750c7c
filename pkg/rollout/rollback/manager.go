package rollback

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"mercator-hq/callisto/pkg/policy"
	"mercator-hq/callisto/pkg/rollout/canary"
	"mercator-hq/callisto/pkg/rollout/events"
)

// Deployment is the slice of the canary manager the rollback manager needs:
// reading the live state for snapshots and driving traffic back down during
// execution. Satisfied by *canary.Manager.
type Deployment interface {
	StablePolicy() *policy.Policy
	CanaryPolicy() *policy.Policy
	TrafficSplit() canary.TrafficSplit
	State() canary.DeploymentState
	MetricsSnapshot() canary.MetricsSnapshot
	UpdateTrafficSplit(pct float64) error
	StopCanaryDeployment(promote bool) error
	RestoreStablePolicy(p *policy.Policy) error
}

// Telemetry receives rollback measurements. Satisfied by the
// telemetry/metrics collector; nil disables reporting.
type Telemetry interface {
	RecordRollback(kind string, success bool, durationMS float64)
	RecordSnapshotCreated()
}

// Manager owns the snapshot history and rollback execution. All exported
// methods are safe for concurrent use.
//
// Locking: the history lock guards snapshots, the active rollback, and the
// statistics. Deployment calls are made outside the lock.
type Manager struct {
	config     Config
	deployment Deployment
	telemetry  Telemetry
	logger     *slog.Logger

	mu        sync.RWMutex
	snapshots []*DeploymentSnapshot
	active    *ActiveRollback
	stats     Statistics

	eventBus *events.Bus[Event]
}

// NewManager creates a rollback manager bound to a deployment.
func NewManager(cfg Config, deployment Deployment, telemetry Telemetry, logger *slog.Logger) (*Manager, error) {
	if deployment == nil {
		return nil, fmt.Errorf("deployment cannot be nil")
	}
	if logger == nil {
		logger = slog.Default().With("component", "rollout.rollback")
	}
	if cfg.MaxSnapshots <= 0 {
		cfg.MaxSnapshots = DefaultConfig().MaxSnapshots
	}
	if cfg.EvaluationWindow <= 0 {
		cfg.EvaluationWindow = DefaultConfig().EvaluationWindow
	}
	if cfg.MinRequests <= 0 {
		cfg.MinRequests = 1
	}

	return &Manager{
		config:     cfg,
		deployment: deployment,
		telemetry:  telemetry,
		logger:     logger,
		eventBus:   events.NewBus[Event]("rollback", 0, logger),
	}, nil
}

// CreateSnapshot captures the current deployment state, including fresh
// metrics, and appends it to the bounded history. Past MaxSnapshots the
// oldest entry is evicted.
func (m *Manager) CreateSnapshot(reason string) (*DeploymentSnapshot, error) {
	snapshot := &DeploymentSnapshot{
		ID:           uuid.NewString(),
		Timestamp:    time.Now(),
		StablePolicy: m.deployment.StablePolicy(),
		CanaryPolicy: m.deployment.CanaryPolicy(),
		TrafficSplit: m.deployment.TrafficSplit(),
		Metrics:      m.deployment.MetricsSnapshot(),
		State:        m.deployment.State(),
		Reason:       reason,
	}

	m.mu.Lock()
	m.snapshots = append(m.snapshots, snapshot)
	for len(m.snapshots) > m.config.MaxSnapshots {
		m.snapshots = m.snapshots[1:]
	}
	count := len(m.snapshots)
	m.mu.Unlock()

	if m.telemetry != nil {
		m.telemetry.RecordSnapshotCreated()
	}

	m.logger.Info("deployment snapshot created",
		"snapshot_id", snapshot.ID,
		"reason", reason,
		"history_size", count,
	)

	m.eventBus.Publish(Event{
		Type:       EventSnapshotCreated,
		Timestamp:  snapshot.Timestamp,
		Message:    fmt.Sprintf("snapshot created: %s", reason),
		SnapshotID: snapshot.ID,
		Reason:     reason,
	})

	return snapshot, nil
}

// Snapshots returns the history oldest-first.
func (m *Manager) Snapshots() []*DeploymentSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*DeploymentSnapshot, len(m.snapshots))
	copy(out, m.snapshots)
	return out
}

// GetSnapshot returns the snapshot with the given ID.
func (m *Manager) GetSnapshot(id string) (*DeploymentSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, s := range m.snapshots {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, &SnapshotNotFoundError{SnapshotID: id}
}

// ShouldTriggerAutoRollback is the pure trigger predicate: true iff
// automatic rollback is enabled, the canary branch has enough samples, and
// either the error rate or the average latency breaches its threshold.
func (m *Manager) ShouldTriggerAutoRollback(metrics canary.MetricsSnapshot) bool {
	if !m.config.Enabled {
		return false
	}
	if metrics.Canary.TotalRequests < m.config.MinRequests {
		return false
	}

	if metrics.Canary.ErrorRate() > m.config.ErrorRateThreshold {
		return true
	}
	if metrics.Canary.AverageLatencyMS > m.config.ResponseTimeThresholdMS {
		return true
	}
	return false
}

// TriggerAutoRollback restores the most recent snapshot whose deployment
// state was Idle. It fails with ErrNoStableSnapshot when none exists and
// with ErrRollbackInProgress when another rollback is executing.
func (m *Manager) TriggerAutoRollback(ctx context.Context, reason string, metrics canary.MetricsSnapshot) error {
	target, err := m.latestStableSnapshot()
	if err != nil {
		return err
	}

	rb, err := m.beginRollback(target.ID, KindAutomatic, reason, "")
	if err != nil {
		return err
	}

	m.logger.Warn("automatic rollback triggered",
		"rollback_id", rb.ID,
		"snapshot_id", target.ID,
		"reason", reason,
		"canary_error_rate", metrics.Canary.ErrorRate(),
		"canary_avg_latency_ms", metrics.Canary.AverageLatencyMS,
	)

	m.eventBus.Publish(Event{
		Type:       EventAutoRollbackTriggered,
		Timestamp:  rb.StartTime,
		Message:    fmt.Sprintf("automatic rollback: %s", reason),
		SnapshotID: target.ID,
		RollbackID: rb.ID,
		Kind:       KindAutomatic,
		Reason:     reason,
	})

	return m.execute(ctx, rb, target)
}

// InitiateManualRollback restores an explicitly named snapshot on behalf of
// an operator. Unknown snapshot IDs fail with ErrSnapshotNotFound.
func (m *Manager) InitiateManualRollback(ctx context.Context, snapshotID, initiator, reason string) error {
	target, err := m.GetSnapshot(snapshotID)
	if err != nil {
		return err
	}

	rb, err := m.beginRollback(target.ID, KindManual, reason, initiator)
	if err != nil {
		return err
	}

	m.logger.Info("manual rollback initiated",
		"rollback_id", rb.ID,
		"snapshot_id", target.ID,
		"initiator", initiator,
		"reason", reason,
	)

	m.eventBus.Publish(Event{
		Type:       EventManualRollbackInitiated,
		Timestamp:  rb.StartTime,
		Message:    fmt.Sprintf("manual rollback by %s: %s", initiator, reason),
		SnapshotID: target.ID,
		RollbackID: rb.ID,
		Kind:       KindManual,
		Reason:     reason,
		Initiator:  initiator,
	})

	return m.execute(ctx, rb, target)
}

// ActiveRollback returns a copy of the rollback in flight, or nil.
func (m *Manager) ActiveRollback() *ActiveRollback {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.active == nil {
		return nil
	}
	active := *m.active
	return &active
}

// Statistics returns a copy of the cumulative rollback statistics.
func (m *Manager) Statistics() Statistics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}

// DroppedEvents reports how many events the bus has discarded.
func (m *Manager) DroppedEvents() int64 {
	return m.eventBus.Dropped()
}

// Subscribe registers a new event receiver on the manager's best-effort
// event feed.
func (m *Manager) Subscribe() (<-chan Event, func()) {
	return m.eventBus.Subscribe()
}

// Close shuts down the event feed.
func (m *Manager) Close() {
	m.eventBus.Close()
}

// latestStableSnapshot returns the most recent snapshot captured while the
// deployment was Idle.
func (m *Manager) latestStableSnapshot() (*DeploymentSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := len(m.snapshots) - 1; i >= 0; i-- {
		if m.snapshots[i].State.Phase == canary.PhaseIdle {
			return m.snapshots[i], nil
		}
	}
	return nil, ErrNoStableSnapshot
}

// beginRollback installs the active rollback, enforcing the one-in-flight
// gate.
func (m *Manager) beginRollback(targetID string, kind RollbackKind, reason, initiator string) (*ActiveRollback, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		return nil, ErrRollbackInProgress
	}

	rb := &ActiveRollback{
		ID:               uuid.NewString(),
		TargetSnapshotID: targetID,
		StartTime:        time.Now(),
		Stage:            -1,
		Kind:             kind,
		Reason:           reason,
		Initiator:        initiator,
	}
	m.active = rb
	return rb, nil
}

// execute runs the rollback to completion and finalizes it. Staged
// execution is used when configured and the deployment is still live.
func (m *Manager) execute(ctx context.Context, rb *ActiveRollback, target *DeploymentSnapshot) error {
	var err error
	if m.config.Staged.Enabled && len(m.config.Staged.Stages) > 0 &&
		m.deployment.State().Phase != canary.PhaseIdle {
		err = m.executeStaged(ctx, rb)
	}

	if err == nil {
		err = m.restoreTarget(rb, target)
	}

	duration := time.Since(rb.StartTime)
	if err != nil {
		execErr := &ExecutionError{
			RollbackID: rb.ID,
			Progress:   m.progressOf(rb.ID),
			Cause:      err,
		}
		m.completeRollback(rb, false, duration, execErr)
		return execErr
	}

	m.completeRollback(rb, true, duration, nil)
	return nil
}

// executeStaged steps the canary percentage down through the configured
// stages. Any stage failure, the total-duration bound, or context
// cancellation jumps the rollback straight to zero percent; the final
// restore in execute still runs.
func (m *Manager) executeStaged(ctx context.Context, rb *ActiveRollback) error {
	stages := make([]Stage, len(m.config.Staged.Stages))
	copy(stages, m.config.Staged.Stages)
	sort.Slice(stages, func(i, j int) bool {
		return stages[i].TargetPercentage > stages[j].TargetPercentage
	})

	deadline := time.Time{}
	if m.config.Staged.MaxTotalDuration > 0 {
		deadline = rb.StartTime.Add(m.config.Staged.MaxTotalDuration)
	}

	for i, stage := range stages {
		if !deadline.IsZero() && time.Now().After(deadline) {
			m.logger.Warn("staged rollback exceeded max total duration, jumping to zero",
				"rollback_id", rb.ID,
				"stage", i,
			)
			return nil
		}

		m.setStage(rb.ID, i, float64(i)/float64(len(stages)+1))

		if err := m.deployment.UpdateTrafficSplit(stage.TargetPercentage); err != nil {
			return fmt.Errorf("stage %d (%.1f%%): %w", i, stage.TargetPercentage, err)
		}

		m.logger.Info("staged rollback milestone applied",
			"rollback_id", rb.ID,
			"stage", i,
			"target_percentage", stage.TargetPercentage,
		)

		if err := sleepCtx(ctx, stage.Duration); err != nil {
			return err
		}

		if m.config.Staged.Reevaluate && !m.ShouldTriggerAutoRollback(m.deployment.MetricsSnapshot()) {
			m.logger.Info("canary recovered during staged rollback, proceeding directly to final restore",
				"rollback_id", rb.ID,
				"stage", i,
			)
			return nil
		}

		if i < len(stages)-1 {
			if err := sleepCtx(ctx, m.config.Staged.StageDelay); err != nil {
				return err
			}
		}
	}

	return nil
}

// restoreTarget performs the final cutover: traffic to zero, deployment
// stopped, and the snapshot's stable policy reinstated.
func (m *Manager) restoreTarget(rb *ActiveRollback, target *DeploymentSnapshot) error {
	if m.deployment.State().Phase != canary.PhaseIdle {
		if err := m.deployment.UpdateTrafficSplit(0); err != nil {
			return fmt.Errorf("zeroing traffic split: %w", err)
		}
		if err := m.deployment.StopCanaryDeployment(false); err != nil {
			return fmt.Errorf("stopping canary deployment: %w", err)
		}
	}

	m.setStage(rb.ID, -1, 0.9)

	if err := m.deployment.RestoreStablePolicy(target.StablePolicy); err != nil {
		return fmt.Errorf("restoring stable policy: %w", err)
	}

	return nil
}

// completeRollback updates cumulative statistics, clears the active
// rollback, and emits the terminal event.
func (m *Manager) completeRollback(rb *ActiveRollback, success bool, duration time.Duration, execErr *ExecutionError) {
	durationMS := float64(duration.Milliseconds())

	m.mu.Lock()
	m.stats.Total++
	if success {
		m.stats.Succeeded++
	} else {
		m.stats.Failed++
	}
	n := float64(m.stats.Total)
	m.stats.AverageDurationMS = (m.stats.AverageDurationMS*(n-1) + durationMS) / n
	m.stats.LastRollback = time.Now()
	progress := 1.0
	if m.active != nil && !success {
		progress = m.active.Progress
	}
	m.active = nil
	m.mu.Unlock()

	if m.telemetry != nil {
		m.telemetry.RecordRollback(rb.Kind.String(), success, durationMS)
	}

	event := Event{
		Timestamp:  time.Now(),
		SnapshotID: rb.TargetSnapshotID,
		RollbackID: rb.ID,
		Kind:       rb.Kind,
		Reason:     rb.Reason,
		Initiator:  rb.Initiator,
		DurationMS: durationMS,
		Progress:   progress,
	}

	if success {
		event.Type = EventRollbackCompleted
		event.Message = fmt.Sprintf("rollback completed in %.0fms", durationMS)
		m.logger.Info("rollback completed",
			"rollback_id", rb.ID,
			"duration_ms", durationMS,
		)
	} else {
		event.Type = EventRollbackFailed
		event.Message = fmt.Sprintf("rollback failed at %.0f%% completion", progress*100)
		if execErr != nil {
			event.Err = execErr.Error()
		}
		m.logger.Error("rollback failed",
			"rollback_id", rb.ID,
			"duration_ms", durationMS,
			"progress", progress,
			"error", event.Err,
		)
	}

	m.eventBus.Publish(event)
}

// setStage updates the active rollback's stage and progress.
func (m *Manager) setStage(rollbackID string, stage int, progress float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil && m.active.ID == rollbackID {
		m.active.Stage = stage
		m.active.Progress = progress
	}
}

// progressOf reads the active rollback's progress.
func (m *Manager) progressOf(rollbackID string) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.active != nil && m.active.ID == rollbackID {
		return m.active.Progress
	}
	return 0
}

// sleepCtx waits for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
