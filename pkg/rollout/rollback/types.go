package rollback

import (
	"fmt"
	"time"

	"mercator-hq/callisto/pkg/policy"
	"mercator-hq/callisto/pkg/rollout/canary"
)

// Config tunes automatic rollback behavior and snapshot retention.
type Config struct {
	// Enabled gates the automatic rollback predicate. Manual rollbacks
	// work regardless.
	Enabled bool `yaml:"enabled"`

	// ErrorRateThreshold is the canary error percentage above which an
	// automatic rollback triggers.
	ErrorRateThreshold float64 `yaml:"error_rate_threshold"`

	// ResponseTimeThresholdMS is the canary average latency above which
	// an automatic rollback triggers.
	ResponseTimeThresholdMS float64 `yaml:"response_time_threshold_ms"`

	// EvaluationWindow is the monitor tick interval.
	EvaluationWindow time.Duration `yaml:"evaluation_window"`

	// MinRequests is the minimum canary sample size before the predicate
	// can trigger. Protects against deciding on a handful of requests.
	MinRequests int64 `yaml:"min_requests"`

	// MaxSnapshots bounds the snapshot history. Oldest entries are
	// evicted first; the most recent entry is never evicted.
	MaxSnapshots int `yaml:"max_snapshots"`

	// Staged configures incremental traffic step-down. When disabled,
	// rollback cuts the canary to zero in one step.
	Staged StagedConfig `yaml:"staged"`
}

// StagedConfig describes incremental canary-traffic reduction through
// ordered milestones.
type StagedConfig struct {
	Enabled bool `yaml:"enabled"`

	// Stages are applied in order; each sets the canary percentage and
	// holds it for its duration.
	Stages []Stage `yaml:"stages"`

	// StageDelay is the pause between consecutive stages.
	StageDelay time.Duration `yaml:"stage_delay"`

	// MaxTotalDuration bounds the whole staged run. When exceeded the
	// rollback jumps straight to zero percent.
	MaxTotalDuration time.Duration `yaml:"max_total_duration"`

	// Reevaluate re-checks the trigger predicate between stages. When the
	// canary has recovered the remaining stages are abandoned and the
	// rollback proceeds directly to the final restore; it is not called
	// off.
	Reevaluate bool `yaml:"reevaluate"`
}

// Stage is one milestone of a staged rollback.
type Stage struct {
	// TargetPercentage is the canary percentage this stage drops to.
	TargetPercentage float64 `yaml:"target_percentage"`

	// Duration is how long the stage holds before moving on.
	Duration time.Duration `yaml:"duration"`

	// Criteria optionally names the evaluation criteria for the stage.
	Criteria string `yaml:"criteria,omitempty"`
}

// DefaultConfig returns production-ready rollback defaults.
func DefaultConfig() Config {
	return Config{
		Enabled:                 true,
		ErrorRateThreshold:      5.0,
		ResponseTimeThresholdMS: 2000,
		EvaluationWindow:        30 * time.Second,
		MinRequests:             1,
		MaxSnapshots:            50,
	}
}

// DeploymentSnapshot is an immutable capture of the deployment at a point in
// time, used as a rollback target.
type DeploymentSnapshot struct {
	ID           string
	Timestamp    time.Time
	StablePolicy *policy.Policy
	CanaryPolicy *policy.Policy
	TrafficSplit canary.TrafficSplit
	Metrics      canary.MetricsSnapshot
	State        canary.DeploymentState
	Reason       string
}

// RollbackKind distinguishes automatic from operator-initiated rollbacks.
type RollbackKind int

const (
	// KindAutomatic is a monitor-triggered rollback.
	KindAutomatic RollbackKind = iota

	// KindManual is an operator-initiated rollback.
	KindManual
)

// String returns the kind name.
func (k RollbackKind) String() string {
	switch k {
	case KindAutomatic:
		return "automatic"
	case KindManual:
		return "manual"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ActiveRollback is the transient state of a rollback in flight.
type ActiveRollback struct {
	ID               string
	TargetSnapshotID string
	StartTime        time.Time

	// Stage is the index of the staged milestone being executed, -1 for
	// single-step rollbacks.
	Stage int

	// Progress is completion in [0,1].
	Progress float64

	Kind RollbackKind

	// Reason is set for automatic rollbacks.
	Reason string

	// Initiator is set for manual rollbacks.
	Initiator string
}

// Statistics accumulates rollback outcomes across a manager's lifetime.
type Statistics struct {
	Total     int64
	Succeeded int64
	Failed    int64

	// AverageDurationMS is a rolling mean over completed rollbacks.
	AverageDurationMS float64

	LastRollback time.Time
}

// SuccessRate returns the success percentage in [0,100].
func (s Statistics) SuccessRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Succeeded) / float64(s.Total) * 100
}

// EventType identifies a rollback lifecycle event.
type EventType string

const (
	// EventSnapshotCreated fires when a deployment snapshot is captured.
	EventSnapshotCreated EventType = "snapshot_created"

	// EventAutoRollbackTriggered fires when thresholds are breached.
	EventAutoRollbackTriggered EventType = "auto_rollback_triggered"

	// EventManualRollbackInitiated fires for operator rollbacks.
	EventManualRollbackInitiated EventType = "manual_rollback_initiated"

	// EventRollbackCompleted fires on successful completion.
	EventRollbackCompleted EventType = "rollback_completed"

	// EventRollbackFailed fires once when a rollback fails; failed
	// rollbacks are not retried.
	EventRollbackFailed EventType = "rollback_failed"
)

// Event is a rollback lifecycle notification.
type Event struct {
	Type      EventType
	Timestamp time.Time
	Message   string

	SnapshotID string
	RollbackID string
	Kind       RollbackKind
	Reason     string
	Initiator  string

	// Progress carries the partial-completion fraction on failure, when
	// known.
	Progress float64

	// DurationMS is set on completion events.
	DurationMS float64

	// Err carries the failure cause on EventRollbackFailed.
	Err string
}
