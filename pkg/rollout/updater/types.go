package updater

import (
	"fmt"
	"time"
)

// Phase is one step of the per-update state machine.
type Phase string

const (
	// PhaseUpdateStarted marks the beginning of an update.
	PhaseUpdateStarted Phase = "update_started"

	// PhaseValidating marks the validation step, when enabled.
	PhaseValidating Phase = "validating"

	// PhaseValidationSuccess marks a passed validation.
	PhaseValidationSuccess Phase = "validation_success"

	// PhaseValidationFailed marks a failed validation; the update aborts
	// with no mutation.
	PhaseValidationFailed Phase = "validation_failed"

	// PhaseApplying marks the atomic swap attempt.
	PhaseApplying Phase = "applying"

	// PhaseApplied marks a successful swap.
	PhaseApplied Phase = "applied"

	// PhaseApplyFailed marks a failed swap.
	PhaseApplyFailed Phase = "apply_failed"

	// PhaseRolledBack marks a failed swap whose previous value was
	// reinstated.
	PhaseRolledBack Phase = "rolled_back"
)

// Event is published on every phase transition of an update.
type Event struct {
	Type      Phase
	Timestamp time.Time
	Message   string

	UpdateID string
	PolicyID string

	// Err carries the failure cause on failure phases.
	Err string
}

// Transition is one recorded phase change.
type Transition struct {
	Phase     Phase
	Timestamp time.Time
	Message   string
}

// UpdateRecord is the full trail of a single update attempt.
type UpdateRecord struct {
	ID        string
	PolicyID  string
	StartedAt time.Time
	EndedAt   time.Time

	// Final is the terminal phase of the update.
	Final Phase

	Transitions []Transition

	// Err is the terminal error, if any.
	Err string
}

// Duration returns the wall time the update took.
func (r *UpdateRecord) Duration() time.Duration {
	if r.EndedAt.IsZero() {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}

// Statistics accumulates update outcomes across an updater's lifetime.
type Statistics struct {
	Total      int64
	Succeeded  int64
	Failed     int64
	RolledBack int64

	// AverageDurationMS is a rolling mean over completed updates.
	AverageDurationMS float64

	LastUpdate time.Time
}

// SuccessRate returns the success percentage in [0,100].
func (s Statistics) SuccessRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Succeeded) / float64(s.Total) * 100
}

// String summarizes the statistics for logs.
func (s Statistics) String() string {
	return fmt.Sprintf("total=%d succeeded=%d failed=%d rolled_back=%d success_rate=%.1f%%",
		s.Total, s.Succeeded, s.Failed, s.RolledBack, s.SuccessRate())
}
