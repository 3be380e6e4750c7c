package updater

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"mercator-hq/callisto/pkg/policy"
	"mercator-hq/callisto/pkg/policy/validation"
	"mercator-hq/callisto/pkg/rollout/events"
)

// ApplyFunc observes and may veto the policy swap. It is called inside the
// updater's critical section with the outgoing and incoming policies; a
// non-nil error rejects the swap. A nil ApplyFunc accepts every swap.
type ApplyFunc func(ctx context.Context, old, new *policy.Policy) error

// Telemetry receives update measurements. Satisfied by the
// telemetry/metrics collector; nil disables reporting.
type Telemetry interface {
	RecordPolicyUpdate(result string, durationMS float64)
	RecordValidation(level string, valid bool)
}

// Config tunes the updater.
type Config struct {
	// ValidateBeforeApply runs the validation engine before mutating
	// anything. A critical finding aborts the update.
	ValidateBeforeApply bool

	// ValidationLevel is the level used when validation is enabled.
	ValidationLevel validation.Level

	// AutoRollback reinstates the previous policy when the apply step
	// fails.
	AutoRollback bool

	// MaxHistory bounds the retained update records. Defaults to 100.
	MaxHistory int

	// EventBufferSize is the per-subscriber event channel capacity.
	EventBufferSize int

	// Telemetry receives measurements. Optional.
	Telemetry Telemetry
}

// Updater owns the active policy and performs atomic updates against it.
// All exported methods are safe for concurrent use.
type Updater struct {
	config    Config
	engine    *validation.Engine
	apply     ApplyFunc
	logger    *slog.Logger
	telemetry Telemetry

	mu      sync.RWMutex
	active  *policy.Policy
	history []*UpdateRecord
	stats   Statistics

	// previousByUpdate stashes the outgoing policy per update so a
	// failed apply can reinstate exactly what was replaced. Guarded by mu.
	previousByUpdate map[string]*policy.Policy

	eventBus *events.Bus[Event]
}

// New creates an updater holding the given initial policy.
func New(initial *policy.Policy, cfg Config, engine *validation.Engine, apply ApplyFunc, logger *slog.Logger) (*Updater, error) {
	if initial == nil {
		return nil, ErrNilPolicy
	}
	if cfg.ValidateBeforeApply && engine == nil {
		return nil, fmt.Errorf("validation enabled but engine is nil")
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = 100
	}
	if logger == nil {
		logger = slog.Default().With("component", "rollout.updater")
	}

	return &Updater{
		config:    cfg,
		engine:    engine,
		apply:     apply,
		logger:    logger,
		telemetry: cfg.Telemetry,
		active:    initial.Clone(),
		eventBus:  events.NewBus[Event]("updater", cfg.EventBufferSize, logger),
	}, nil
}

// ActivePolicy returns a copy of the currently active policy.
func (u *Updater) ActivePolicy() *policy.Policy {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.active.Clone()
}

// UpdatePolicy replaces the active policy with the candidate. Validation
// failures abort before mutation; the swap itself is a single critical
// section and is never partially visible. On apply failure with
// AutoRollback enabled the previous policy is reinstated and the terminal
// phase is RolledBack.
func (u *Updater) UpdatePolicy(ctx context.Context, candidate *policy.Policy) (*UpdateRecord, error) {
	if candidate == nil {
		return nil, ErrNilPolicy
	}

	record := &UpdateRecord{
		ID:        uuid.NewString(),
		PolicyID:  candidate.ID,
		StartedAt: time.Now(),
	}
	u.transition(record, PhaseUpdateStarted, fmt.Sprintf("update of policy %q started", candidate.ID), "")

	if u.config.ValidateBeforeApply {
		if err := u.validate(record, candidate); err != nil {
			u.finish(record, PhaseValidationFailed, err)
			return record, err
		}
	}

	err := u.applySwap(ctx, record, candidate)
	if err == nil {
		u.finish(record, PhaseApplied, nil)
		return record, nil
	}

	if !u.config.AutoRollback {
		u.finish(record, PhaseApplyFailed, err)
		return record, err
	}

	if rbErr := u.rollbackSwap(ctx, record); rbErr != nil {
		// Both the apply and the restoration failed; surface both.
		joined := errors.Join(err, rbErr)
		u.finish(record, PhaseApplyFailed, joined)
		return record, joined
	}

	u.finish(record, PhaseRolledBack, err)
	return record, err
}

// validate runs the validation engine against the candidate.
func (u *Updater) validate(record *UpdateRecord, candidate *policy.Policy) error {
	u.transition(record, PhaseValidating,
		fmt.Sprintf("validating at level %s", u.config.ValidationLevel), "")

	result := u.engine.Validate(candidate, u.config.ValidationLevel)
	if u.telemetry != nil {
		u.telemetry.RecordValidation(u.config.ValidationLevel.String(), result.IsValid)
	}

	if !result.IsValid {
		err := &ValidationFailedError{
			PolicyID:      candidate.ID,
			CriticalCount: result.CriticalCount(),
		}
		u.transition(record, PhaseValidationFailed, err.Error(), err.Error())
		return err
	}

	u.transition(record, PhaseValidationSuccess, "validation passed", "")
	return nil
}

// applySwap performs the swap inside one critical section: readers never
// observe a torn policy, only the complete old value or the complete new
// one. The apply hook runs after the commit; a hook rejection fails the
// update and leaves restoration to rollbackSwap.
func (u *Updater) applySwap(ctx context.Context, record *UpdateRecord, candidate *policy.Policy) error {
	u.transition(record, PhaseApplying, "applying policy", "")

	u.mu.Lock()
	defer u.mu.Unlock()

	old := u.active
	u.previousFor(record.ID, old)
	u.active = candidate.Clone()

	if u.apply != nil {
		if err := u.apply(ctx, old, u.active); err != nil {
			return fmt.Errorf("%w: %v", ErrApplyFailed, err)
		}
	}
	return nil
}

// rollbackSwap reapplies the policy that was active before the update.
func (u *Updater) rollbackSwap(ctx context.Context, record *UpdateRecord) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	old := u.takePrevious(record.ID)
	if old == nil {
		return fmt.Errorf("no previous policy recorded for update %s", record.ID)
	}

	rejected := u.active
	u.active = old
	if u.apply != nil {
		if err := u.apply(ctx, rejected, old); err != nil {
			return fmt.Errorf("restoring previous policy: %w", err)
		}
	}
	return nil
}

// finish closes out the record, folds it into history and statistics, and
// emits the terminal event.
func (u *Updater) finish(record *UpdateRecord, final Phase, err error) {
	record.EndedAt = time.Now()
	record.Final = final
	if err != nil {
		record.Err = err.Error()
	}
	if final != record.Transitions[len(record.Transitions)-1].Phase {
		u.transition(record, final, fmt.Sprintf("update finished: %s", final), record.Err)
	}

	durationMS := float64(record.Duration().Milliseconds())

	u.mu.Lock()
	u.history = append(u.history, record)
	for len(u.history) > u.config.MaxHistory {
		u.history = u.history[1:]
	}

	u.stats.Total++
	switch final {
	case PhaseApplied:
		u.stats.Succeeded++
	case PhaseRolledBack:
		u.stats.RolledBack++
	default:
		u.stats.Failed++
	}
	n := float64(u.stats.Total)
	u.stats.AverageDurationMS = (u.stats.AverageDurationMS*(n-1) + durationMS) / n
	u.stats.LastUpdate = time.Now()
	u.mu.Unlock()

	if u.telemetry != nil {
		u.telemetry.RecordPolicyUpdate(string(final), durationMS)
	}

	if err != nil {
		u.logger.Error("policy update finished",
			"update_id", record.ID,
			"policy_id", record.PolicyID,
			"final", string(final),
			"duration_ms", durationMS,
			"error", err,
		)
	} else {
		u.logger.Info("policy update finished",
			"update_id", record.ID,
			"policy_id", record.PolicyID,
			"final", string(final),
			"duration_ms", durationMS,
		)
	}
}

// transition appends a phase to the record and publishes it.
func (u *Updater) transition(record *UpdateRecord, phase Phase, message, errMsg string) {
	now := time.Now()
	record.Transitions = append(record.Transitions, Transition{
		Phase:     phase,
		Timestamp: now,
		Message:   message,
	})

	u.eventBus.Publish(Event{
		Type:      phase,
		Timestamp: now,
		Message:   message,
		UpdateID:  record.ID,
		PolicyID:  record.PolicyID,
		Err:       errMsg,
	})
}

// History returns up to limit most recent update records, newest last.
// limit <= 0 returns the full retained history.
func (u *Updater) History(limit int) []*UpdateRecord {
	u.mu.RLock()
	defer u.mu.RUnlock()

	n := len(u.history)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]*UpdateRecord, n)
	copy(out, u.history[len(u.history)-n:])
	return out
}

// Statistics returns a copy of the cumulative update statistics.
func (u *Updater) Statistics() Statistics {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.stats
}

// DroppedEvents reports how many events the bus has discarded.
func (u *Updater) DroppedEvents() int64 {
	return u.eventBus.Dropped()
}

// Subscribe registers a new event receiver on the updater's best-effort
// event feed.
func (u *Updater) Subscribe() (<-chan Event, func()) {
	return u.eventBus.Subscribe()
}

// Close shuts down the event feed.
func (u *Updater) Close() {
	u.eventBus.Close()
}

// previous-policy bookkeeping: the swap stashes the outgoing policy per
// update so a later rollback can reinstate exactly what was replaced.

func (u *Updater) previousFor(updateID string, old *policy.Policy) {
	if u.previousByUpdate == nil {
		u.previousByUpdate = make(map[string]*policy.Policy)
	}
	u.previousByUpdate[updateID] = old
}

func (u *Updater) takePrevious(updateID string) *policy.Policy {
	old := u.previousByUpdate[updateID]
	delete(u.previousByUpdate, updateID)
	return old
}
