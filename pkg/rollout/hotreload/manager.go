package hotreload

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"mercator-hq/callisto/pkg/policy"
	"mercator-hq/callisto/pkg/rollout/events"
)

// EventType identifies what a reload Event describes.
type EventType string

const (
	EventReloadStarted   EventType = "reload_started"
	EventStagePassed     EventType = "reload_stage_passed"
	EventReloadCompleted EventType = "reload_completed"
	EventReloadFailed    EventType = "reload_failed"
)

// Event is published on the manager's bus as a reload progresses.
type Event struct {
	Type      EventType
	ReloadID  string
	Strategy  Strategy
	PolicyID  string
	Stage     string
	Error     string
	Timestamp time.Time
}

// ValidateFunc checks a candidate policy during gradual stages and the
// blue-green soak. Returning an error aborts the reload.
type ValidateFunc func(ctx context.Context, candidate *policy.Policy) error

// DrainFunc tells the host to stop accepting new work ahead of a graceful
// cutover. It is called once, before the grace period starts.
type DrainFunc func(ctx context.Context) error

// Telemetry receives reload outcomes. Implementations must be safe for
// concurrent use.
type Telemetry interface {
	RecordHotReload(strategy, outcome string)
}

// Config carries the manager's collaborators. All fields are optional.
type Config struct {
	Options Options

	// Validate runs the candidate checks for gradual and blue-green
	// reloads. Nil means every check passes.
	Validate ValidateFunc

	// Drain is invoked before a graceful cutover. Nil skips draining.
	Drain DrainFunc

	EventBufferSize int
	Telemetry       Telemetry
}

// Manager performs hot policy reloads under a fixed cutover strategy.
type Manager struct {
	opts     Options
	validate ValidateFunc
	drain    DrainFunc
	tel      Telemetry
	logger   *slog.Logger

	mu     sync.RWMutex
	active *policy.Policy

	inFlight atomic.Bool

	histMu  sync.Mutex
	history []Record
	stats   Statistics

	bus *events.Bus[Event]
}

// NewManager returns a manager whose active policy starts at initial.
func NewManager(initial *policy.Policy, cfg Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "hotreload")

	opts := cfg.Options
	def := DefaultOptions()
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = def.GracePeriod
	}
	if opts.StageDelay <= 0 {
		opts.StageDelay = def.StageDelay
	}
	if opts.ValidationPeriod <= 0 {
		opts.ValidationPeriod = def.ValidationPeriod
	}
	if opts.MaxHistory <= 0 {
		opts.MaxHistory = def.MaxHistory
	}

	bufSize := cfg.EventBufferSize
	if bufSize <= 0 {
		bufSize = events.DefaultBufferSize
	}

	return &Manager{
		opts:     opts,
		validate: cfg.Validate,
		drain:    cfg.Drain,
		tel:      cfg.Telemetry,
		logger:   logger,
		active:   initial.Clone(),
		bus:      events.NewBus[Event]("hotreload", bufSize, logger),
	}
}

// ActivePolicy returns a copy of the currently effective policy.
func (m *Manager) ActivePolicy() *policy.Policy {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active.Clone()
}

// Strategy reports the cutover strategy this manager was built with.
func (m *Manager) Strategy() Strategy {
	return m.opts.Strategy
}

// Reload replaces the active policy with candidate using the configured
// strategy. Only one reload may run at a time; concurrent calls fail with
// ErrReloadInProgress. On any failure the active policy is unchanged.
func (m *Manager) Reload(ctx context.Context, candidate *policy.Policy) error {
	if candidate == nil {
		return ErrNilPolicy
	}
	if !m.inFlight.CompareAndSwap(false, true) {
		return ErrReloadInProgress
	}
	defer m.inFlight.Store(false)

	rec := Record{
		ID:        uuid.New().String(),
		Strategy:  m.opts.Strategy,
		PolicyID:  candidate.ID,
		StartedAt: time.Now(),
	}

	m.logger.Info("reload started",
		"reload_id", rec.ID,
		"strategy", m.opts.Strategy.String(),
		"policy_id", candidate.ID)
	m.publish(Event{Type: EventReloadStarted, ReloadID: rec.ID, Strategy: m.opts.Strategy, PolicyID: candidate.ID})

	var err error
	switch m.opts.Strategy {
	case StrategyGraceful:
		err = m.reloadGraceful(ctx, candidate)
	case StrategyGradual:
		err = m.reloadGradual(ctx, candidate, &rec)
	case StrategyBlueGreen:
		err = m.reloadBlueGreen(ctx, candidate)
	default:
		m.swap(candidate)
	}

	rec.FinishedAt = time.Now()
	if err != nil {
		rec.Outcome = OutcomeFailed
		rec.Error = err.Error()
		m.logger.Error("reload failed",
			"reload_id", rec.ID,
			"strategy", m.opts.Strategy.String(),
			"error", err)
		m.publish(Event{Type: EventReloadFailed, ReloadID: rec.ID, Strategy: m.opts.Strategy, PolicyID: candidate.ID, Error: err.Error()})
	} else {
		rec.Outcome = OutcomeCompleted
		m.logger.Info("reload completed",
			"reload_id", rec.ID,
			"strategy", m.opts.Strategy.String(),
			"policy_id", candidate.ID,
			"duration", rec.Duration())
		m.publish(Event{Type: EventReloadCompleted, ReloadID: rec.ID, Strategy: m.opts.Strategy, PolicyID: candidate.ID})
	}
	m.record(rec)
	if m.tel != nil {
		m.tel.RecordHotReload(m.opts.Strategy.String(), string(rec.Outcome))
	}
	return err
}

func (m *Manager) reloadGraceful(ctx context.Context, candidate *policy.Policy) error {
	if m.drain != nil {
		if err := m.drain(ctx); err != nil {
			return fmt.Errorf("draining before cutover: %w", err)
		}
	}
	if err := sleepCtx(ctx, m.opts.GracePeriod); err != nil {
		return err
	}
	m.swap(candidate)
	return nil
}

func (m *Manager) reloadGradual(ctx context.Context, candidate *policy.Policy, rec *Record) error {
	stages := m.opts.Stages
	if len(stages) == 0 {
		stages = []GradualStage{{Name: "default"}}
	}
	for i, stage := range stages {
		if i > 0 {
			if err := sleepCtx(ctx, m.opts.StageDelay); err != nil {
				return err
			}
		}
		start := time.Now()
		if err := sleepCtx(ctx, stage.Duration); err != nil {
			return err
		}
		err := m.check(ctx, candidate)
		res := StageResult{Name: stage.Name, Passed: err == nil, Duration: time.Since(start)}
		if err != nil {
			res.Error = err.Error()
			rec.Stages = append(rec.Stages, res)
			return &StageError{Stage: stage.Name, Cause: err}
		}
		rec.Stages = append(rec.Stages, res)
		m.logger.Debug("reload stage passed", "reload_id", rec.ID, "stage", stage.Name)
		m.publish(Event{Type: EventStagePassed, ReloadID: rec.ID, Strategy: m.opts.Strategy, PolicyID: candidate.ID, Stage: stage.Name})
	}
	m.swap(candidate)
	return nil
}

func (m *Manager) reloadBlueGreen(ctx context.Context, candidate *policy.Policy) error {
	if err := sleepCtx(ctx, m.opts.ValidationPeriod); err != nil {
		return err
	}
	if err := m.check(ctx, candidate); err != nil {
		return fmt.Errorf("%w: %w", ErrValidationFailed, err)
	}
	m.swap(candidate)
	return nil
}

func (m *Manager) check(ctx context.Context, candidate *policy.Policy) error {
	if m.validate == nil {
		return nil
	}
	return m.validate(ctx, candidate)
}

func (m *Manager) swap(candidate *policy.Policy) {
	m.mu.Lock()
	m.active = candidate.Clone()
	m.mu.Unlock()
}

func (m *Manager) record(rec Record) {
	m.histMu.Lock()
	defer m.histMu.Unlock()

	m.history = append(m.history, rec)
	if len(m.history) > m.opts.MaxHistory {
		m.history = m.history[len(m.history)-m.opts.MaxHistory:]
	}

	m.stats.Total++
	switch rec.Outcome {
	case OutcomeCompleted:
		m.stats.Completed++
	case OutcomeFailed:
		m.stats.Failed++
	}
	n := time.Duration(m.stats.Total)
	m.stats.AverageDuration = (m.stats.AverageDuration*(n-1) + rec.Duration()) / n
}

// History returns the most recent reload records, newest last. A limit of
// zero or less returns everything retained.
func (m *Manager) History(limit int) []Record {
	m.histMu.Lock()
	defer m.histMu.Unlock()
	if limit <= 0 || limit > len(m.history) {
		limit = len(m.history)
	}
	out := make([]Record, limit)
	copy(out, m.history[len(m.history)-limit:])
	return out
}

// Statistics returns aggregate reload counters.
func (m *Manager) Statistics() Statistics {
	m.histMu.Lock()
	defer m.histMu.Unlock()
	return m.stats
}

// DroppedEvents reports how many events the bus has discarded.
func (m *Manager) DroppedEvents() int64 {
	return m.bus.Dropped()
}

// Subscribe returns a channel of reload events and a cancel function.
func (m *Manager) Subscribe() (<-chan Event, func()) {
	return m.bus.Subscribe()
}

// Close shuts down the event bus.
func (m *Manager) Close() {
	m.bus.Close()
}

func (m *Manager) publish(ev Event) {
	ev.Timestamp = time.Now()
	m.bus.Publish(ev)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
