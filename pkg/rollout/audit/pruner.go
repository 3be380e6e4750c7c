package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// PrunerConfig bounds the audit table by age and size.
type PrunerConfig struct {
	// RetentionDays removes records older than this many days. Zero
	// disables age-based pruning.
	RetentionDays int

	// MaxRecords keeps only the newest records. Zero disables size-based
	// pruning.
	MaxRecords int64

	// PruneSchedule is a standard cron expression, e.g. "0 3 * * *" for
	// daily at 3 AM. Empty disables the scheduler.
	PruneSchedule string
}

// Pruner removes expired audit records from a Store.
type Pruner struct {
	store  *Store
	config PrunerConfig
	logger *slog.Logger
}

// NewPruner returns a pruner for store.
func NewPruner(store *Store, config PrunerConfig) *Pruner {
	return &Pruner{
		store:  store,
		config: config,
		logger: slog.Default().With("component", "audit.pruner"),
	}
}

// Prune applies age-based and then size-based pruning, returning the total
// number of deleted records.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	var total int64

	if p.config.RetentionDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -p.config.RetentionDays)
		deleted, err := p.store.DeleteBefore(ctx, cutoff)
		if err != nil {
			return total, fmt.Errorf("pruning by age: %w", err)
		}
		total += deleted
	}

	if p.config.MaxRecords > 0 {
		deleted, err := p.store.DeleteOverLimit(ctx, p.config.MaxRecords)
		if err != nil {
			return total, fmt.Errorf("pruning by size: %w", err)
		}
		total += deleted
	}

	return total, nil
}

// Scheduler runs the pruner on a cron schedule.
type Scheduler struct {
	pruner *Pruner
	cron   *cron.Cron
	logger *slog.Logger

	mu      sync.Mutex
	running bool
}

// NewScheduler returns a scheduler driving pruner.
func NewScheduler(pruner *Pruner) *Scheduler {
	return &Scheduler{
		pruner: pruner,
		cron:   cron.New(),
		logger: slog.Default().With("component", "audit.scheduler"),
	}
}

// Start begins scheduled pruning. An empty schedule is a no-op. The
// scheduler stops itself when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	schedule := s.pruner.config.PruneSchedule
	if schedule == "" {
		s.logger.Info("prune schedule not configured, skipping scheduler")
		return nil
	}

	if _, err := cron.ParseStandard(schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", schedule, err)
	}
	if _, err := s.cron.AddFunc(schedule, func() { s.runPruning(ctx) }); err != nil {
		return fmt.Errorf("scheduling audit pruning: %w", err)
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("audit pruning scheduler started",
		"schedule", schedule,
		"retention_days", s.pruner.config.RetentionDays,
		"max_records", s.pruner.config.MaxRecords)

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

func (s *Scheduler) runPruning(ctx context.Context) {
	deleted, err := s.pruner.Prune(ctx)
	if err != nil {
		s.logger.Error("scheduled audit pruning failed", "error", err)
		return
	}
	if deleted > 0 {
		s.logger.Info("scheduled audit pruning completed", "deleted_count", deleted)
	} else {
		s.logger.Debug("scheduled audit pruning completed, nothing to delete")
	}
}

// Stop halts the scheduler and waits for any running job to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info("audit pruning scheduler stopped")
}

// IsRunning reports whether the scheduler is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled pruning time, nil when idle.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
