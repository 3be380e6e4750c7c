package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"mercator-hq/callisto/pkg/rollout/canary"
	"mercator-hq/callisto/pkg/rollout/hotreload"
	"mercator-hq/callisto/pkg/rollout/rollback"
	"mercator-hq/callisto/pkg/rollout/updater"
)

// Sink receives audit records. *Store satisfies it.
type Sink interface {
	Insert(ctx context.Context, rec Record) error
}

// Recorder drains component event channels into a Sink. Each Consume call
// starts one goroutine that runs until its channel closes or the context is
// cancelled; Wait blocks until all of them have finished.
type Recorder struct {
	sink   Sink
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewRecorder returns a recorder writing to sink.
func NewRecorder(sink Sink, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		sink:   sink,
		logger: logger.With("component", "audit.recorder"),
	}
}

// ConsumeCanary records traffic-split lifecycle events.
func (r *Recorder) ConsumeCanary(ctx context.Context, ch <-chan canary.Event) {
	consume(r, ctx, ch, func(ev canary.Event) Record {
		detail := map[string]any{
			"message":        ev.Message,
			"old_percentage": ev.OldPercentage,
			"new_percentage": ev.NewPercentage,
		}
		if ev.Type == canary.EventCanaryStopped {
			detail["promoted"] = ev.Promoted
		}
		if ev.Metrics != nil {
			detail["canary_error_rate"] = ev.Metrics.Canary.ErrorRate()
			detail["stable_error_rate"] = ev.Metrics.Stable.ErrorRate()
		}
		return Record{
			Timestamp: ev.Timestamp,
			Component: "canary",
			EventType: string(ev.Type),
			PolicyID:  ev.PolicyID,
			Detail:    detail,
		}
	})
}

// ConsumeRollback records snapshot and rollback lifecycle events.
func (r *Recorder) ConsumeRollback(ctx context.Context, ch <-chan rollback.Event) {
	consume(r, ctx, ch, func(ev rollback.Event) Record {
		detail := map[string]any{
			"message":     ev.Message,
			"snapshot_id": ev.SnapshotID,
			"rollback_id": ev.RollbackID,
			"kind":        ev.Kind.String(),
			"reason":      ev.Reason,
		}
		if ev.Initiator != "" {
			detail["initiator"] = ev.Initiator
		}
		if ev.Err != "" {
			detail["error"] = ev.Err
			detail["progress"] = ev.Progress
		}
		if ev.DurationMS > 0 {
			detail["duration_ms"] = ev.DurationMS
		}
		return Record{
			Timestamp: ev.Timestamp,
			Component: "rollback",
			EventType: string(ev.Type),
			Detail:    detail,
		}
	})
}

// ConsumeUpdates records policy update phases.
func (r *Recorder) ConsumeUpdates(ctx context.Context, ch <-chan updater.Event) {
	consume(r, ctx, ch, func(ev updater.Event) Record {
		detail := map[string]any{
			"message":   ev.Message,
			"update_id": ev.UpdateID,
		}
		if ev.Err != "" {
			detail["error"] = ev.Err
		}
		return Record{
			Timestamp: ev.Timestamp,
			Component: "updater",
			EventType: string(ev.Type),
			PolicyID:  ev.PolicyID,
			Detail:    detail,
		}
	})
}

// ConsumeReloads records hot-reload lifecycle events.
func (r *Recorder) ConsumeReloads(ctx context.Context, ch <-chan hotreload.Event) {
	consume(r, ctx, ch, func(ev hotreload.Event) Record {
		detail := map[string]any{
			"reload_id": ev.ReloadID,
			"strategy":  ev.Strategy.String(),
		}
		if ev.Stage != "" {
			detail["stage"] = ev.Stage
		}
		if ev.Error != "" {
			detail["error"] = ev.Error
		}
		return Record{
			Timestamp: ev.Timestamp,
			Component: "hotreload",
			EventType: string(ev.Type),
			PolicyID:  ev.PolicyID,
			Detail:    detail,
		}
	})
}

// Wait blocks until every Consume goroutine has drained its channel.
func (r *Recorder) Wait() {
	r.wg.Wait()
}

func consume[T any](r *Recorder, ctx context.Context, ch <-chan T, toRecord func(T) Record) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				rec := toRecord(ev)
				rec.ID = uuid.New().String()
				if rec.Timestamp.IsZero() {
					rec.Timestamp = time.Now()
				}
				if err := r.sink.Insert(ctx, rec); err != nil {
					r.logger.Error("failed to persist audit record",
						"record_component", rec.Component,
						"event_type", rec.EventType,
						"error", err)
				}
			}
		}
	}()
}
