package audit

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := DefaultStoreConfig()
	cfg.Path = filepath.Join(t.TempDir(), "audit.db")
	s, err := NewStore(cfg)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func insertRecord(t *testing.T, s *Store, component, eventType, policyID string, ts time.Time) Record {
	t.Helper()
	rec := Record{
		ID:        uuid.New().String(),
		Timestamp: ts,
		Component: component,
		EventType: eventType,
		PolicyID:  policyID,
		Detail:    map[string]any{"message": "test"},
	}
	if err := s.Insert(context.Background(), rec); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	return rec
}

func TestStore_InsertAndQuery(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	insertRecord(t, s, "canary", "canary_started", "policy-a", now.Add(-2*time.Hour))
	insertRecord(t, s, "canary", "canary_stopped", "policy-a", now.Add(-time.Hour))
	insertRecord(t, s, "rollback", "rollback_completed", "", now)

	t.Run("all records newest first", func(t *testing.T) {
		got, err := s.Query(ctx, QueryFilter{})
		if err != nil {
			t.Fatalf("Query: %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("got %d records, want 3", len(got))
		}
		if got[0].Component != "rollback" {
			t.Errorf("newest record component = %q, want rollback", got[0].Component)
		}
		if got[0].Detail["message"] != "test" {
			t.Errorf("detail round trip = %v", got[0].Detail)
		}
	})

	t.Run("filter by component", func(t *testing.T) {
		got, err := s.Query(ctx, QueryFilter{Component: "canary"})
		if err != nil {
			t.Fatalf("Query: %v", err)
		}
		if len(got) != 2 {
			t.Errorf("got %d canary records, want 2", len(got))
		}
	})

	t.Run("filter by event type and policy", func(t *testing.T) {
		got, err := s.Query(ctx, QueryFilter{EventType: "canary_started", PolicyID: "policy-a"})
		if err != nil {
			t.Fatalf("Query: %v", err)
		}
		if len(got) != 1 {
			t.Errorf("got %d records, want 1", len(got))
		}
	})

	t.Run("filter by time range", func(t *testing.T) {
		got, err := s.Query(ctx, QueryFilter{
			Since: now.Add(-90 * time.Minute),
			Until: now.Add(-time.Minute),
		})
		if err != nil {
			t.Fatalf("Query: %v", err)
		}
		if len(got) != 1 || got[0].EventType != "canary_stopped" {
			t.Errorf("time range query = %v, want only canary_stopped", got)
		}
	})

	t.Run("limit", func(t *testing.T) {
		got, err := s.Query(ctx, QueryFilter{Limit: 1})
		if err != nil {
			t.Fatalf("Query: %v", err)
		}
		if len(got) != 1 {
			t.Errorf("got %d records, want 1", len(got))
		}
	})
}

func TestStore_Count(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		insertRecord(t, s, "updater", "applied", fmt.Sprintf("p%d", i), time.Now())
	}
	n, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 4 {
		t.Errorf("Count = %d, want 4", n)
	}
}

func TestStore_DeleteBefore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	insertRecord(t, s, "canary", "old", "", now.Add(-48*time.Hour))
	insertRecord(t, s, "canary", "old", "", now.Add(-36*time.Hour))
	insertRecord(t, s, "canary", "recent", "", now)

	deleted, err := s.DeleteBefore(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("DeleteBefore: %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}
	n, _ := s.Count(ctx)
	if n != 1 {
		t.Errorf("remaining = %d, want 1", n)
	}
}

func TestStore_DeleteOverLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	for i := 0; i < 5; i++ {
		insertRecord(t, s, "canary", fmt.Sprintf("ev%d", i), "", base.Add(time.Duration(i)*time.Minute))
	}
	deleted, err := s.DeleteOverLimit(ctx, 2)
	if err != nil {
		t.Fatalf("DeleteOverLimit: %v", err)
	}
	if deleted != 3 {
		t.Errorf("deleted = %d, want 3", deleted)
	}

	got, err := s.Query(ctx, QueryFilter{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("remaining = %d, want 2", len(got))
	}
	// The newest two must survive.
	if got[0].EventType != "ev4" || got[1].EventType != "ev3" {
		t.Errorf("survivors = %s, %s, want ev4, ev3", got[0].EventType, got[1].EventType)
	}
}

func TestStore_Closed(t *testing.T) {
	cfg := DefaultStoreConfig()
	cfg.Path = filepath.Join(t.TempDir(), "audit.db")
	s, err := NewStore(cfg)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	// Closing twice is fine.
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	err = s.Insert(context.Background(), Record{ID: uuid.New().String(), Timestamp: time.Now()})
	if !errors.Is(err, ErrStoreClosed) {
		t.Errorf("Insert after Close = %v, want ErrStoreClosed", err)
	}
}

func TestPruner(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	insertRecord(t, s, "canary", "ancient", "", now.AddDate(0, 0, -10))
	for i := 0; i < 4; i++ {
		insertRecord(t, s, "canary", fmt.Sprintf("ev%d", i), "", now.Add(time.Duration(i)*time.Second))
	}

	p := NewPruner(s, PrunerConfig{RetentionDays: 7, MaxRecords: 2})
	deleted, err := p.Prune(ctx)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	// One by age, two by size.
	if deleted != 3 {
		t.Errorf("deleted = %d, want 3", deleted)
	}
	n, _ := s.Count(ctx)
	if n != 2 {
		t.Errorf("remaining = %d, want 2", n)
	}
}

func TestScheduler_EmptyScheduleIsNoop(t *testing.T) {
	s := newTestStore(t)
	sched := NewScheduler(NewPruner(s, PrunerConfig{}))
	if err := sched.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if sched.IsRunning() {
		t.Error("scheduler running with empty schedule")
	}
}

func TestScheduler_InvalidSchedule(t *testing.T) {
	s := newTestStore(t)
	sched := NewScheduler(NewPruner(s, PrunerConfig{PruneSchedule: "not a cron expr"}))
	if err := sched.Start(context.Background()); err == nil {
		t.Error("expected error for invalid cron schedule")
	}
}

func TestScheduler_StartStop(t *testing.T) {
	s := newTestStore(t)
	sched := NewScheduler(NewPruner(s, PrunerConfig{PruneSchedule: "0 3 * * *"}))

	ctx, cancel := context.WithCancel(context.Background())
	if err := sched.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !sched.IsRunning() {
		t.Error("scheduler not running after Start")
	}
	if sched.NextRun() == nil {
		t.Error("NextRun = nil while running")
	}

	cancel()
	deadline := time.Now().Add(5 * time.Second)
	for sched.IsRunning() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if sched.IsRunning() {
		t.Error("scheduler still running after context cancellation")
	}
}
