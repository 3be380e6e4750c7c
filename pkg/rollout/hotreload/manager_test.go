package hotreload

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"mercator-hq/callisto/pkg/policy"
)

func testPolicy(id string) *policy.Policy {
	return &policy.Policy{
		ID:      id,
		Version: "1.0.0",
	}
}

func TestReload_ImmediateSwapsPolicy(t *testing.T) {
	m := NewManager(testPolicy("old"), Config{}, nil)
	defer m.Close()

	if err := m.Reload(context.Background(), testPolicy("new")); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if got := m.ActivePolicy().ID; got != "new" {
		t.Errorf("active policy = %q, want %q", got, "new")
	}
}

func TestReload_NilPolicy(t *testing.T) {
	m := NewManager(testPolicy("old"), Config{}, nil)
	defer m.Close()

	if err := m.Reload(context.Background(), nil); !errors.Is(err, ErrNilPolicy) {
		t.Errorf("Reload(nil) = %v, want ErrNilPolicy", err)
	}
}

func TestReload_SingleInFlight(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	cfg := Config{
		Options: Options{Strategy: StrategyBlueGreen, ValidationPeriod: time.Millisecond},
		Validate: func(ctx context.Context, _ *policy.Policy) error {
			close(started)
			<-release
			return nil
		},
	}
	m := NewManager(testPolicy("old"), cfg, nil)
	defer m.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := m.Reload(context.Background(), testPolicy("first")); err != nil {
			t.Errorf("first reload: %v", err)
		}
	}()

	<-started
	if err := m.Reload(context.Background(), testPolicy("second")); !errors.Is(err, ErrReloadInProgress) {
		t.Errorf("concurrent reload = %v, want ErrReloadInProgress", err)
	}
	close(release)
	wg.Wait()

	if got := m.ActivePolicy().ID; got != "first" {
		t.Errorf("active policy = %q, want %q", got, "first")
	}
}

func TestReload_GradualRunsAllStages(t *testing.T) {
	var checked int
	cfg := Config{
		Options: Options{
			Strategy:   StrategyGradual,
			Stages:     []GradualStage{{Name: "smoke"}, {Name: "soak"}, {Name: "full"}},
			StageDelay: time.Millisecond,
		},
		Validate: func(ctx context.Context, _ *policy.Policy) error {
			checked++
			return nil
		},
	}
	m := NewManager(testPolicy("old"), cfg, nil)
	defer m.Close()

	if err := m.Reload(context.Background(), testPolicy("new")); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if checked != 3 {
		t.Errorf("validate called %d times, want 3", checked)
	}
	if got := m.ActivePolicy().ID; got != "new" {
		t.Errorf("active policy = %q, want %q", got, "new")
	}

	hist := m.History(1)
	if len(hist) != 1 {
		t.Fatalf("history length = %d, want 1", len(hist))
	}
	if len(hist[0].Stages) != 3 {
		t.Errorf("recorded stages = %d, want 3", len(hist[0].Stages))
	}
	for _, s := range hist[0].Stages {
		if !s.Passed {
			t.Errorf("stage %q not marked passed", s.Name)
		}
	}
}

func TestReload_GradualStageFailureKeepsOldPolicy(t *testing.T) {
	boom := errors.New("latency regression")
	calls := 0
	cfg := Config{
		Options: Options{
			Strategy:   StrategyGradual,
			Stages:     []GradualStage{{Name: "smoke"}, {Name: "soak"}},
			StageDelay: time.Millisecond,
		},
		Validate: func(ctx context.Context, _ *policy.Policy) error {
			calls++
			if calls == 2 {
				return boom
			}
			return nil
		},
	}
	m := NewManager(testPolicy("old"), cfg, nil)
	defer m.Close()

	err := m.Reload(context.Background(), testPolicy("new"))
	if !errors.Is(err, ErrValidationFailed) {
		t.Errorf("Reload = %v, want ErrValidationFailed", err)
	}
	var stageErr *StageError
	if !errors.As(err, &stageErr) {
		t.Fatalf("Reload error %v is not a StageError", err)
	}
	if stageErr.Stage != "soak" {
		t.Errorf("failing stage = %q, want %q", stageErr.Stage, "soak")
	}
	if got := m.ActivePolicy().ID; got != "old" {
		t.Errorf("active policy = %q, want unchanged %q", got, "old")
	}
}

func TestReload_BlueGreenValidationFailure(t *testing.T) {
	cfg := Config{
		Options: Options{Strategy: StrategyBlueGreen, ValidationPeriod: time.Millisecond},
		Validate: func(ctx context.Context, _ *policy.Policy) error {
			return errors.New("error budget exhausted")
		},
	}
	m := NewManager(testPolicy("old"), cfg, nil)
	defer m.Close()

	if err := m.Reload(context.Background(), testPolicy("new")); !errors.Is(err, ErrValidationFailed) {
		t.Errorf("Reload = %v, want ErrValidationFailed", err)
	}
	if got := m.ActivePolicy().ID; got != "old" {
		t.Errorf("active policy = %q, want unchanged %q", got, "old")
	}
}

func TestReload_GracefulDrains(t *testing.T) {
	drained := false
	cfg := Config{
		Options: Options{Strategy: StrategyGraceful, GracePeriod: time.Millisecond},
		Drain: func(ctx context.Context) error {
			drained = true
			return nil
		},
	}
	m := NewManager(testPolicy("old"), cfg, nil)
	defer m.Close()

	if err := m.Reload(context.Background(), testPolicy("new")); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if !drained {
		t.Error("drain hook was not invoked")
	}
	if got := m.ActivePolicy().ID; got != "new" {
		t.Errorf("active policy = %q, want %q", got, "new")
	}
}

func TestReload_ContextCanceledDuringGracePeriod(t *testing.T) {
	cfg := Config{
		Options: Options{Strategy: StrategyGraceful, GracePeriod: time.Minute},
	}
	m := NewManager(testPolicy("old"), cfg, nil)
	defer m.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.Reload(ctx, testPolicy("new")); !errors.Is(err, context.Canceled) {
		t.Errorf("Reload = %v, want context.Canceled", err)
	}
	if got := m.ActivePolicy().ID; got != "old" {
		t.Errorf("active policy = %q, want unchanged %q", got, "old")
	}
}

func TestReload_EventsAndStatistics(t *testing.T) {
	m := NewManager(testPolicy("old"), Config{}, nil)
	defer m.Close()

	ch, cancel := m.Subscribe()
	defer cancel()

	if err := m.Reload(context.Background(), testPolicy("new")); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	want := []EventType{EventReloadStarted, EventReloadCompleted}
	for _, wt := range want {
		select {
		case ev := <-ch:
			if ev.Type != wt {
				t.Errorf("event = %s, want %s", ev.Type, wt)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for %s", wt)
		}
	}

	stats := m.Statistics()
	if stats.Total != 1 || stats.Completed != 1 || stats.Failed != 0 {
		t.Errorf("statistics = %+v, want one completed reload", stats)
	}
	if got := stats.SuccessRate(); got != 100 {
		t.Errorf("success rate = %v, want 100", got)
	}
}

func TestHistory_Bounded(t *testing.T) {
	m := NewManager(testPolicy("base"), Config{Options: Options{MaxHistory: 3}}, nil)
	defer m.Close()

	for i := 0; i < 5; i++ {
		if err := m.Reload(context.Background(), testPolicy(fmt.Sprintf("p%d", i))); err != nil {
			t.Fatalf("Reload %d: %v", i, err)
		}
	}
	hist := m.History(0)
	if len(hist) != 3 {
		t.Fatalf("history length = %d, want 3", len(hist))
	}
	if hist[len(hist)-1].PolicyID != "p4" {
		t.Errorf("newest record = %q, want %q", hist[len(hist)-1].PolicyID, "p4")
	}
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		in      string
		want    Strategy
		wantErr bool
	}{
		{"immediate", StrategyImmediate, false},
		{"", StrategyImmediate, false},
		{"graceful", StrategyGraceful, false},
		{"gradual", StrategyGradual, false},
		{"blue-green", StrategyBlueGreen, false},
		{"bluegreen", StrategyBlueGreen, false},
		{"canary", StrategyImmediate, true},
	}
	for _, tc := range tests {
		got, err := ParseStrategy(tc.in)
		if tc.wantErr {
			if !errors.Is(err, ErrUnknownStrategy) {
				t.Errorf("ParseStrategy(%q) err = %v, want ErrUnknownStrategy", tc.in, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("ParseStrategy(%q) = %v, %v, want %v", tc.in, got, err, tc.want)
		}
	}
}
