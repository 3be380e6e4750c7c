package updater

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"mercator-hq/callisto/pkg/policy"
	"mercator-hq/callisto/pkg/policy/validation"
)

func goodPolicy(id string) *policy.Policy {
	created := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	return &policy.Policy{
		ID:        id,
		Version:   "1.0.0",
		CreatedAt: created,
		UpdatedAt: created,
		Security: policy.SecuritySection{
			Enabled:          true,
			EnforceTLS:       true,
			TLSMinVersion:    "1.3",
			CipherSuites:     []string{"TLS_AES_256_GCM_SHA384"},
			KeySizeBits:      256,
			PBKDF2Iterations: 600000,
		},
		Monitoring: policy.MonitoringSection{MetricsEnabled: true, SampleRate: 1},
		Authentication: policy.AuthenticationSection{
			Enabled:          true,
			RequireMFA:       true,
			MaxLoginAttempts: 5,
		},
	}
}

func TestUpdatePolicy_Applied(t *testing.T) {
	u, err := New(goodPolicy("initial"), Config{}, nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer u.Close()

	record, err := u.UpdatePolicy(context.Background(), goodPolicy("next"))
	if err != nil {
		t.Fatalf("UpdatePolicy: %v", err)
	}

	if record.Final != PhaseApplied {
		t.Errorf("final phase = %s, want applied", record.Final)
	}
	if got := u.ActivePolicy().ID; got != "next" {
		t.Errorf("active policy = %q, want next", got)
	}
}

func TestUpdatePolicy_ValidationAbortsBeforeMutation(t *testing.T) {
	engine := validation.NewEngine(nil)
	cfg := Config{
		ValidateBeforeApply: true,
		ValidationLevel:     validation.LevelBasic,
	}
	u, err := New(goodPolicy("initial"), cfg, engine, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer u.Close()

	bad := goodPolicy("broken")
	bad.Version = "" // critical finding at basic level

	record, err := u.UpdatePolicy(context.Background(), bad)
	if !errors.Is(err, ErrValidationFailed) {
		t.Fatalf("error = %v, want ErrValidationFailed", err)
	}
	if record.Final != PhaseValidationFailed {
		t.Errorf("final phase = %s, want validation_failed", record.Final)
	}
	if got := u.ActivePolicy().ID; got != "initial" {
		t.Errorf("active policy = %q, want initial (no mutation on validation failure)", got)
	}
}

// TestUpdatePolicy_AutoRollback forces an apply failure with auto-rollback
// enabled and checks the pre-update value is restored and the terminal phase
// is RolledBack.
func TestUpdatePolicy_AutoRollback(t *testing.T) {
	apply := func(ctx context.Context, old, new *policy.Policy) error {
		if new.ID == "poison" {
			return errors.New("host rejected policy")
		}
		return nil
	}

	u, err := New(goodPolicy("initial"), Config{AutoRollback: true}, nil, apply, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer u.Close()

	record, err := u.UpdatePolicy(context.Background(), goodPolicy("poison"))
	if !errors.Is(err, ErrApplyFailed) {
		t.Fatalf("error = %v, want ErrApplyFailed", err)
	}
	if record.Final != PhaseRolledBack {
		t.Errorf("final phase = %s, want rolled_back", record.Final)
	}
	if got := u.ActivePolicy().ID; got != "initial" {
		t.Errorf("active policy = %q, want initial after rollback", got)
	}

	stats := u.Statistics()
	if stats.RolledBack != 1 {
		t.Errorf("rolled back count = %d, want 1", stats.RolledBack)
	}
}

// TestUpdatePolicy_RollbackAlsoFails verifies both errors surface when the
// restoration fails too.
func TestUpdatePolicy_RollbackAlsoFails(t *testing.T) {
	apply := func(ctx context.Context, old, new *policy.Policy) error {
		return errors.New("host rejects everything")
	}

	u, err := New(goodPolicy("initial"), Config{AutoRollback: true}, nil, apply, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer u.Close()

	record, err := u.UpdatePolicy(context.Background(), goodPolicy("next"))
	if !errors.Is(err, ErrApplyFailed) {
		t.Fatalf("error = %v, want ErrApplyFailed in the chain", err)
	}
	if record.Final != PhaseApplyFailed {
		t.Errorf("final phase = %s, want apply_failed", record.Final)
	}
	// Both causes must be visible in the joined error.
	if msg := err.Error(); !strings.Contains(msg, "restoring previous policy") {
		t.Errorf("joined error missing rollback cause: %q", msg)
	}
}

func TestUpdatePolicy_NoAutoRollback(t *testing.T) {
	apply := func(ctx context.Context, old, new *policy.Policy) error {
		return errors.New("rejected")
	}

	u, err := New(goodPolicy("initial"), Config{AutoRollback: false}, nil, apply, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer u.Close()

	record, err := u.UpdatePolicy(context.Background(), goodPolicy("next"))
	if !errors.Is(err, ErrApplyFailed) {
		t.Fatalf("error = %v, want ErrApplyFailed", err)
	}
	if record.Final != PhaseApplyFailed {
		t.Errorf("final phase = %s, want apply_failed", record.Final)
	}
}

func TestUpdatePolicy_EventTrail(t *testing.T) {
	u, err := New(goodPolicy("initial"), Config{}, nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer u.Close()

	ch, cancel := u.Subscribe()
	defer cancel()

	if _, err := u.UpdatePolicy(context.Background(), goodPolicy("next")); err != nil {
		t.Fatal(err)
	}

	want := []Phase{PhaseUpdateStarted, PhaseApplying, PhaseApplied}
	for _, phase := range want {
		select {
		case event := <-ch:
			if event.Type != phase {
				t.Errorf("event = %s, want %s", event.Type, phase)
			}
		case <-time.After(time.Second):
			t.Fatalf("missing event %s", phase)
		}
	}
}

func TestUpdatePolicy_RecordTransitions(t *testing.T) {
	engine := validation.NewEngine(nil)
	cfg := Config{
		ValidateBeforeApply: true,
		ValidationLevel:     validation.LevelStandard,
	}
	u, err := New(goodPolicy("initial"), cfg, engine, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer u.Close()

	record, err := u.UpdatePolicy(context.Background(), goodPolicy("next"))
	if err != nil {
		t.Fatal(err)
	}

	want := []Phase{PhaseUpdateStarted, PhaseValidating, PhaseValidationSuccess, PhaseApplying, PhaseApplied}
	if len(record.Transitions) != len(want) {
		t.Fatalf("transition count = %d, want %d (%+v)", len(record.Transitions), len(want), record.Transitions)
	}
	for i, phase := range want {
		if record.Transitions[i].Phase != phase {
			t.Errorf("transition %d = %s, want %s", i, record.Transitions[i].Phase, phase)
		}
	}
	if record.Duration() < 0 {
		t.Error("duration must be non-negative")
	}
}

func TestHistory_Bounded(t *testing.T) {
	u, err := New(goodPolicy("initial"), Config{MaxHistory: 3}, nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer u.Close()

	for i := 0; i < 5; i++ {
		if _, err := u.UpdatePolicy(context.Background(), goodPolicy("p")); err != nil {
			t.Fatal(err)
		}
	}

	if got := len(u.History(0)); got != 3 {
		t.Errorf("retained history = %d, want 3", got)
	}
	if got := len(u.History(2)); got != 2 {
		t.Errorf("History(2) = %d records, want 2", got)
	}
}

func TestStatistics(t *testing.T) {
	apply := func(ctx context.Context, old, new *policy.Policy) error {
		if new.ID == "poison" {
			return errors.New("rejected")
		}
		return nil
	}

	u, err := New(goodPolicy("initial"), Config{AutoRollback: true}, nil, apply, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer u.Close()

	u.UpdatePolicy(context.Background(), goodPolicy("a"))
	u.UpdatePolicy(context.Background(), goodPolicy("poison"))

	stats := u.Statistics()
	if stats.Total != 2 || stats.Succeeded != 1 || stats.RolledBack != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.SuccessRate() != 50 {
		t.Errorf("success rate = %v, want 50", stats.SuccessRate())
	}
}
