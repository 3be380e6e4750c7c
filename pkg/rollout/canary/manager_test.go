package canary

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"mercator-hq/callisto/pkg/policy"
)

func stablePolicy() *policy.Policy {
	return &policy.Policy{ID: "stable", Version: "1.0.0"}
}

func canaryPolicy() *policy.Policy {
	return &policy.Policy{ID: "candidate", Version: "1.1.0"}
}

func newTestManager(t *testing.T, split TrafficSplit) *Manager {
	t.Helper()

	m, err := NewManager(stablePolicy(), split, nil, nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(m.Close)
	return m
}

func userSplit(pct float64) TrafficSplit {
	return TrafficSplit{
		Percentage: pct,
		Criteria:   SplitCriteria{Kind: CriteriaUserIDHash},
	}
}

func TestStartCanaryDeployment(t *testing.T) {
	m := newTestManager(t, userSplit(0))

	if err := m.StartCanaryDeployment(canaryPolicy(), 25); err != nil {
		t.Fatalf("StartCanaryDeployment: %v", err)
	}

	state := m.State()
	if state.Phase != PhaseCanaryActive {
		t.Errorf("phase = %s, want canary_active", state.Phase)
	}
	if state.Percentage != 25 {
		t.Errorf("percentage = %v, want 25", state.Percentage)
	}
	if state.StartedAt.IsZero() {
		t.Error("StartedAt should be set")
	}
}

func TestStartCanaryDeployment_Conflicts(t *testing.T) {
	m := newTestManager(t, userSplit(0))

	if err := m.StartCanaryDeployment(canaryPolicy(), 10); err != nil {
		t.Fatalf("first start: %v", err)
	}

	err := m.StartCanaryDeployment(canaryPolicy(), 20)
	if !errors.Is(err, ErrDeploymentActive) {
		t.Errorf("second start error = %v, want ErrDeploymentActive", err)
	}
}

func TestStartCanaryDeployment_InvalidInput(t *testing.T) {
	m := newTestManager(t, userSplit(0))

	if err := m.StartCanaryDeployment(canaryPolicy(), 150); !errors.Is(err, ErrInvalidPercentage) {
		t.Errorf("error = %v, want ErrInvalidPercentage", err)
	}
	if err := m.StartCanaryDeployment(nil, 10); !errors.Is(err, ErrNilPolicy) {
		t.Errorf("error = %v, want ErrNilPolicy", err)
	}
	if m.State().Phase != PhaseIdle {
		t.Error("failed start must leave the manager idle")
	}
}

func TestShouldUseCanary_NoDeployment(t *testing.T) {
	m := newTestManager(t, userSplit(100))

	if m.ShouldUseCanary(RequestContext{UserID: "u1"}) {
		t.Error("no canary policy: ShouldUseCanary must be false")
	}
}

// TestShouldUseCanary_Deterministic verifies that routing is stable per user
// for a fixed percentage.
func TestShouldUseCanary_Deterministic(t *testing.T) {
	m := newTestManager(t, userSplit(0))
	if err := m.StartCanaryDeployment(canaryPolicy(), 50); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 20; i++ {
		user := fmt.Sprintf("user-%d", i)
		first := m.ShouldUseCanary(RequestContext{UserID: user})
		for j := 0; j < 10; j++ {
			if got := m.ShouldUseCanary(RequestContext{UserID: user}); got != first {
				t.Fatalf("user %s got inconsistent decisions", user)
			}
		}
	}
}

// TestShouldUseCanary_Convergence checks that the empirical canary fraction
// over many distinct users converges to the configured percentage.
func TestShouldUseCanary_Convergence(t *testing.T) {
	m := newTestManager(t, userSplit(0))
	if err := m.StartCanaryDeployment(canaryPolicy(), 25); err != nil {
		t.Fatal(err)
	}

	const users = 10000
	hits := 0
	for i := 0; i < users; i++ {
		if m.ShouldUseCanary(RequestContext{UserID: fmt.Sprintf("user-%d", i)}) {
			hits++
		}
	}

	fraction := float64(hits) / users * 100
	if fraction < 22 || fraction > 28 {
		t.Errorf("canary fraction = %.2f%%, want within [22,28]", fraction)
	}
}

func TestShouldUseCanary_ForceGroupWins(t *testing.T) {
	split := TrafficSplit{
		Percentage: 0, // hashing alone would never pick canary
		Criteria:   SplitCriteria{Kind: CriteriaUserIDHash},
		UserGroups: []UserGroup{
			{Name: "beta", Users: []string{"vip-1", "vip-2"}, ForceCanary: true},
			{Name: "observers", Users: []string{"viewer-1"}, ForceCanary: false},
		},
	}
	m := newTestManager(t, split)
	if err := m.StartCanaryDeployment(canaryPolicy(), 0); err != nil {
		t.Fatal(err)
	}

	if !m.ShouldUseCanary(RequestContext{UserID: "vip-1"}) {
		t.Error("force-canary member must always route to canary")
	}
	if m.ShouldUseCanary(RequestContext{UserID: "viewer-1"}) {
		t.Error("non-forced group member must follow hashing")
	}
	if m.ShouldUseCanary(RequestContext{UserID: "outsider"}) {
		t.Error("0%% split must not route outsiders to canary")
	}
}

func TestShouldUseCanary_IPCriteria(t *testing.T) {
	m := newTestManager(t, TrafficSplit{
		Percentage: 0,
		Criteria:   SplitCriteria{Kind: CriteriaIPAddressHash},
	})
	if err := m.StartCanaryDeployment(canaryPolicy(), 50); err != nil {
		t.Fatal(err)
	}

	ctx := RequestContext{IPAddress: "10.0.0.7"}
	first := m.ShouldUseCanary(ctx)
	for i := 0; i < 10; i++ {
		if m.ShouldUseCanary(ctx) != first {
			t.Fatal("IP hashing must be deterministic per address")
		}
	}
}

// TestShouldUseCanary_CustomFallsBack verifies the Custom criteria degrades
// to random hashing and reports the fallback.
func TestShouldUseCanary_CustomFallsBack(t *testing.T) {
	tel := &fakeTelemetry{}
	m, err := NewManager(stablePolicy(), TrafficSplit{
		Percentage: 0,
		Criteria:   SplitCriteria{Kind: CriteriaCustom, Name: "geo"},
	}, &ManagerConfig{Telemetry: tel}, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()

	if err := m.StartCanaryDeployment(canaryPolicy(), 100); err != nil {
		t.Fatal(err)
	}

	if !m.ShouldUseCanary(RequestContext{RequestID: "r1"}) {
		t.Error("100%% split must route everything to canary")
	}
	if tel.customFallbacks == 0 {
		t.Error("custom criteria fallback must be reported to telemetry")
	}
}

func TestUpdateTrafficSplit_RejectsOutOfRange(t *testing.T) {
	m := newTestManager(t, userSplit(30))

	for _, pct := range []float64{-1, 100.01, 250} {
		err := m.UpdateTrafficSplit(pct)
		if !errors.Is(err, ErrInvalidPercentage) {
			t.Errorf("UpdateTrafficSplit(%v) error = %v, want ErrInvalidPercentage", pct, err)
		}
	}

	if got := m.TrafficSplit().Percentage; got != 30 {
		t.Errorf("percentage after rejected updates = %v, want 30", got)
	}
}

func TestUpdateTrafficSplit_EmitsEvent(t *testing.T) {
	m := newTestManager(t, userSplit(10))
	ch, cancel := m.Subscribe()
	defer cancel()

	if err := m.UpdateTrafficSplit(40); err != nil {
		t.Fatal(err)
	}

	select {
	case event := <-ch:
		if event.Type != EventTrafficSplitChanged {
			t.Errorf("event type = %s, want traffic_split_changed", event.Type)
		}
		if event.OldPercentage != 10 || event.NewPercentage != 40 {
			t.Errorf("event percentages = %v -> %v, want 10 -> 40", event.OldPercentage, event.NewPercentage)
		}
		if event.Metrics == nil {
			t.Error("split change event should carry a metrics snapshot")
		}
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
}

func TestUpdateTrafficSplit_ScalingPhase(t *testing.T) {
	m := newTestManager(t, userSplit(0))
	if err := m.StartCanaryDeployment(canaryPolicy(), 10); err != nil {
		t.Fatal(err)
	}

	if err := m.UpdateTrafficSplit(50); err != nil {
		t.Fatal(err)
	}
	if got := m.State().Phase; got != PhaseScaling {
		t.Errorf("phase = %s, want scaling", got)
	}

	// Scaling still routes traffic to the canary.
	hits := 0
	for i := 0; i < 1000; i++ {
		if m.ShouldUseCanary(RequestContext{UserID: fmt.Sprintf("u%d", i)}) {
			hits++
		}
	}
	if hits == 0 {
		t.Error("scaling phase should still route to canary")
	}
}

// TestRecordRequestMetrics records 50 failed canary requests at 500ms and
// checks the error count is 50 and the average latency is 500.
func TestRecordRequestMetrics(t *testing.T) {
	m := newTestManager(t, userSplit(25))

	for i := 0; i < 50; i++ {
		m.RecordRequestMetrics(true, false, 500)
	}
	m.RecordRequestMetrics(false, true, 20)

	snap := m.MetricsSnapshot()
	if snap.Canary.ErrorCount != 50 {
		t.Errorf("canary error count = %d, want 50", snap.Canary.ErrorCount)
	}
	if snap.Canary.AverageLatencyMS != 500 {
		t.Errorf("canary avg latency = %v, want 500", snap.Canary.AverageLatencyMS)
	}
	if snap.Canary.ErrorRate() != 100 {
		t.Errorf("canary error rate = %v, want 100", snap.Canary.ErrorRate())
	}
	if snap.Stable.TotalRequests != 1 || snap.Stable.SuccessCount != 1 {
		t.Errorf("stable counters = %+v, want 1 success", snap.Stable)
	}
	if snap.SplitPercentage != 25 {
		t.Errorf("snapshot split = %v, want 25", snap.SplitPercentage)
	}
}

func TestOnlineAverage(t *testing.T) {
	var b BranchMetrics
	for _, latency := range []float64{100, 200, 300} {
		b.record(true, latency)
	}
	if b.AverageLatencyMS != 200 {
		t.Errorf("average = %v, want 200", b.AverageLatencyMS)
	}
	if b.MaxLatencyMS != 300 {
		t.Errorf("max = %v, want 300", b.MaxLatencyMS)
	}
}

func TestStartCanaryDeployment_ResetsMetrics(t *testing.T) {
	m := newTestManager(t, userSplit(0))

	m.RecordRequestMetrics(true, false, 100)
	if err := m.StartCanaryDeployment(canaryPolicy(), 10); err != nil {
		t.Fatal(err)
	}

	snap := m.MetricsSnapshot()
	if snap.Canary.TotalRequests != 0 {
		t.Errorf("canary counters not reset: %+v", snap.Canary)
	}
}

func TestStopCanaryDeployment_Promote(t *testing.T) {
	m := newTestManager(t, userSplit(0))
	if err := m.StartCanaryDeployment(canaryPolicy(), 10); err != nil {
		t.Fatal(err)
	}

	if err := m.StopCanaryDeployment(true); err != nil {
		t.Fatal(err)
	}

	if m.State().Phase != PhaseIdle {
		t.Error("stop must return the manager to idle")
	}
	if got := m.StablePolicy().ID; got != "candidate" {
		t.Errorf("stable policy after promotion = %q, want candidate", got)
	}
	if m.CanaryPolicy() != nil {
		t.Error("canary policy should be cleared after stop")
	}

	if err := m.StopCanaryDeployment(false); !errors.Is(err, ErrNoActiveDeployment) {
		t.Errorf("second stop error = %v, want ErrNoActiveDeployment", err)
	}
}

func TestRestoreStablePolicy(t *testing.T) {
	m := newTestManager(t, userSplit(0))

	restored := &policy.Policy{ID: "rolled-back", Version: "0.9.0"}
	if err := m.RestoreStablePolicy(restored); err != nil {
		t.Fatal(err)
	}
	if got := m.StablePolicy().ID; got != "rolled-back" {
		t.Errorf("stable policy = %q, want rolled-back", got)
	}
}

// fakeTelemetry records calls for assertions.
type fakeTelemetry struct {
	requests        int
	percentage      float64
	customFallbacks int
}

func (f *fakeTelemetry) RecordCanaryRequest(branch string, success bool, latencyMS float64) {
	f.requests++
}

func (f *fakeTelemetry) SetCanaryPercentage(pct float64) {
	f.percentage = pct
}

func (f *fakeTelemetry) RecordCustomCriteriaFallback() {
	f.customFallbacks++
}
