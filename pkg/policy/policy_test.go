package policy

import (
	"testing"
	"time"
)

// testPolicy returns a fully-populated policy for tests.
func testPolicy() *Policy {
	created := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	return &Policy{
		ID:        "default",
		Version:   "1.2.0",
		CreatedAt: created,
		UpdatedAt: created.Add(time.Hour),
		Security: SecuritySection{
			Enabled:          true,
			EnforceTLS:       true,
			TLSMinVersion:    "1.2",
			CipherSuites:     []string{"TLS_AES_128_GCM_SHA256"},
			KeySizeBits:      256,
			PBKDF2Iterations: 100000,
		},
		Monitoring: MonitoringSection{
			MetricsEnabled:  true,
			AlertingEnabled: true,
			AlertChannels:   []string{"pagerduty"},
			SampleRate:      1.0,
		},
		Authentication: AuthenticationSection{
			Enabled:          true,
			RequireMFA:       true,
			SessionTimeout:   30 * time.Minute,
			MaxLoginAttempts: 5,
			TokenLifetime:    time.Hour,
		},
		Custom: map[string]any{
			"environment": "production",
		},
	}
}

func TestClone_Independence(t *testing.T) {
	original := testPolicy()
	clone := original.Clone()

	if !original.Equal(clone) {
		t.Fatal("clone should equal original")
	}

	// Mutating the clone must not affect the original.
	clone.Security.CipherSuites[0] = "TLS_CHACHA20_POLY1305_SHA256"
	clone.Custom["environment"] = "staging"

	if original.Security.CipherSuites[0] != "TLS_AES_128_GCM_SHA256" {
		t.Error("clone mutation leaked into original cipher suites")
	}
	if original.Custom["environment"] != "production" {
		t.Error("clone mutation leaked into original custom map")
	}
}

func TestClone_Nil(t *testing.T) {
	var p *Policy
	if p.Clone() != nil {
		t.Error("cloning nil policy should return nil")
	}
}

func TestEqual(t *testing.T) {
	a := testPolicy()
	b := testPolicy()

	if !a.Equal(b) {
		t.Fatal("identical policies should be equal")
	}

	b.Authentication.MaxLoginAttempts = 3
	if a.Equal(b) {
		t.Error("policies with different fields should not be equal")
	}
}

func TestFields_StableOrder(t *testing.T) {
	p := testPolicy()
	p.Custom["beta"] = 2
	p.Custom["alpha"] = 1

	first := p.Fields()
	second := p.Fields()

	if len(first) != len(second) {
		t.Fatalf("field count changed between calls: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Path != second[i].Path {
			t.Errorf("field order unstable at %d: %q vs %q", i, first[i].Path, second[i].Path)
		}
	}

	// Custom keys come last, sorted.
	paths := make(map[string]int)
	for i, f := range first {
		paths[f.Path] = i
	}
	if paths["custom.alpha"] > paths["custom.beta"] {
		t.Error("custom fields should be sorted by key")
	}
}

func TestValuesEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b any
		want bool
	}{
		{"both nil", nil, nil, true},
		{"one nil", nil, "x", false},
		{"equal strings", "a", "a", true},
		{"equal slices", []string{"a", "b"}, []string{"a", "b"}, true},
		{"different slices", []string{"a"}, []string{"b"}, false},
		{"equal maps", map[string]any{"k": 1}, map[string]any{"k": 1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValuesEqual(tt.a, tt.b); got != tt.want {
				t.Errorf("ValuesEqual(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}
