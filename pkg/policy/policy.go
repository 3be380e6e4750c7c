package policy

import (
	"maps"
	"slices"
	"time"
)

// Policy is a complete runtime policy document. The rollout engine treats it
// as an opaque, cloneable, field-comparable value.
type Policy struct {
	// ID uniquely identifies the policy.
	ID string `yaml:"id"`

	// Version is the policy version in x.y.z form.
	Version string `yaml:"version"`

	// CreatedAt is when the policy document was first authored.
	CreatedAt time.Time `yaml:"created_at"`

	// UpdatedAt is when the policy document was last modified.
	UpdatedAt time.Time `yaml:"updated_at"`

	// Security contains transport and key-management settings.
	Security SecuritySection `yaml:"security"`

	// Monitoring contains metrics and alerting settings.
	Monitoring MonitoringSection `yaml:"monitoring"`

	// Authentication contains credential and session settings.
	Authentication AuthenticationSection `yaml:"authentication"`

	// Custom holds host-defined settings the engine does not interpret.
	Custom map[string]any `yaml:"custom,omitempty"`
}

// SecuritySection contains transport and key-management settings.
type SecuritySection struct {
	Enabled          bool     `yaml:"enabled"`
	EnforceTLS       bool     `yaml:"enforce_tls"`
	TLSMinVersion    string   `yaml:"tls_min_version"`
	CipherSuites     []string `yaml:"cipher_suites,omitempty"`
	KeySizeBits      int      `yaml:"key_size_bits"`
	PBKDF2Iterations int      `yaml:"pbkdf2_iterations"`
}

// MonitoringSection contains metrics and alerting settings.
type MonitoringSection struct {
	MetricsEnabled  bool     `yaml:"metrics_enabled"`
	AlertingEnabled bool     `yaml:"alerting_enabled"`
	AlertChannels   []string `yaml:"alert_channels,omitempty"`
	SampleRate      float64  `yaml:"sample_rate"`
}

// AuthenticationSection contains credential and session settings.
type AuthenticationSection struct {
	Enabled          bool          `yaml:"enabled"`
	RequireMFA       bool          `yaml:"require_mfa"`
	SessionTimeout   time.Duration `yaml:"session_timeout"`
	MaxLoginAttempts int           `yaml:"max_login_attempts"`
	TokenLifetime    time.Duration `yaml:"token_lifetime"`
}

// Clone returns a deep copy of the policy. Slices and the custom map are
// copied one level deep; nested maps inside Custom are copied recursively.
func (p *Policy) Clone() *Policy {
	if p == nil {
		return nil
	}

	clone := *p
	clone.Security.CipherSuites = slices.Clone(p.Security.CipherSuites)
	clone.Monitoring.AlertChannels = slices.Clone(p.Monitoring.AlertChannels)
	clone.Custom = cloneCustom(p.Custom)
	return &clone
}

// Equal reports whether two policies have identical field values.
func (p *Policy) Equal(other *Policy) bool {
	if p == nil || other == nil {
		return p == other
	}

	a, b := p.Fields(), other.Fields()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Path != b[i].Path || !ValuesEqual(a[i].Value, b[i].Value) {
			return false
		}
	}
	return true
}

// cloneCustom deep-copies a custom settings map.
func cloneCustom(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}

	out := make(map[string]any, len(m))
	for k, v := range m {
		if nested, ok := v.(map[string]any); ok {
			out[k] = cloneCustom(nested)
			continue
		}
		if s, ok := v.([]any); ok {
			out[k] = slices.Clone(s)
			continue
		}
		out[k] = v
	}
	return out
}

// CustomKeys returns the sorted keys of the custom settings map.
func (p *Policy) CustomKeys() []string {
	return slices.Sorted(maps.Keys(p.Custom))
}
