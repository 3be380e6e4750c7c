package policy

import (
	"fmt"
	"reflect"
)

// Field is a single flattened policy setting: a dotted path and its value.
type Field struct {
	Path  string
	Value any
}

// Fields flattens the policy into an ordered list of path/value pairs
// covering the top-level identity fields and the security, monitoring, and
// authentication sections, followed by custom settings in sorted key order.
//
// The ordering is stable across calls for the same policy shape, which lets
// callers diff two policies positionally.
func (p *Policy) Fields() []Field {
	if p == nil {
		return nil
	}

	fields := []Field{
		{Path: "id", Value: p.ID},
		{Path: "version", Value: p.Version},
		{Path: "created_at", Value: p.CreatedAt},
		{Path: "updated_at", Value: p.UpdatedAt},

		{Path: "security.enabled", Value: p.Security.Enabled},
		{Path: "security.enforce_tls", Value: p.Security.EnforceTLS},
		{Path: "security.tls_min_version", Value: p.Security.TLSMinVersion},
		{Path: "security.cipher_suites", Value: p.Security.CipherSuites},
		{Path: "security.key_size_bits", Value: p.Security.KeySizeBits},
		{Path: "security.pbkdf2_iterations", Value: p.Security.PBKDF2Iterations},

		{Path: "monitoring.metrics_enabled", Value: p.Monitoring.MetricsEnabled},
		{Path: "monitoring.alerting_enabled", Value: p.Monitoring.AlertingEnabled},
		{Path: "monitoring.alert_channels", Value: p.Monitoring.AlertChannels},
		{Path: "monitoring.sample_rate", Value: p.Monitoring.SampleRate},

		{Path: "authentication.enabled", Value: p.Authentication.Enabled},
		{Path: "authentication.require_mfa", Value: p.Authentication.RequireMFA},
		{Path: "authentication.session_timeout", Value: p.Authentication.SessionTimeout},
		{Path: "authentication.max_login_attempts", Value: p.Authentication.MaxLoginAttempts},
		{Path: "authentication.token_lifetime", Value: p.Authentication.TokenLifetime},
	}

	for _, key := range p.CustomKeys() {
		fields = append(fields, Field{
			Path:  "custom." + key,
			Value: p.Custom[key],
		})
	}

	return fields
}

// ValuesEqual compares two field values structurally. Slices and maps are
// compared element-wise; everything else uses plain equality.
func ValuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}

// FormatValue renders a field value for human-readable diff output.
func FormatValue(v any) string {
	if v == nil {
		return "<none>"
	}
	return fmt.Sprintf("%v", v)
}
