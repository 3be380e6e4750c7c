package validation

import (
	"fmt"
	"regexp"

	"mercator-hq/callisto/pkg/policy"
)

// Stable machine codes for findings and warnings.
const (
	CodeNilPolicy        = "nil_policy"
	CodeRequiredField    = "required_field"
	CodeVersionFormat    = "version_format"
	CodeTimestampOrder   = "timestamp_order"
	CodeTLSNoCiphers     = "tls_no_cipher_suites"
	CodeAlertNoChannels  = "alerting_no_channels"
	CodeSampleRateRange  = "sample_rate_range"
	CodeAuthNoAttempts   = "auth_no_max_attempts"
	CodeKeySizeFloor     = "key_size_below_floor"
	CodePBKDF2Floor      = "pbkdf2_iterations_low"
	CodeTLSMinVersion    = "tls_min_version"
	CodeProdSecurity     = "production_security_disabled"
	CodeProdMFA          = "production_mfa_disabled"
	CodeUnknownCustom    = "unknown_custom_field"
	CodeEnvironmentValue = "environment_value"
)

// versionPattern matches x.y.z version strings.
var versionPattern = regexp.MustCompile(`^\d+\.\d+\.\d+$`)

// knownCustomFields are the custom settings the engine understands. Anything
// else draws an unknown-field warning at LevelCustom.
var knownCustomFields = map[string]bool{
	"environment": true,
	"owner":       true,
	"region":      true,
}

// checkBasic validates required fields, version format, and timestamps.
func checkBasic(p *policy.Policy, r *Result) {
	if p.ID == "" {
		r.addError(SeverityCritical, CodeRequiredField, "policy id is required", "id")
	}
	if p.Version == "" {
		r.addError(SeverityCritical, CodeRequiredField, "policy version is required", "version")
	} else if !versionPattern.MatchString(p.Version) {
		r.addError(SeverityCritical, CodeVersionFormat,
			fmt.Sprintf("version %q does not match x.y.z", p.Version), "version")
	}

	if !p.CreatedAt.IsZero() && !p.UpdatedAt.IsZero() && p.UpdatedAt.Before(p.CreatedAt) {
		r.addError(SeverityError, CodeTimestampOrder,
			"updated_at precedes created_at", "updated_at")
	}
}

// checkStandard validates intra-section consistency.
func checkStandard(p *policy.Policy, r *Result) {
	if p.Security.EnforceTLS && len(p.Security.CipherSuites) == 0 {
		r.addError(SeverityError, CodeTLSNoCiphers,
			"TLS is enforced but no cipher suites are configured", "security.cipher_suites")
	}

	if p.Monitoring.AlertingEnabled && len(p.Monitoring.AlertChannels) == 0 {
		r.addWarning(CodeAlertNoChannels,
			"alerting is enabled but no alert channels are configured", "monitoring.alert_channels")
	}

	if p.Monitoring.SampleRate < 0 || p.Monitoring.SampleRate > 1 {
		r.addError(SeverityError, CodeSampleRateRange,
			fmt.Sprintf("sample rate %v outside [0,1]", p.Monitoring.SampleRate), "monitoring.sample_rate")
	}

	if p.Authentication.Enabled && p.Authentication.MaxLoginAttempts <= 0 {
		r.addWarning(CodeAuthNoAttempts,
			"authentication is enabled without a max login attempt limit", "authentication.max_login_attempts")
	}
}

// checkStrict validates cryptographic security floors.
func checkStrict(p *policy.Policy, r *Result) {
	if p.Security.KeySizeBits < 256 {
		r.addError(SeverityError, CodeKeySizeFloor,
			fmt.Sprintf("key size %d bits is below the 256-bit floor", p.Security.KeySizeBits),
			"security.key_size_bits")
	}

	if p.Security.PBKDF2Iterations < 10000 {
		r.addWarning(CodePBKDF2Floor,
			fmt.Sprintf("PBKDF2 iteration count %d is below 10000", p.Security.PBKDF2Iterations),
			"security.pbkdf2_iterations")
	}

	if v := p.Security.TLSMinVersion; v != "1.2" && v != "1.3" {
		r.addError(SeverityError, CodeTLSMinVersion,
			fmt.Sprintf("TLS minimum version %q must be 1.2 or 1.3", v), "security.tls_min_version")
	}
}

// checkCustom validates environment-specific rules and unknown custom fields.
func checkCustom(p *policy.Policy, r *Result) {
	env, _ := p.Custom["environment"].(string)

	if env == "production" {
		if !p.Security.Enabled {
			r.addError(SeverityCritical, CodeProdSecurity,
				"production policies require security to be enabled", "security.enabled")
		}
		if !p.Authentication.RequireMFA {
			r.addError(SeverityCritical, CodeProdMFA,
				"production policies require MFA", "authentication.require_mfa")
		}
	}

	for _, key := range p.CustomKeys() {
		if !knownCustomFields[key] {
			r.addWarning(CodeUnknownCustom,
				fmt.Sprintf("unknown custom field %q", key), "custom."+key)
		}
	}
}

// recommend generates advisory improvements. Recommendations never affect
// validity.
func recommend(p *policy.Policy, r *Result) {
	if !p.Authentication.RequireMFA {
		r.Recommendations = append(r.Recommendations,
			"enable MFA for stronger account protection")
	}
	if p.Security.TLSMinVersion == "1.2" {
		r.Recommendations = append(r.Recommendations,
			"consider raising the TLS minimum version to 1.3")
	}
	if p.Security.PBKDF2Iterations < 600000 {
		r.Recommendations = append(r.Recommendations,
			"consider raising PBKDF2 iterations to current OWASP guidance (600000)")
	}
	if !p.Monitoring.MetricsEnabled {
		r.Recommendations = append(r.Recommendations,
			"enable metrics to allow canary deployments to be evaluated")
	}
}
