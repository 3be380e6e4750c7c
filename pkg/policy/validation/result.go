package validation

import "fmt"

// Level selects how much of the check suite runs. Levels are cumulative:
// each level includes every check of the levels below it.
type Level int

const (
	// LevelBasic checks required fields, version format, and timestamps.
	LevelBasic Level = iota

	// LevelStandard adds intra-section consistency checks.
	LevelStandard

	// LevelStrict adds cryptographic security floors.
	LevelStrict

	// LevelCustom adds environment-specific rules.
	LevelCustom
)

// String returns the level name.
func (l Level) String() string {
	switch l {
	case LevelBasic:
		return "basic"
	case LevelStandard:
		return "standard"
	case LevelStrict:
		return "strict"
	case LevelCustom:
		return "custom"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// ParseLevel converts a level name to a Level.
func ParseLevel(s string) (Level, error) {
	switch s {
	case "basic":
		return LevelBasic, nil
	case "standard":
		return LevelStandard, nil
	case "strict":
		return LevelStrict, nil
	case "custom":
		return LevelCustom, nil
	default:
		return LevelBasic, fmt.Errorf("unknown validation level %q", s)
	}
}

// Severity grades a validation finding.
type Severity int

const (
	// SeverityInfo is informational only.
	SeverityInfo Severity = iota

	// SeverityWarning indicates a questionable setting that does not block.
	SeverityWarning

	// SeverityError indicates a definite problem that does not block on its own.
	SeverityError

	// SeverityCritical blocks the policy from being applied.
	SeverityCritical
)

// String returns the severity name.
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// Finding is a single validation error with severity, a stable machine code,
// and the dotted path of the offending field.
type Finding struct {
	Severity Severity
	Code     string
	Message  string
	Path     string
}

// Warning is a non-blocking validation observation.
type Warning struct {
	Code    string
	Message string
	Path    string
}

// Result is the structured outcome of a validation run.
type Result struct {
	// IsValid is true exactly when no critical finding is present.
	IsValid bool

	// Level is the level the run was performed at.
	Level Level

	// Errors holds severity-graded findings.
	Errors []Finding

	// Warnings holds non-blocking observations.
	Warnings []Warning

	// Recommendations are advisory improvements, generated independent of
	// validity.
	Recommendations []string
}

// CriticalCount returns the number of critical findings.
func (r *Result) CriticalCount() int {
	n := 0
	for _, f := range r.Errors {
		if f.Severity == SeverityCritical {
			n++
		}
	}
	return n
}

// addError appends a finding.
func (r *Result) addError(severity Severity, code, message, path string) {
	r.Errors = append(r.Errors, Finding{
		Severity: severity,
		Code:     code,
		Message:  message,
		Path:     path,
	})
}

// addWarning appends a warning.
func (r *Result) addWarning(code, message, path string) {
	r.Warnings = append(r.Warnings, Warning{
		Code:    code,
		Message: message,
		Path:    path,
	})
}

// finalize computes IsValid from the accumulated findings.
func (r *Result) finalize() {
	r.IsValid = r.CriticalCount() == 0
}
