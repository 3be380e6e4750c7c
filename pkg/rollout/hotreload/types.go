package hotreload

import (
	"fmt"
	"time"
)

// Strategy selects how a reload cuts over from the old policy to the new.
type Strategy int

const (
	// StrategyImmediate swaps the policy with no delay.
	StrategyImmediate Strategy = iota
	// StrategyGraceful drains in-flight work before swapping.
	StrategyGraceful
	// StrategyGradual validates the candidate in stages before swapping.
	StrategyGradual
	// StrategyBlueGreen soaks the candidate, validates once, then swaps.
	StrategyBlueGreen
)

// String returns the strategy name used in logs and configuration files.
func (s Strategy) String() string {
	switch s {
	case StrategyImmediate:
		return "immediate"
	case StrategyGraceful:
		return "graceful"
	case StrategyGradual:
		return "gradual"
	case StrategyBlueGreen:
		return "blue-green"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// ParseStrategy maps a configuration string onto a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "immediate", "":
		return StrategyImmediate, nil
	case "graceful":
		return StrategyGraceful, nil
	case "gradual":
		return StrategyGradual, nil
	case "blue-green", "bluegreen":
		return StrategyBlueGreen, nil
	default:
		return StrategyImmediate, fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
	}
}

// GradualStage is one validation step of a gradual reload.
type GradualStage struct {
	// Name appears in reload records and logs.
	Name string `yaml:"name"`
	// Duration is how long the stage soaks before its check runs.
	Duration time.Duration `yaml:"duration"`
}

// Options tunes the strategy-specific timing of a Manager. Zero values
// fall back to the defaults of DefaultOptions.
type Options struct {
	Strategy Strategy

	// GracePeriod is the drain window for StrategyGraceful.
	GracePeriod time.Duration

	// Stages are the validation steps for StrategyGradual. An empty list
	// degrades to a single zero-duration stage.
	Stages []GradualStage

	// StageDelay is the pause between gradual stages.
	StageDelay time.Duration

	// ValidationPeriod is the soak window for StrategyBlueGreen.
	ValidationPeriod time.Duration

	// MaxHistory bounds the retained reload records.
	MaxHistory int
}

// DefaultOptions returns the timing used when a field is left zero.
func DefaultOptions() Options {
	return Options{
		Strategy:         StrategyImmediate,
		GracePeriod:      10 * time.Second,
		StageDelay:       5 * time.Second,
		ValidationPeriod: 30 * time.Second,
		MaxHistory:       100,
	}
}

// Outcome is the terminal state of a reload attempt.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
)

// Record describes one finished reload attempt.
type Record struct {
	ID         string
	Strategy   Strategy
	PolicyID   string
	StartedAt  time.Time
	FinishedAt time.Time
	Outcome    Outcome
	Error      string
	// Stages holds per-stage results for gradual reloads, empty otherwise.
	Stages []StageResult
}

// Duration is the wall time the reload took.
func (r Record) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// StageResult is the outcome of a single gradual stage.
type StageResult struct {
	Name     string
	Passed   bool
	Error    string
	Duration time.Duration
}

// Statistics aggregates reload outcomes since construction.
type Statistics struct {
	Total     int
	Completed int
	Failed    int
	// AverageDuration is a rolling mean over all finished reloads.
	AverageDuration time.Duration
}

// SuccessRate returns completed/total as a percentage, 0 when empty.
func (s Statistics) SuccessRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Completed) / float64(s.Total) * 100
}
