package validation

import (
	"log/slog"
	"time"

	"mercator-hq/callisto/pkg/policy"
)

// Engine validates candidate policies and tracks running statistics across
// calls. It is safe for concurrent use.
type Engine struct {
	logger *slog.Logger
	stats  *Statistics
}

// NewEngine creates a validation engine.
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default().With("component", "policy.validation")
	}

	return &Engine{
		logger: logger,
		stats:  newStatistics(),
	}
}

// Validate runs the check suite for the given level against a candidate
// policy. Levels are cumulative: LevelStrict runs the basic and standard
// checks too. The result is always non-nil; inspect Result.IsValid to decide
// whether the policy may be applied.
func (e *Engine) Validate(p *policy.Policy, level Level) *Result {
	start := time.Now()
	result := &Result{Level: level}

	if p == nil {
		result.addError(SeverityCritical, CodeNilPolicy, "policy is nil", "")
		result.finalize()
		e.stats.record(result, time.Since(start))
		return result
	}

	checkBasic(p, result)
	if level >= LevelStandard {
		checkStandard(p, result)
	}
	if level >= LevelStrict {
		checkStrict(p, result)
	}
	if level >= LevelCustom {
		checkCustom(p, result)
	}

	recommend(p, result)
	result.finalize()
	e.stats.record(result, time.Since(start))

	e.logger.Debug("policy validated",
		"policy_id", p.ID,
		"level", level.String(),
		"valid", result.IsValid,
		"errors", len(result.Errors),
		"warnings", len(result.Warnings),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return result
}

// Statistics returns a copy of the engine's running statistics.
func (e *Engine) Statistics() StatisticsSnapshot {
	return e.stats.snapshot()
}
