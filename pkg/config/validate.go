package config

import (
	"fmt"

	"github.com/robfig/cron/v3"

	"mercator-hq/callisto/pkg/policy/validation"
	"mercator-hq/callisto/pkg/rollout/hotreload"
)

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validSplitCriteria = map[string]bool{
	"random":          true,
	"user_id_hash":    true,
	"ip_address_hash": true,
	"custom":          true,
}

// Validate checks the configuration for values the engine cannot run with.
// It assumes defaults have already been applied.
func Validate(cfg *Config) error {
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" && cfg.Logging.Format != "text" {
		return fmt.Errorf("logging.format: must be json or text, got %q", cfg.Logging.Format)
	}

	if _, err := validation.ParseLevel(cfg.Validation.Level); err != nil {
		return fmt.Errorf("validation.level: %w", err)
	}

	if cfg.Canary.InitialPercentage < 0 || cfg.Canary.InitialPercentage > 100 {
		return fmt.Errorf("canary.initial_percentage: must be in [0,100], got %v", cfg.Canary.InitialPercentage)
	}
	if !validSplitCriteria[cfg.Canary.Criteria] {
		return fmt.Errorf("canary.criteria: unknown criteria %q", cfg.Canary.Criteria)
	}
	if cfg.Canary.Criteria == "custom" && cfg.Canary.CriteriaName == "" {
		return fmt.Errorf("canary.criteria_name: required when criteria is custom")
	}
	for i, g := range cfg.Canary.UserGroups {
		if g.Name == "" {
			return fmt.Errorf("canary.user_groups[%d]: name is required", i)
		}
	}

	if cfg.Rollback.ErrorRateThreshold < 0 || cfg.Rollback.ErrorRateThreshold > 100 {
		return fmt.Errorf("rollback.error_rate_threshold: must be in [0,100], got %v", cfg.Rollback.ErrorRateThreshold)
	}
	if cfg.Rollback.ResponseTimeThresholdMS < 0 {
		return fmt.Errorf("rollback.response_time_threshold_ms: must not be negative")
	}
	if cfg.Rollback.EvaluationWindow <= 0 {
		return fmt.Errorf("rollback.evaluation_window: must be positive")
	}
	if cfg.Rollback.MinRequests < 0 {
		return fmt.Errorf("rollback.min_requests: must not be negative")
	}
	for i, s := range cfg.Rollback.Staged.Stages {
		if s.TargetPercentage < 0 || s.TargetPercentage > 100 {
			return fmt.Errorf("rollback.staged.stages[%d]: target_percentage must be in [0,100]", i)
		}
	}

	if _, err := hotreload.ParseStrategy(cfg.HotReload.Strategy); err != nil {
		return fmt.Errorf("hot_reload.strategy: %w", err)
	}

	if cfg.Version.MaxVersions < 1 {
		return fmt.Errorf("version.max_versions: must be at least 1")
	}

	if cfg.Source.Path == "" {
		return fmt.Errorf("source.path: policy file path is required")
	}

	if cfg.Audit.Enabled {
		if cfg.Audit.Path == "" {
			return fmt.Errorf("audit.path: database path is required when audit is enabled")
		}
		if cfg.Audit.PruneSchedule != "" {
			if _, err := cron.ParseStandard(cfg.Audit.PruneSchedule); err != nil {
				return fmt.Errorf("audit.prune_schedule: %w", err)
			}
		}
		if cfg.Audit.RetentionDays < 0 {
			return fmt.Errorf("audit.retention_days: must not be negative")
		}
		if cfg.Audit.MaxRecords < 0 {
			return fmt.Errorf("audit.max_records: must not be negative")
		}
	}

	return nil
}
