package config

import (
	"time"

	"mercator-hq/callisto/pkg/rollout/rollback"
)

// ApplyDefaults fills unset fields with their defaults. Explicitly
// configured values are left alone.
func ApplyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Metrics.ListenAddress == "" {
		cfg.Metrics.ListenAddress = ":9090"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = "callisto"
	}
	if cfg.Metrics.Subsystem == "" {
		cfg.Metrics.Subsystem = "rollout"
	}

	if cfg.Validation.Level == "" {
		cfg.Validation.Level = "standard"
	}

	if cfg.Canary.InitialPercentage == 0 {
		cfg.Canary.InitialPercentage = 10
	}
	if cfg.Canary.Criteria == "" {
		cfg.Canary.Criteria = "random"
	}
	if cfg.Canary.EventBufferSize == 0 {
		cfg.Canary.EventBufferSize = 256
	}

	def := rollback.DefaultConfig()
	if cfg.Rollback.ErrorRateThreshold == 0 {
		cfg.Rollback.ErrorRateThreshold = def.ErrorRateThreshold
	}
	if cfg.Rollback.ResponseTimeThresholdMS == 0 {
		cfg.Rollback.ResponseTimeThresholdMS = def.ResponseTimeThresholdMS
	}
	if cfg.Rollback.EvaluationWindow == 0 {
		cfg.Rollback.EvaluationWindow = def.EvaluationWindow
	}
	if cfg.Rollback.MinRequests == 0 {
		cfg.Rollback.MinRequests = def.MinRequests
	}
	if cfg.Rollback.MaxSnapshots == 0 {
		cfg.Rollback.MaxSnapshots = def.MaxSnapshots
	}
	if cfg.Rollback.Staged.StageDelay == 0 {
		cfg.Rollback.Staged.StageDelay = 10 * time.Second
	}

	if cfg.Updater.MaxHistory == 0 {
		cfg.Updater.MaxHistory = 100
	}

	if cfg.HotReload.Strategy == "" {
		cfg.HotReload.Strategy = "immediate"
	}
	if cfg.HotReload.GracePeriod == 0 {
		cfg.HotReload.GracePeriod = 10 * time.Second
	}
	if cfg.HotReload.StageDelay == 0 {
		cfg.HotReload.StageDelay = 5 * time.Second
	}
	if cfg.HotReload.ValidationPeriod == 0 {
		cfg.HotReload.ValidationPeriod = 30 * time.Second
	}
	if cfg.HotReload.MaxHistory == 0 {
		cfg.HotReload.MaxHistory = 100
	}

	if cfg.Version.MaxVersions == 0 {
		cfg.Version.MaxVersions = 50
	}

	if cfg.Source.Path == "" {
		cfg.Source.Path = "policy.yaml"
	}
	if cfg.Source.DebounceInterval == 0 {
		cfg.Source.DebounceInterval = 100 * time.Millisecond
	}

	if cfg.Audit.Path == "" {
		cfg.Audit.Path = "data/audit.db"
	}
	if cfg.Audit.BusyTimeout == 0 {
		cfg.Audit.BusyTimeout = 5 * time.Second
	}
}
