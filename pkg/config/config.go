package config

import (
	"time"

	"mercator-hq/callisto/pkg/rollout/rollback"
)

// Config is the root configuration document.
type Config struct {
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Validation ValidationConfig `yaml:"validation"`
	Canary     CanaryConfig     `yaml:"canary"`
	Rollback   rollback.Config  `yaml:"rollback"`
	Updater    UpdaterConfig    `yaml:"updater"`
	HotReload  HotReloadConfig  `yaml:"hot_reload"`
	Version    VersionConfig    `yaml:"version"`
	Source     SourceConfig     `yaml:"source"`
	Audit      AuditConfig      `yaml:"audit"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is json or text.
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`

	// ListenAddress is where the metrics HTTP server binds.
	ListenAddress string `yaml:"listen_address"`

	// Path is the metrics endpoint path.
	Path string `yaml:"path"`

	Namespace string `yaml:"namespace"`
	Subsystem string `yaml:"subsystem"`

	// LatencyBuckets overrides the histogram buckets, in seconds.
	LatencyBuckets []float64 `yaml:"latency_buckets,omitempty"`
}

// ValidationConfig controls policy validation during updates.
type ValidationConfig struct {
	// Level is one of basic, standard, strict, custom.
	Level string `yaml:"level"`
}

// CanaryConfig controls the initial traffic split.
type CanaryConfig struct {
	// InitialPercentage is the canary share applied when a deployment
	// starts, in [0,100].
	InitialPercentage float64 `yaml:"initial_percentage"`

	// Criteria selects the split key: random, user_id_hash,
	// ip_address_hash, or custom.
	Criteria string `yaml:"criteria"`

	// CriteriaName names the custom criterion when Criteria is custom.
	CriteriaName string `yaml:"criteria_name,omitempty"`

	// EventBufferSize sizes the canary event bus.
	EventBufferSize int `yaml:"event_buffer_size"`

	// UserGroups force listed users onto a branch regardless of the
	// percentage.
	UserGroups []UserGroupConfig `yaml:"user_groups,omitempty"`
}

// UserGroupConfig pins a named set of users to one branch.
type UserGroupConfig struct {
	Name        string   `yaml:"name"`
	Users       []string `yaml:"users"`
	ForceCanary bool     `yaml:"force_canary"`
}

// UpdaterConfig controls dynamic policy updates.
type UpdaterConfig struct {
	// ValidateBeforeApply runs the validation engine before any mutation.
	ValidateBeforeApply bool `yaml:"validate_before_apply"`

	// AutoRollback restores the previous policy when an apply fails.
	AutoRollback bool `yaml:"auto_rollback"`

	// MaxHistory bounds the retained update records.
	MaxHistory int `yaml:"max_history"`
}

// HotReloadConfig controls the reload cutover strategy.
type HotReloadConfig struct {
	// Strategy is one of immediate, graceful, gradual, blue-green.
	Strategy string `yaml:"strategy"`

	GracePeriod      time.Duration `yaml:"grace_period"`
	StageDelay       time.Duration `yaml:"stage_delay"`
	ValidationPeriod time.Duration `yaml:"validation_period"`

	// Stages configures the gradual strategy.
	Stages []ReloadStageConfig `yaml:"stages,omitempty"`

	MaxHistory int `yaml:"max_history"`
}

// ReloadStageConfig is one gradual reload stage.
type ReloadStageConfig struct {
	Name     string        `yaml:"name"`
	Duration time.Duration `yaml:"duration"`
}

// VersionConfig controls policy version retention.
type VersionConfig struct {
	MaxVersions int `yaml:"max_versions"`
}

// SourceConfig points at the policy file.
type SourceConfig struct {
	// Path is the policy YAML file.
	Path string `yaml:"path"`

	// Watch reloads the policy when the file changes.
	Watch bool `yaml:"watch"`

	// DebounceInterval is the quiet period before a reload runs.
	DebounceInterval time.Duration `yaml:"debounce_interval"`
}

// AuditConfig controls the audit trail database.
type AuditConfig struct {
	Enabled bool `yaml:"enabled"`

	// Path is the SQLite database file.
	Path string `yaml:"path"`

	// RetentionDays prunes records older than this. Zero keeps them.
	RetentionDays int `yaml:"retention_days"`

	// MaxRecords caps the table size. Zero means unbounded.
	MaxRecords int64 `yaml:"max_records"`

	// PruneSchedule is a cron expression; empty disables scheduled
	// pruning.
	PruneSchedule string `yaml:"prune_schedule"`

	// BusyTimeout is how long to wait on a locked database.
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}
