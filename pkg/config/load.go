package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file, applies defaults, and
// validates the result. Environment variables are not consulted; use
// LoadConfigWithEnvOverrides for that.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading configuration file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration file %q: %w", path, err)
	}

	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and then
// applies CALLISTO_* environment overrides. Environment values always take
// precedence over file values, and the result is re-validated.
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies CALLISTO_SECTION_FIELD environment variables.
// Values that fail to parse are silently ignored so a stray variable cannot
// take the engine down.
func applyEnvOverrides(cfg *Config) {
	setString("CALLISTO_LOGGING_LEVEL", &cfg.Logging.Level)
	setString("CALLISTO_LOGGING_FORMAT", &cfg.Logging.Format)

	setBool("CALLISTO_METRICS_ENABLED", &cfg.Metrics.Enabled)
	setString("CALLISTO_METRICS_LISTEN_ADDRESS", &cfg.Metrics.ListenAddress)
	setString("CALLISTO_METRICS_PATH", &cfg.Metrics.Path)

	setString("CALLISTO_VALIDATION_LEVEL", &cfg.Validation.Level)

	setFloat("CALLISTO_CANARY_INITIAL_PERCENTAGE", &cfg.Canary.InitialPercentage)
	setString("CALLISTO_CANARY_CRITERIA", &cfg.Canary.Criteria)
	setString("CALLISTO_CANARY_CRITERIA_NAME", &cfg.Canary.CriteriaName)

	setBool("CALLISTO_ROLLBACK_ENABLED", &cfg.Rollback.Enabled)
	setFloat("CALLISTO_ROLLBACK_ERROR_RATE_THRESHOLD", &cfg.Rollback.ErrorRateThreshold)
	setFloat("CALLISTO_ROLLBACK_RESPONSE_TIME_THRESHOLD_MS", &cfg.Rollback.ResponseTimeThresholdMS)
	setDuration("CALLISTO_ROLLBACK_EVALUATION_WINDOW", &cfg.Rollback.EvaluationWindow)
	setInt64("CALLISTO_ROLLBACK_MIN_REQUESTS", &cfg.Rollback.MinRequests)

	setBool("CALLISTO_UPDATER_VALIDATE_BEFORE_APPLY", &cfg.Updater.ValidateBeforeApply)
	setBool("CALLISTO_UPDATER_AUTO_ROLLBACK", &cfg.Updater.AutoRollback)

	setString("CALLISTO_HOT_RELOAD_STRATEGY", &cfg.HotReload.Strategy)
	setDuration("CALLISTO_HOT_RELOAD_GRACE_PERIOD", &cfg.HotReload.GracePeriod)

	setString("CALLISTO_SOURCE_PATH", &cfg.Source.Path)
	setBool("CALLISTO_SOURCE_WATCH", &cfg.Source.Watch)

	setBool("CALLISTO_AUDIT_ENABLED", &cfg.Audit.Enabled)
	setString("CALLISTO_AUDIT_PATH", &cfg.Audit.Path)
	setString("CALLISTO_AUDIT_PRUNE_SCHEDULE", &cfg.Audit.PruneSchedule)
}

func setString(name string, dst *string) {
	if val := os.Getenv(name); val != "" {
		*dst = val
	}
}

func setBool(name string, dst *bool) {
	if val := os.Getenv(name); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}

func setFloat(name string, dst *float64) {
	if val := os.Getenv(name); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			*dst = f
		}
	}
}

func setInt64(name string, dst *int64) {
	if val := os.Getenv(name); val != "" {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			*dst = i
		}
	}
}

func setDuration(name string, dst *time.Duration) {
	if val := os.Getenv(name); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}
