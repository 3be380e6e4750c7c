// Package config defines the engine's YAML configuration, its defaults,
// and validation.
//
// # Loading
//
// Configuration follows a fixed sequence: parse the YAML file, apply
// defaults to unset fields, optionally apply CALLISTO_* environment
// overrides, then validate the final result. LoadConfig and
// LoadConfigWithEnvOverrides wrap that sequence; callers building a Config
// by hand should call ApplyDefaults and Validate themselves.
//
// # Environment overrides
//
// Override names follow CALLISTO_SECTION_FIELD, for example
// CALLISTO_CANARY_INITIAL_PERCENTAGE or CALLISTO_AUDIT_PATH. Environment
// values always win over file values.
package config
