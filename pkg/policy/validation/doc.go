// Package validation implements the policy validation engine.
//
// # Overview
//
// The engine validates a candidate policy at one of four cumulative levels:
//
//   - LevelBasic: required fields, version format, timestamp ordering
//   - LevelStandard: basic plus intra-section consistency checks
//   - LevelStrict: standard plus cryptographic security floors
//   - LevelCustom: strict plus environment-specific rules
//
// Each level runs every check of the levels below it, so raising the level
// can only add findings, never remove them.
//
// Validation produces a structured Result with severity-graded errors,
// warnings, and recommendations. A policy is valid exactly when no finding
// of critical severity survives. Recommendations are advisory and generated
// regardless of validity.
//
// The engine keeps running statistics across calls. It is an explicit
// instance handle rather than package-level state: tests and hosts construct
// fresh engines instead of resetting globals.
package validation
