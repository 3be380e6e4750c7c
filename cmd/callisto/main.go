// Callisto is a progressive configuration-rollout engine.
//
// It rolls policy changes out gradually, splitting traffic between a
// stable and a canary policy, watching branch health, and rolling back
// automatically when the canary degrades:
//   - Deterministic traffic splitting by user, IP, or per-request hash
//   - Statistics-driven automatic rollback with optional staged ramp-down
//   - Validated dynamic policy updates with previous-policy restore
//   - Hot reload strategies from immediate swap to blue-green
//   - Policy version lineage with field-level diffing
//   - A SQLite-backed audit trail of all rollout activity
//
// Usage:
//
//	# Start the engine with default configuration
//	callisto run
//
//	# Start with a custom configuration file
//	callisto run --config /etc/callisto/config.yaml
//
//	# Validate a policy file without starting the engine
//	callisto validate --policy policy.yaml --level strict
//
//	# Show version information
//	callisto version
package main

func main() {
	Execute()
}
