// Package updater orchestrates dynamic policy updates end to end: optional
// validation, an atomic swap of the active policy, and automatic restoration
// of the previous value when the swap fails.
//
// Each update walks a fixed phase machine:
//
//	UpdateStarted -> [Validating -> ValidationSuccess|ValidationFailed]
//	              -> Applying -> Applied | ApplyFailed -> RolledBack
//
// Validation failures abort before any mutation. The swap happens inside a
// single critical section, so readers never observe a partially-applied
// policy. On apply failure with auto-rollback enabled the previous policy is
// reinstated and the update finishes RolledBack; if the restoration itself
// fails, both errors surface to the caller.
//
// Every phase transition appends to the update's record and is published on
// the event feed, giving consumers a complete trail per update.
package updater
