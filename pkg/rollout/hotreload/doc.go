// Package hotreload replaces the running policy without a process restart,
// under a cutover strategy fixed at construction:
//
//   - Immediate: swap under lock, no delay.
//   - Graceful: signal the host to stop accepting new work, wait out the
//     grace period, then swap.
//   - Gradual: a confidence-building sequence of validation stages; only
//     after every stage passes does a single atomic cutover occur. Partial
//     traffic shifting is the canary manager's job, not this package's.
//   - BlueGreen: run the candidate through one validation pass after a
//     soak period, then swap.
//
// Only one reload may be in flight. A second concurrent call is rejected
// with ErrReloadInProgress and leaves the active policy unchanged. There is
// no mid-flight cancellation beyond the caller's context.
package hotreload
