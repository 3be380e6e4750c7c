// Package rollback implements snapshot capture and threshold-driven rollback
// for canary deployments.
//
// # Overview
//
// The Manager keeps a bounded, FIFO-evicted history of deployment snapshots
// (stable policy, canary policy, traffic split, metrics, state) and can
// restore the most recent stable one when a canary misbehaves. Rollbacks are
// triggered three ways:
//
//   - automatically, by the Monitor evaluating canary metrics against
//     configured error-rate and latency thresholds
//   - manually, by an operator naming an explicit snapshot
//   - staged, stepping the canary percentage down through configured
//     milestones instead of cutting over instantly
//
// # Monitor
//
// The Monitor is a cooperative loop: it ticks at the evaluation window,
// checks a polled stop flag once per tick, takes a fresh metrics snapshot,
// and triggers at most one rollback when the thresholds are breached. A
// single evaluation error is logged and the loop continues; stopping is
// honored within one tick, not instantaneously.
//
// A failed automatic rollback is reported once through the event feed and
// left for operator intervention. It is not retried.
package rollback
