// Package metrics provides Prometheus metrics collection for Callisto.
//
// # Overview
//
// The metrics package implements Prometheus metrics for monitoring canary
// traffic splitting, automatic rollbacks, dynamic policy updates, validation
// outcomes, and hot-reload executions. All metrics live in a dedicated
// registry so an embedding process never collides with the default one.
//
// # Metrics Categories
//
//   - Canary Metrics: Request count and latency per branch, current split
//     percentage, and snapshot creation
//   - Rollback Metrics: Rollback count by kind and outcome
//   - Update Metrics: Policy update count by result and apply duration
//   - Validation Metrics: Validation runs by level and verdict
//   - Reload Metrics: Hot reloads by strategy and outcome
//   - Bus Metrics: Events dropped by slow subscribers
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Metrics, nil)
//	collector.RecordCanaryRequest("canary", true, 12.5)
//	http.Handle(cfg.Metrics.Path, collector.Handler())
//
// When metrics are disabled in configuration every Record method is a no-op,
// so callers never need to guard their instrumentation sites.
package metrics
