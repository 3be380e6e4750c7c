// Package telemetry provides observability for Callisto.
//
// # Overview
//
// The telemetry tree implements Prometheus metrics collection and health
// check endpoints for the rollout engine. Structured logging uses log/slog
// directly and is configured by the logging section of the configuration.
//
// # Components
//
//   - metrics: Prometheus metrics collection
//   - health: Liveness and readiness probes
package telemetry
