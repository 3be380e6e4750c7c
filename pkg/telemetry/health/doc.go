// Package health provides health check endpoints for Callisto.
//
// # Overview
//
// The health package implements liveness and readiness probes for Kubernetes
// and other orchestration systems. Components register named check functions
// and the checker runs them with a per-check timeout, aggregating the results
// into a single status document.
//
// # Endpoints
//
//   - LivenessHandler: indicates the process is running, always 200
//   - ReadinessHandler: runs all registered checks and returns 503 when any
//     check fails or times out
//
// # Usage
//
//	checker := health.New(0)
//	checker.Register("source", func(ctx context.Context) error {
//		_, err := src.Load()
//		return err
//	})
//	mux.Handle("/readyz", checker.ReadinessHandler())
package health
