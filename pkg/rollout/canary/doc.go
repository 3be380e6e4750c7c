// Package canary implements canary deployments for runtime policies.
//
// # Overview
//
// A canary deployment runs a candidate policy alongside the stable one and
// routes a configurable slice of traffic to it. The Manager owns:
//
//   - the stable and canary policy values
//   - the traffic split (percentage, hashing criteria, forced groups)
//   - per-branch request metrics (counts, online latency averages)
//   - the deployment state machine (Idle -> CanaryActive -> Scaling -> Idle)
//   - a best-effort event feed for observers
//
// # Traffic splitting
//
// The per-request decision is read-only and cheap: forced-group membership
// wins outright, otherwise a stable FNV-1a hash of the configured request
// attribute is reduced to a bucket in [0,100) and compared against the split
// percentage. Hashing makes the decision deterministic per user (or IP), so
// a given caller sees a consistent policy for the lifetime of a deployment.
//
// # Usage
//
//	mgr, _ := canary.NewManager(stable, canary.TrafficSplit{
//		Percentage: 0,
//		Criteria:   canary.SplitCriteria{Kind: canary.CriteriaUserIDHash},
//	}, nil, logger)
//
//	_ = mgr.StartCanaryDeployment(candidate, 10.0)
//
//	// per request:
//	useCanary := mgr.ShouldUseCanary(canary.RequestContext{UserID: uid})
//	// ... dispatch ...
//	mgr.RecordRequestMetrics(useCanary, err == nil, latencyMS)
package canary
