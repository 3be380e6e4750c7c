package canary

import (
	"sync"
	"time"
)

// BranchMetrics accumulates request outcomes for one branch (stable or
// canary) of a deployment.
type BranchMetrics struct {
	TotalRequests int64
	SuccessCount  int64
	ErrorCount    int64

	// AverageLatencyMS is an online mean over all recorded requests.
	AverageLatencyMS float64

	// MaxLatencyMS is the highest latency seen.
	MaxLatencyMS float64
}

// ErrorRate returns the error percentage in [0,100]. Zero requests yield 0.
func (m BranchMetrics) ErrorRate() float64 {
	if m.TotalRequests == 0 {
		return 0
	}
	return float64(m.ErrorCount) / float64(m.TotalRequests) * 100
}

// record folds one request outcome into the branch counters using the
// online mean avg' = (avg*(n-1)+x)/n.
func (m *BranchMetrics) record(success bool, latencyMS float64) {
	m.TotalRequests++
	if success {
		m.SuccessCount++
	} else {
		m.ErrorCount++
	}

	n := float64(m.TotalRequests)
	m.AverageLatencyMS = (m.AverageLatencyMS*(n-1) + latencyMS) / n
	if latencyMS > m.MaxLatencyMS {
		m.MaxLatencyMS = latencyMS
	}
}

// MetricsSnapshot pairs the stable and canary branch metrics at a point in
// time, together with the split percentage in effect.
type MetricsSnapshot struct {
	Stable          BranchMetrics
	Canary          BranchMetrics
	Timestamp       time.Time
	SplitPercentage float64
}

// metricsCollector serializes branch counter updates behind its own lock,
// independent of the manager's state lock.
type metricsCollector struct {
	mu     sync.RWMutex
	stable BranchMetrics
	canary BranchMetrics
}

func newMetricsCollector() *metricsCollector {
	return &metricsCollector{}
}

// Record updates the counters for one branch.
func (c *metricsCollector) Record(isCanary, success bool, latencyMS float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if isCanary {
		c.canary.record(success, latencyMS)
	} else {
		c.stable.record(success, latencyMS)
	}
}

// Snapshot returns a copy of both branches with the given split percentage.
func (c *metricsCollector) Snapshot(splitPercentage float64) MetricsSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return MetricsSnapshot{
		Stable:          c.stable,
		Canary:          c.canary,
		Timestamp:       time.Now(),
		SplitPercentage: splitPercentage,
	}
}

// Reset zeroes both branches. Called when a new deployment starts so the
// rollback monitor only ever evaluates the current canary.
func (c *metricsCollector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stable = BranchMetrics{}
	c.canary = BranchMetrics{}
}
