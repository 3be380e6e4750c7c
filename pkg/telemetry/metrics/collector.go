// Package metrics exposes Prometheus instrumentation for the rollout
// engine. A single Collector implements the telemetry interfaces of the
// canary, rollback, updater, and hotreload packages, so one instance can be
// handed to every component.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mercator-hq/callisto/pkg/config"
)

// Collector owns every Prometheus metric of the engine. When metrics are
// disabled in configuration all record methods are no-ops, so callers never
// need to guard their telemetry calls.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	requestsTotal    *prometheus.CounterVec
	requestLatency   *prometheus.HistogramVec
	canaryPercentage prometheus.Gauge
	customFallbacks  prometheus.Counter

	snapshotsTotal prometheus.Counter
	rollbacksTotal *prometheus.CounterVec

	updatesTotal      *prometheus.CounterVec
	updateDuration    prometheus.Histogram
	validationResults *prometheus.CounterVec

	hotReloadsTotal *prometheus.CounterVec

	eventsDropped *prometheus.GaugeVec
}

// NewCollector creates a collector registered against registry. A nil
// registry gets a fresh one.
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "callisto"
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = "rollout"
	}
	if len(cfg.LatencyBuckets) == 0 {
		// Covers fast in-process evaluation up to slow downstream calls.
		cfg.LatencyBuckets = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.5, 5.0}
	}

	c := &Collector{config: cfg, registry: registry}

	c.requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      "requests_total",
		Help:      "Requests routed through the traffic split, by branch and status.",
	}, []string{"branch", "status"})

	c.requestLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      "request_latency_seconds",
		Help:      "Latency of requests routed through the traffic split.",
		Buckets:   cfg.LatencyBuckets,
	}, []string{"branch"})

	c.canaryPercentage = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      "canary_percentage",
		Help:      "Current share of traffic routed to the canary branch.",
	})

	c.customFallbacks = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      "split_custom_fallback_total",
		Help:      "Requests that fell back to random splitting because a custom criterion was not wired.",
	})

	c.snapshotsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      "snapshots_created_total",
		Help:      "Deployment snapshots captured for rollback.",
	})

	c.rollbacksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      "rollbacks_total",
		Help:      "Completed rollback attempts, by kind and outcome.",
	}, []string{"kind", "outcome"})

	c.updatesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      "policy_updates_total",
		Help:      "Dynamic policy updates, by terminal result.",
	}, []string{"result"})

	c.updateDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      "policy_update_duration_seconds",
		Help:      "Wall time of dynamic policy updates.",
		Buckets:   cfg.LatencyBuckets,
	})

	c.validationResults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      "validation_results_total",
		Help:      "Policy validation runs, by level and outcome.",
	}, []string{"level", "valid"})

	c.hotReloadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      "hot_reloads_total",
		Help:      "Hot reload attempts, by strategy and outcome.",
	}, []string{"strategy", "outcome"})

	c.eventsDropped = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: cfg.Namespace,
		Subsystem: cfg.Subsystem,
		Name:      "events_dropped_total",
		Help:      "Events dropped by each bus because a subscriber fell behind.",
	}, []string{"bus"})

	registry.MustRegister(
		c.requestsTotal,
		c.requestLatency,
		c.canaryPercentage,
		c.customFallbacks,
		c.snapshotsTotal,
		c.rollbacksTotal,
		c.updatesTotal,
		c.updateDuration,
		c.validationResults,
		c.hotReloadsTotal,
		c.eventsDropped,
	)

	return c
}

// RecordCanaryRequest counts one routed request and observes its latency.
func (c *Collector) RecordCanaryRequest(branch string, success bool, latencyMS float64) {
	if !c.config.Enabled {
		return
	}
	status := "success"
	if !success {
		status = "error"
	}
	c.requestsTotal.WithLabelValues(branch, status).Inc()
	c.requestLatency.WithLabelValues(branch).Observe(latencyMS / 1000)
}

// SetCanaryPercentage records the current traffic split.
func (c *Collector) SetCanaryPercentage(pct float64) {
	if !c.config.Enabled {
		return
	}
	c.canaryPercentage.Set(pct)
}

// RecordCustomCriteriaFallback counts a custom-criterion fallback.
func (c *Collector) RecordCustomCriteriaFallback() {
	if !c.config.Enabled {
		return
	}
	c.customFallbacks.Inc()
}

// RecordSnapshotCreated counts a captured deployment snapshot.
func (c *Collector) RecordSnapshotCreated() {
	if !c.config.Enabled {
		return
	}
	c.snapshotsTotal.Inc()
}

// RecordRollback counts a finished rollback attempt.
func (c *Collector) RecordRollback(kind string, success bool, durationMS float64) {
	if !c.config.Enabled {
		return
	}
	outcome := "completed"
	if !success {
		outcome = "failed"
	}
	c.rollbacksTotal.WithLabelValues(kind, outcome).Inc()
}

// RecordPolicyUpdate counts a finished dynamic update.
func (c *Collector) RecordPolicyUpdate(result string, durationMS float64) {
	if !c.config.Enabled {
		return
	}
	c.updatesTotal.WithLabelValues(result).Inc()
	c.updateDuration.Observe(durationMS / 1000)
}

// RecordValidation counts one validation run.
func (c *Collector) RecordValidation(level string, valid bool) {
	if !c.config.Enabled {
		return
	}
	c.validationResults.WithLabelValues(level, strconv.FormatBool(valid)).Inc()
}

// RecordHotReload counts a finished hot reload attempt.
func (c *Collector) RecordHotReload(strategy, outcome string) {
	if !c.config.Enabled {
		return
	}
	c.hotReloadsTotal.WithLabelValues(strategy, outcome).Inc()
}

// SetEventsDropped publishes a bus's cumulative drop counter.
func (c *Collector) SetEventsDropped(bus string, count float64) {
	if !c.config.Enabled {
		return
	}
	c.eventsDropped.WithLabelValues(bus).Set(count)
}

// Registry exposes the underlying registry for additional collectors.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns the HTTP handler serving the metrics endpoint.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
