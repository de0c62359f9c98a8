// Package metrics registers Prometheus collectors in a private registry
// per process (no scrape endpoint is wired, per SPEC_FULL.md §4.8): the
// collectors exist so pool and request counters are real typed metrics
// instruments rather than bare atomics. The pipelines' statistics loops
// and request paths write to them; nothing in the module reads them back
// other than through Gather.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// PipelineMetrics bundles the collectors for one server pipeline.
type PipelineMetrics struct {
	PoolCore      prometheus.Gauge
	PoolMax       prometheus.Gauge
	PoolCurrent   prometheus.Gauge
	PoolActive    prometheus.Gauge
	PoolQueue     prometheus.Gauge
	Completed     prometheus.Counter
	Rejected      prometheus.Counter
	RequestTotal  *prometheus.CounterVec
	RequestLatency prometheus.Histogram
}

// Registry owns a private prometheus.Registry and the collectors
// registered against it for every pipeline.
type Registry struct {
	reg        *prometheus.Registry
	Pipelines  map[string]*PipelineMetrics
}

// NewRegistry builds an empty metrics registry.
func NewRegistry() *Registry {
	return &Registry{
		reg:       prometheus.NewRegistry(),
		Pipelines: make(map[string]*PipelineMetrics),
	}
}

// ForPipeline returns (creating if needed) the collector bundle for a named
// pipeline ("threaded", "hybrid", "eventloop").
func (r *Registry) ForPipeline(name string) *PipelineMetrics {
	if pm, ok := r.Pipelines[name]; ok {
		return pm
	}

	labels := prometheus.Labels{"pipeline": name}
	pm := &PipelineMetrics{
		PoolCore:    prometheus.NewGauge(prometheus.GaugeOpts{Name: "pool_core_size", ConstLabels: labels}),
		PoolMax:     prometheus.NewGauge(prometheus.GaugeOpts{Name: "pool_max_size", ConstLabels: labels}),
		PoolCurrent: prometheus.NewGauge(prometheus.GaugeOpts{Name: "pool_current_size", ConstLabels: labels}),
		PoolActive:  prometheus.NewGauge(prometheus.GaugeOpts{Name: "pool_active_count", ConstLabels: labels}),
		PoolQueue:   prometheus.NewGauge(prometheus.GaugeOpts{Name: "pool_queue_depth", ConstLabels: labels}),
		Completed:   prometheus.NewCounter(prometheus.CounterOpts{Name: "pool_completed_total", ConstLabels: labels}),
		Rejected:    prometheus.NewCounter(prometheus.CounterOpts{Name: "pool_rejected_total", ConstLabels: labels}),
		RequestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "requests_total", ConstLabels: labels,
		}, []string{"status_class"}),
		RequestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "request_duration_seconds",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.0001, 2, 16),
		}),
	}

	r.reg.MustRegister(pm.PoolCore, pm.PoolMax, pm.PoolCurrent, pm.PoolActive,
		pm.PoolQueue, pm.Completed, pm.Rejected, pm.RequestTotal, pm.RequestLatency)

	r.Pipelines[name] = pm
	return pm
}

// Gather exposes the underlying registry's Gather for a point-in-time dump
// of every collector; nothing in the module calls it at present.
func (r *Registry) Gather() ([]*dto.MetricFamily, error) {
	return r.reg.Gather()
}

// PoolSnapshot is the subset of poolctl.Stats the metrics package records,
// kept as plain fields so this package does not need to import poolctl.
type PoolSnapshot struct {
	Core, Max, Current, Active, QueueDepth int
	CompletedDelta, RejectedDelta          uint64
}

// RecordPool updates the pipeline's pool gauges and advances its counters
// by the given deltas (counters are monotonic; callers pass the increase
// since the last sample).
func (pm *PipelineMetrics) RecordPool(s PoolSnapshot) {
	pm.PoolCore.Set(float64(s.Core))
	pm.PoolMax.Set(float64(s.Max))
	pm.PoolCurrent.Set(float64(s.Current))
	pm.PoolActive.Set(float64(s.Active))
	pm.PoolQueue.Set(float64(s.QueueDepth))
	if s.CompletedDelta > 0 {
		pm.Completed.Add(float64(s.CompletedDelta))
	}
	if s.RejectedDelta > 0 {
		pm.Rejected.Add(float64(s.RejectedDelta))
	}
}

// RecordRequest records one completed request's status class and latency.
func (pm *PipelineMetrics) RecordRequest(statusClass string, latencySeconds float64) {
	pm.RequestTotal.WithLabelValues(statusClass).Inc()
	pm.RequestLatency.Observe(latencySeconds)
}
