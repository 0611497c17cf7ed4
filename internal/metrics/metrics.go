package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups all Prometheus instruments used across the application.
// Registered once at startup via New(); passed by pointer wherever needed.
type Metrics struct {
	RecordsIngested    prometheus.Counter
	IngestRejected     prometheus.Counter
	DispatchSent       prometheus.Counter
	DispatchFailed     prometheus.Counter
	DispatchSkipped    *prometheus.CounterVec
	DispatchConflicts  prometheus.Counter
	DispatchLatency    prometheus.Histogram
	CycleDuration      prometheus.Histogram
	DispatchQueueDepth *prometheus.GaugeVec
}

// New registers all instruments with the given Prometheus registerer and
// returns the populated Metrics struct.
// Using a custom registry (instead of prometheus.DefaultRegisterer) keeps
// tests isolated and avoids global state.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RecordsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mailqueue_records_ingested_total",
			Help: "Total number of submissions persisted as queue records.",
		}),
		IngestRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mailqueue_ingest_rejected_total",
			Help: "Total number of submissions rejected by validation or the store.",
		}),
		DispatchSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mailqueue_dispatch_sent_total",
			Help: "Total number of records delivered by the transport.",
		}),
		DispatchFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mailqueue_dispatch_failed_total",
			Help: "Total number of transport failures; the record stays eligible for retry.",
		}),
		DispatchSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mailqueue_dispatch_skipped_total",
			Help: "Records listed by a cycle but not dispatched, by reason.",
		}, []string{"reason"}),
		DispatchConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mailqueue_dispatch_conflicts_total",
			Help: "Conditional writes lost to a concurrent cycle.",
		}),
		DispatchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mailqueue_dispatch_latency_seconds",
			Help:    "Time spent in the transport send for one record.",
			Buckets: prometheus.DefBuckets,
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mailqueue_cycle_duration_seconds",
			Help:    "Wall time of one dispatch cycle.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		DispatchQueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "mailqueue_dispatch_queue_depth",
			Help: "Records waiting in the dispatch work queue, by tier.",
		}, []string{"tier"}),
	}

	reg.MustRegister(
		m.RecordsIngested,
		m.IngestRejected,
		m.DispatchSent,
		m.DispatchFailed,
		m.DispatchSkipped,
		m.DispatchConflicts,
		m.DispatchLatency,
		m.CycleDuration,
		m.DispatchQueueDepth,
	)

	return m
}

// DispatchHooks returns the callbacks expected by worker.MetricHooks.
// Centralises the prometheus observation calls so the worker package stays import-free.
func (m *Metrics) DispatchHooks() (
	onSent func(latency time.Duration),
	onFailed func(latency time.Duration),
	onSkipped func(reason string),
	onConflict func(),
	onCycle func(elapsed time.Duration),
	onQueueDepth func(first, retry int),
) {
	onSent = func(latency time.Duration) {
		m.DispatchSent.Inc()
		m.DispatchLatency.Observe(latency.Seconds())
	}
	onFailed = func(latency time.Duration) {
		m.DispatchFailed.Inc()
		m.DispatchLatency.Observe(latency.Seconds())
	}
	onSkipped = func(reason string) {
		m.DispatchSkipped.WithLabelValues(reason).Inc()
	}
	onConflict = func() {
		m.DispatchConflicts.Inc()
	}
	onCycle = func(elapsed time.Duration) {
		m.CycleDuration.Observe(elapsed.Seconds())
	}
	onQueueDepth = func(first, retry int) {
		m.DispatchQueueDepth.WithLabelValues("first").Set(float64(first))
		m.DispatchQueueDepth.WithLabelValues("retry").Set(float64(retry))
	}
	return
}

// IngestHooks returns the callbacks expected by service.IngestHooks.
func (m *Metrics) IngestHooks() (onIngested func(n int), onRejected func(n int)) {
	onIngested = func(n int) { m.RecordsIngested.Add(float64(n)) }
	onRejected = func(n int) { m.IngestRejected.Add(float64(n)) }
	return
}
