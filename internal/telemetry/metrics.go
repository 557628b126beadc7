package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	dropQueueFull    = "queue_full"
	dropEncodeFailed = "encode_failed"
	dropPushFailed   = "push_failed"
	dropUndecodable  = "undecodable"

	tickOK    = "ok"
	tickEmpty = "empty"
	tickError = "error"

	flushOK      = "ok"
	flushSkipped = "skipped"
	flushError   = "error"
)

type Metrics struct {
	collected    prometheus.Counter
	dropped      *prometheus.CounterVec
	ticks        *prometheus.CounterVec
	processed    prometheus.Counter
	tickDuration prometheus.Histogram
	flushes      *prometheus.CounterVec
}

// NewMetrics registers the pipeline collectors on reg. A nil reg yields
// working but unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		collected: f.NewCounter(prometheus.CounterOpts{
			Namespace: "telemetry",
			Name:      "samples_collected_total",
			Help:      "Samples accepted by the collector.",
		}),
		dropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telemetry",
			Name:      "samples_dropped_total",
			Help:      "Samples lost before aggregation, by reason.",
		}, []string{"reason"}),
		ticks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telemetry",
			Name:      "aggregator_ticks_total",
			Help:      "Aggregator ticks by outcome.",
		}, []string{"outcome"}),
		processed: f.NewCounter(prometheus.CounterOpts{
			Namespace: "telemetry",
			Name:      "aggregator_samples_processed_total",
			Help:      "Samples drained and aggregated.",
		}),
		tickDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "telemetry",
			Name:      "aggregator_tick_duration_seconds",
			Help:      "Wall time of non-empty aggregator ticks.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		flushes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "telemetry",
			Name:      "rollup_flushes_total",
			Help:      "Hourly rollup flush attempts by outcome.",
		}, []string{"outcome"}),
	}
}
