package quality

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	updateOK          = "ok"
	updateMergeFailed = "merge_failed"
	updateRateLimited = "rate_limited"
	updateInvalid     = "invalid"
)

type Metrics struct {
	updates    *prometheus.CounterVec
	alerts     *prometheus.CounterVec
	broadcasts *prometheus.CounterVec
	throttled  prometheus.Counter
	dropped    prometheus.Counter
	observers  prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		updates: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quality",
			Name:      "updates_total",
			Help:      "Participant quality updates by outcome.",
		}, []string{"outcome"}),
		alerts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quality",
			Name:      "alerts_total",
			Help:      "Alerts raised by kind.",
		}, []string{"kind"}),
		broadcasts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "quality",
			Name:      "broadcasts_total",
			Help:      "Messages fanned out to observers by type.",
		}, []string{"type"}),
		throttled: f.NewCounter(prometheus.CounterOpts{
			Namespace: "quality",
			Name:      "updates_throttled_total",
			Help:      "Routine broadcasts suppressed by the per-participant throttle.",
		}),
		dropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: "quality",
			Name:      "observer_messages_dropped_total",
			Help:      "Messages dropped because an observer send buffer was full.",
		}),
		observers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "quality",
			Name:      "observers",
			Help:      "Currently subscribed observers.",
		}),
	}
}
