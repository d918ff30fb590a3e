package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics exposes the core gameplay counters.
type Metrics struct {
	HandsStarted      prometheus.Counter
	HandsCompleted    prometheus.Counter
	HandsFrozen       prometheus.Counter
	ActionsApplied    *prometheus.CounterVec
	ActionsRejected   *prometheus.CounterVec
	TimeoutsScheduled prometheus.Counter
	TimeoutsFired     prometheus.Counter
	TimeoutsStale     prometheus.Counter
	ActiveTables      prometheus.Gauge
}

// NewMetrics registers gameplay metrics on the given registerer. Tests pass
// a private registry to avoid global registration collisions.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	const namespace = "cardroom"

	m := &Metrics{
		HandsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hands_started_total",
			Help:      "Hands dealt",
		}),
		HandsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hands_completed_total",
			Help:      "Hands settled and archived",
		}),
		HandsFrozen: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hands_frozen_total",
			Help:      "Hands frozen by an invariant violation",
		}),
		ActionsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_applied_total",
			Help:      "Validated actions applied to hand state",
		}, []string{"kind"}),
		ActionsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_rejected_total",
			Help:      "Action submissions rejected before mutation",
		}, []string{"code"}),
		TimeoutsScheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turn_timeouts_scheduled_total",
			Help:      "Turn timeouts scheduled with the timer service",
		}),
		TimeoutsFired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turn_timeouts_fired_total",
			Help:      "Turn timeout callbacks delivered",
		}),
		TimeoutsStale: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turn_timeouts_stale_total",
			Help:      "Timeout callbacks discarded by the sequence fence",
		}),
		ActiveTables: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_tables",
			Help:      "Tables currently open",
		}),
	}

	reg.MustRegister(
		m.HandsStarted,
		m.HandsCompleted,
		m.HandsFrozen,
		m.ActionsApplied,
		m.ActionsRejected,
		m.TimeoutsScheduled,
		m.TimeoutsFired,
		m.TimeoutsStale,
		m.ActiveTables,
	)
	return m
}

// MetricsHandler serves the prometheus scrape endpoint for a registry.
func MetricsHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
