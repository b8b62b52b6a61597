// Package metrics exposes Prometheus metrics and the /healthz endpoint of the
// signal bot.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"signalbot/internal/breaker"
)

// Metrics holds all Prometheus metrics for the signal engine.
type Metrics struct {
	EvaluationsTotal    *prometheus.CounterVec // labels: cycle, state
	EvaluationErrors    *prometheus.CounterVec // labels: cycle, kind
	TransitionsTotal    *prometheus.CounterVec // labels: state
	SuppressedTotal     prometheus.Counter
	StaleObservations   prometheus.Counter
	NotificationErrors  *prometheus.CounterVec // labels: cycle
	CycleDuration       *prometheus.HistogramVec
	FetchDuration       prometheus.Histogram
	CircuitBreakerState *prometheus.GaugeVec   // labels: dependency; 0=closed, 1=open, 2=half-open
	CircuitBreakerTrips *prometheus.CounterVec // labels: dependency
	JobRuns             *prometheus.CounterVec // labels: job, result
}

// NewMetrics creates the metrics and registers them with reg. A nil reg
// uses prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		EvaluationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalbot_evaluations_total",
			Help: "Successful instrument classifications by cycle and state",
		}, []string{"cycle", "state"}),
		EvaluationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalbot_evaluation_errors_total",
			Help: "Instrument evaluations that failed, by cycle and error kind",
		}, []string{"cycle", "kind"}),
		TransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalbot_transitions_total",
			Help: "Transition events emitted by the alert tracker",
		}, []string{"state"}),
		SuppressedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalbot_suppressed_repeats_total",
			Help: "Directional observations suppressed because the state was unchanged",
		}),
		StaleObservations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalbot_stale_observations_total",
			Help: "Tracker updates rejected because a newer observation was stored",
		}),
		NotificationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalbot_notification_errors_total",
			Help: "Failed notification deliveries by cycle",
		}, []string{"cycle"}),
		CycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "signalbot_cycle_duration_seconds",
			Help:    "Wall time of a report or alert cycle",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"cycle"}),
		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalbot_fetch_duration_seconds",
			Help:    "Market data fetch latency per instrument",
			Buckets: prometheus.DefBuckets,
		}),
		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "signalbot_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"dependency"}),
		CircuitBreakerTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalbot_circuit_breaker_trips_total",
			Help: "Times a circuit breaker tripped open",
		}, []string{"dependency"}),
		JobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalbot_job_runs_total",
			Help: "Scheduler job runs by result",
		}, []string{"job", "result"}),
	}

	reg.MustRegister(
		m.EvaluationsTotal,
		m.EvaluationErrors,
		m.TransitionsTotal,
		m.SuppressedTotal,
		m.StaleObservations,
		m.NotificationErrors,
		m.CycleDuration,
		m.FetchDuration,
		m.CircuitBreakerState,
		m.CircuitBreakerTrips,
		m.JobRuns,
	)
	return m
}

// BreakerHook returns a breaker state-change callback feeding the breaker
// gauge and trip counter.
func (m *Metrics) BreakerHook() func(name string, from, to breaker.State) {
	return func(name string, from, to breaker.State) {
		m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		if to == breaker.StateOpen {
			m.CircuitBreakerTrips.WithLabelValues(name).Inc()
		}
	}
}
