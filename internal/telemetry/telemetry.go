// Package telemetry exposes the core's operational metrics via
// prometheus/client_golang, covering tick duration, signals emitted,
// candidates upserted, and alert dispatch failures across every
// scheduler, registered against a standard Prometheus registry so the
// ops endpoint can be scraped directly.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles every counter/gauge/histogram the schedulers update.
// A single instance is shared process-wide; all fields are safe for
// concurrent use.
type Metrics struct {
	TickDuration   *prometheus.HistogramVec
	SignalsEmitted *prometheus.CounterVec
	CandidatesUpserted prometheus.Counter
	AlertDispatchFailures *prometheus.CounterVec
	AlertsSent     *prometheus.CounterVec
	StorageErrors  *prometheus.CounterVec
	BreakerState   *prometheus.GaugeVec
}

// New registers every metric against reg and returns the bundle. Pass
// prometheus.NewRegistry() for isolated tests; the production binaries
// pass prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		TickDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pumpguard",
			Name:      "tick_duration_seconds",
			Help:      "Wall-clock duration of one scheduler tick, by component.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"component"}),

		SignalsEmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pumpguard",
			Name:      "signals_emitted_total",
			Help:      "Raw signals inserted by the detector, by market side and strength.",
		}, []string{"market_side", "strength"}),

		CandidatesUpserted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pumpguard",
			Name:      "candidates_upserted_total",
			Help:      "Pump candidates written by the analysis runner.",
		}),

		AlertDispatchFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pumpguard",
			Name:      "alert_dispatch_failures_total",
			Help:      "Telegram dispatch failures, by component.",
		}, []string{"component"}),

		AlertsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pumpguard",
			Name:      "alerts_sent_total",
			Help:      "Alerts successfully dispatched, by component and confidence tier.",
		}, []string{"component", "confidence"}),

		StorageErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pumpguard",
			Name:      "storage_errors_total",
			Help:      "Storage-layer failures observed at a scheduler's tick boundary, by component.",
		}, []string{"component"}),

		BreakerState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "pumpguard",
			Name:      "breaker_state",
			Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open), by breaker name.",
		}, []string{"name"}),
	}
}

// BreakerStateValue maps a gobreaker.State string to the BreakerState
// gauge's numeric encoding.
func BreakerStateValue(state string) float64 {
	switch state {
	case "closed":
		return 0
	case "half-open":
		return 1
	case "open":
		return 2
	default:
		return 0
	}
}
