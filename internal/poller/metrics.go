package poller

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "edge_console"

// Metrics is shared by every poller; series are labelled by poller name.
// A nil *Metrics records nothing.
type Metrics struct {
	polls              *prometheus.CounterVec
	pollDuration       *prometheus.HistogramVec
	lastSuccess        *prometheus.GaugeVec
	breakerState       *prometheus.GaugeVec
	breakerTransitions *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		polls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "polls_total",
				Help:      "Backend polls by poller and outcome.",
			},
			[]string{"poller", "outcome"},
		),
		pollDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "poll_duration_seconds",
				Help:      "Backend poll latency in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2.5, 10),
			},
			[]string{"poller"},
		),
		lastSuccess: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "poll_last_success_timestamp_seconds",
				Help:      "Unix time of the last successful poll.",
			},
			[]string{"poller"},
		),
		breakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "breaker_state",
				Help:      "Circuit breaker state: 0 closed, 1 open, 2 half-open.",
			},
			[]string{"poller"},
		),
		breakerTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "breaker_transitions_total",
				Help:      "Circuit breaker state transitions.",
			},
			[]string{"poller", "from", "to"},
		),
	}
}

func (m *Metrics) observePoll(poller, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.polls.WithLabelValues(poller, outcome).Inc()
	if outcome == outcomeBreakerOpen {
		return
	}
	m.pollDuration.WithLabelValues(poller).Observe(elapsed.Seconds())
	if outcome == outcomeSuccess {
		m.lastSuccess.WithLabelValues(poller).SetToCurrentTime()
	}
}

func (m *Metrics) breakerChanged(poller string, from, to BreakerState) {
	if m == nil {
		return
	}
	m.breakerTransitions.WithLabelValues(poller, from.String(), to.String()).Inc()
	m.breakerState.WithLabelValues(poller).Set(float64(to))
}
