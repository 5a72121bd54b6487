package broker

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for the requests counter. One label per terminal path,
// plus the fast paths that never enter the registry.
const (
	outcomeAllowedSafe = "allowed_safe"
	outcomeApproved    = "approved"
	outcomeDenied      = "denied"
	outcomeTimeout     = "timeout"
	outcomeSendFailure = "send_failure"
	outcomeShutdown    = "shutdown"
	outcomeCanceled    = "canceled"
	outcomeNoContext   = "no_context"
	outcomeNoChannel   = "no_channel"
)

// Metrics holds the broker's Prometheus collectors. All methods are safe
// on a nil receiver so the broker can run without instrumentation.
type Metrics struct {
	requests   *prometheus.CounterVec
	pending    prometheus.Gauge
	resolution prometheus.Histogram
	stale      prometheus.Counter
	mismatches prometheus.Counter
}

// NewMetrics creates and registers the broker collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "toolgate",
			Subsystem: "broker",
			Name:      "requests_total",
			Help:      "Approval requests by terminal outcome.",
		}, []string{"outcome"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "toolgate",
			Subsystem: "broker",
			Name:      "pending",
			Help:      "Approval requests currently awaiting resolution.",
		}),
		resolution: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "toolgate",
			Subsystem: "broker",
			Name:      "resolution_seconds",
			Help:      "Time from registration to terminal resolution.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 4, 10),
		}),
		stale: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "toolgate",
			Subsystem: "broker",
			Name:      "stale_responses_total",
			Help:      "Responses referencing unknown or already-settled requests.",
		}),
		mismatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "toolgate",
			Subsystem: "broker",
			Name:      "identity_mismatches_total",
			Help:      "Responses rejected because the responder did not match the requester.",
		}),
	}
	reg.MustRegister(m.requests, m.pending, m.resolution, m.stale, m.mismatches)
	return m
}

func (m *Metrics) outcome(label string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(label).Inc()
}

func (m *Metrics) registered() {
	if m == nil {
		return
	}
	m.pending.Inc()
}

func (m *Metrics) settled(label string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.pending.Dec()
	m.requests.WithLabelValues(label).Inc()
	m.resolution.Observe(elapsed.Seconds())
}

func (m *Metrics) staleResponse() {
	if m == nil {
		return
	}
	m.stale.Inc()
}

func (m *Metrics) identityMismatch() {
	if m == nil {
		return
	}
	m.mismatches.Inc()
}
