// Package metrics holds the Prometheus collectors for outbound and inbound connector calls.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "connectors"

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	attempts        *prometheus.CounterVec
	outboundLatency *prometheus.HistogramVec
	inbound         *prometheus.CounterVec
	inboundLatency  *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg. A nil reg skips registration.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbound_attempts_total",
			Help:      "Outbound call attempts by endpoint and outcome code.",
		}, []string{"endpoint", "outcome"}),
		outboundLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "outbound_attempt_seconds",
			Help:      "Duration of one outbound attempt including time spent waiting for the endpoint lock.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		inbound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_requests_total",
			Help:      "Dispatched inbound requests by method and outcome code.",
		}, []string{"method", "outcome"}),
		inboundLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inbound_request_seconds",
			Help:      "Duration of inbound request dispatch.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
	if reg != nil {
		reg.MustRegister(m.attempts, m.outboundLatency, m.inbound, m.inboundLatency)
	}
	return m
}

// ObserveAttempt records one outbound attempt.
func (m *Metrics) ObserveAttempt(endpoint, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(endpoint, outcome).Inc()
	m.outboundLatency.WithLabelValues(endpoint).Observe(d.Seconds())
}

// ObserveInbound records one dispatched request.
func (m *Metrics) ObserveInbound(method, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.inbound.WithLabelValues(method, outcome).Inc()
	m.inboundLatency.WithLabelValues(method).Observe(d.Seconds())
}
