package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

const metricsTestPrefix = "metrics:metrics_test"

func TestObserveAttempt(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveAttempt("127.0.0.1:80", "OK", 10*time.Millisecond)
	m.ObserveAttempt("127.0.0.1:80", "OK", 10*time.Millisecond)
	m.ObserveAttempt("127.0.0.1:80", "ENDPOINT_UNREACHABLE", time.Millisecond)

	if got := testutil.ToFloat64(m.attempts.WithLabelValues("127.0.0.1:80", "OK")); got != 2 {
		t.Errorf("%s - OK attempts = %v, want 2", metricsTestPrefix, got)
	}
	if got := testutil.ToFloat64(m.attempts.WithLabelValues("127.0.0.1:80", "ENDPOINT_UNREACHABLE")); got != 1 {
		t.Errorf("%s - unreachable attempts = %v, want 1", metricsTestPrefix, got)
	}
}

func TestObserveInbound(t *testing.T) {
	m := New(nil)
	m.ObserveInbound("GetUserInfo", "OK", time.Millisecond)
	if got := testutil.ToFloat64(m.inbound.WithLabelValues("GetUserInfo", "OK")); got != 1 {
		t.Errorf("%s - inbound = %v, want 1", metricsTestPrefix, got)
	}
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.ObserveAttempt("x", "OK", 0)
	m.ObserveInbound("x", "OK", 0)
}
