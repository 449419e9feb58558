package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestModuleMetricsObserve(t *testing.T) {
	m := ModuleMetrics()
	m.Observe("vault", "/v1/stake", 200, 5*time.Millisecond)
	m.Observe("vault", "/v1/stake", 409, 5*time.Millisecond)
	m.RecordThrottle("vault", "")

	if got := testutil.ToFloat64(m.requests.WithLabelValues("vault", "/v1/stake", "success")); got != 1 {
		t.Fatalf("expected one success, got %v", got)
	}
	if got := testutil.ToFloat64(m.errors.WithLabelValues("vault", "/v1/stake", "409")); got != 1 {
		t.Fatalf("expected one 409, got %v", got)
	}
	if got := testutil.ToFloat64(m.throttles.WithLabelValues("vault", "unspecified")); got != 1 {
		t.Fatalf("expected one throttle, got %v", got)
	}
}

func TestEventsRecord(t *testing.T) {
	m := Events()
	m.RecordEvent("vault.staked")
	m.RecordEvent(" ")
	if got := testutil.ToFloat64(m.emitted.WithLabelValues("vault.staked")); got != 1 {
		t.Fatalf("expected one staked event, got %v", got)
	}
	if got := testutil.ToFloat64(m.emitted.WithLabelValues("unknown")); got != 1 {
		t.Fatalf("expected one unknown event, got %v", got)
	}
}
