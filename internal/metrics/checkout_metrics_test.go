package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func newTestMetrics(t *testing.T) (*CheckoutMetrics, *prometheus.Registry) {
	t.Helper()
	registry := prometheus.NewRegistry()
	return NewCheckoutMetricsWithRegisterer(registry), registry
}

func TestRecordCheckout(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordCheckout(ResultSuccess, 150*time.Millisecond)
	m.RecordCheckout(ResultSuccess, 10*time.Millisecond)
	m.RecordCheckout(ResultRejected, time.Millisecond)

	if got := testutil.ToFloat64(m.checkouts.WithLabelValues(ResultSuccess)); got != 2 {
		t.Fatalf("expected 2 successful checkouts, got %v", got)
	}
	if got := testutil.ToFloat64(m.checkouts.WithLabelValues(ResultRejected)); got != 1 {
		t.Fatalf("expected 1 rejected checkout, got %v", got)
	}

	var metric dto.Metric
	if err := m.checkoutDuration.Write(&metric); err != nil {
		t.Fatalf("write histogram: %v", err)
	}
	if metric.GetHistogram().GetSampleCount() != 3 {
		t.Fatalf("expected 3 duration samples, got %d", metric.GetHistogram().GetSampleCount())
	}
}

func TestRecordWarningAndSteps(t *testing.T) {
	m, registry := newTestMetrics(t)

	m.RecordWarning("receipt_upload")
	m.RecordWarning("receipt_upload")
	m.RecordStepDuration("persist", 5*time.Millisecond)

	if got := testutil.ToFloat64(m.warnings.WithLabelValues("receipt_upload")); got != 2 {
		t.Fatalf("expected 2 warnings, got %v", got)
	}

	count, err := testutil.GatherAndCount(registry, "vegshop_checkout_step_duration_seconds")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one step series, got %d", count)
	}
}

func TestGauges(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.CheckoutStarted()
	m.CheckoutStarted()
	m.CheckoutFinished()
	m.NotificationQueued()

	if got := testutil.ToFloat64(m.inFlight); got != 1 {
		t.Fatalf("expected 1 in-flight checkout, got %v", got)
	}
	if got := testutil.ToFloat64(m.pendingNotifications); got != 1 {
		t.Fatalf("expected 1 pending notification, got %v", got)
	}
	m.NotificationDone()
	if got := testutil.ToFloat64(m.pendingNotifications); got != 0 {
		t.Fatalf("expected no pending notifications, got %v", got)
	}
}

func TestRegisterTwiceReusesCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	first := NewCheckoutMetricsWithRegisterer(registry)
	second := NewCheckoutMetricsWithRegisterer(registry)

	first.RecordTimelineEvent()
	second.RecordTimelineEvent()
	second.RecordOutboxEvent()

	if got := testutil.ToFloat64(first.records.WithLabelValues(recordTimeline)); got != 2 {
		t.Fatalf("expected shared timeline counter = 2, got %v", got)
	}
	if got := testutil.ToFloat64(first.records.WithLabelValues(recordOutbox)); got != 1 {
		t.Fatalf("expected 1 outbox record, got %v", got)
	}
}

func TestRegisterPanicsOnTypeClash(t *testing.T) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewGauge(prometheus.GaugeOpts{Name: "vegshop_checkout_in_flight", Help: "clash"}))

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for a collector of another type")
		}
	}()
	register(registry, prometheus.NewCounterVec(prometheus.CounterOpts{Name: "vegshop_checkout_in_flight", Help: "clash"}, []string{"step"}))
}
