package metrics

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Результаты оформления заказа для метрик.
const (
	ResultSuccess  = "success"
	ResultDegraded = "degraded"
	ResultRejected = "rejected"
	ResultFailed   = "failed"
)

// CheckoutMetrics — метрики оформления заказов. Методы безопасны для
// конкурентного вызова из запросов и фоновых отправок писем.
type CheckoutMetrics struct {
	checkouts *prometheus.CounterVec
	// warnings считает шаги, упавшие после записи заказа.
	warnings *prometheus.CounterVec
	// records: записи в timeline и outbox по виду.
	records *prometheus.CounterVec

	checkoutDuration prometheus.Histogram
	stepDuration     *prometheus.HistogramVec

	inFlight             prometheus.Gauge
	pendingNotifications prometheus.Gauge
}

const (
	recordTimeline = "timeline"
	recordOutbox   = "outbox"
)

// Шаги укладываются в миллисекунды, письмо по SMTP может занять секунды.
var stepBuckets = prometheus.ExponentialBuckets(0.001, 2.5, 12)

// NewCheckoutMetrics регистрирует метрики в prometheus.DefaultRegisterer.
func NewCheckoutMetrics() *CheckoutMetrics {
	return NewCheckoutMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

// NewCheckoutMetricsWithRegisterer регистрирует метрики в reg. Если коллектор
// с тем же именем уже есть, используется он, так что повторный вызов безопасен.
func NewCheckoutMetricsWithRegisterer(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	return &CheckoutMetrics{
		checkouts: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vegshop_checkout_total",
			Help: "Checkout attempts by result.",
		}, []string{"result"})),
		warnings: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vegshop_checkout_warnings_total",
			Help: "Checkout steps that failed after the order was stored.",
		}, []string{"step"})),
		records: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vegshop_checkout_records_total",
			Help: "Timeline and outbox records written during checkout.",
		}, []string{"kind"})),
		checkoutDuration: register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "vegshop_checkout_duration_seconds",
			Help:    "Checkout request duration.",
			Buckets: prometheus.DefBuckets,
		})),
		stepDuration: register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vegshop_checkout_step_duration_seconds",
			Help:    "Duration of a single checkout step.",
			Buckets: stepBuckets,
		}, []string{"step"})),
		inFlight: register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vegshop_checkout_in_flight",
			Help: "Checkouts currently running.",
		})),
		pendingNotifications: register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vegshop_checkout_pending_notifications",
			Help: "Background receipt emails not finished yet.",
		})),
	}
}

// register возвращает уже зарегистрированный коллектор того же типа вместо c.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	err := reg.Register(c)
	if err == nil {
		return c
	}
	var dup prometheus.AlreadyRegisteredError
	if !errors.As(err, &dup) {
		panic(fmt.Sprintf("metrics: register: %v", err))
	}
	existing, ok := dup.ExistingCollector.(C)
	if !ok {
		panic(fmt.Sprintf("metrics: collector registered with type %T", dup.ExistingCollector))
	}
	return existing
}

// RecordCheckout фиксирует результат оформления и его длительность.
func (m *CheckoutMetrics) RecordCheckout(result string, duration time.Duration) {
	m.checkouts.WithLabelValues(result).Inc()
	m.checkoutDuration.Observe(duration.Seconds())
}

// RecordWarning увеличивает счётчик предупреждений шага.
func (m *CheckoutMetrics) RecordWarning(step string) {
	m.warnings.WithLabelValues(step).Inc()
}

// RecordStepDuration записывает время выполнения шага.
func (m *CheckoutMetrics) RecordStepDuration(step string, duration time.Duration) {
	m.stepDuration.WithLabelValues(step).Observe(duration.Seconds())
}

func (m *CheckoutMetrics) RecordTimelineEvent() {
	m.records.WithLabelValues(recordTimeline).Inc()
}

func (m *CheckoutMetrics) RecordOutboxEvent() {
	m.records.WithLabelValues(recordOutbox).Inc()
}

// CheckoutStarted и CheckoutFinished вызываются парой вокруг оформления.
func (m *CheckoutMetrics) CheckoutStarted() {
	m.inFlight.Inc()
}

func (m *CheckoutMetrics) CheckoutFinished() {
	m.inFlight.Dec()
}

// NotificationQueued и NotificationDone отслеживают асинхронные письма.
func (m *CheckoutMetrics) NotificationQueued() {
	m.pendingNotifications.Inc()
}

func (m *CheckoutMetrics) NotificationDone() {
	m.pendingNotifications.Dec()
}
