// Package outbox доставляет события жизненного цикла заказа (order.placed,
// order.receipt_ready, cart.cleared и т.д.) из transactional outbox в брокер.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/vegshop/internal/domain"
)

const (
	defaultPollInterval   = time.Second
	defaultBatchSize      = 100
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 50 * time.Millisecond
	maxRetryDelay         = 2 * time.Second
	defaultPublishTimeout = 5 * time.Second
)

var (
	eventsRelayed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vegshop_order_events_relayed_total",
		Help: "Order lifecycle events handled by the outbox relay, by event type and result.",
	}, []string{"event_type", "result"})
	relayBacklog = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vegshop_outbox_pending_records",
		Help: "Order events waiting in the outbox.",
	})
	relayBacklogAge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vegshop_outbox_oldest_pending_age_seconds",
		Help: "Age of the oldest order event waiting in the outbox.",
	})
)

// errMalformedPayload — payload события не является JSON; повторять публикацию бессмысленно.
var errMalformedPayload = errors.New("event payload is not valid JSON")

// Option настраивает Worker.
type Option func(*Worker)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithDLQPublisher задаёт publisher для событий, которые не удалось доставить.
func WithDLQPublisher(publisher domain.OutboxPublisher) Option {
	return func(w *Worker) { w.dlq = publisher }
}

// WithPollInterval задаёт частоту опроса outbox.
func WithPollInterval(interval time.Duration) Option {
	return func(w *Worker) {
		if interval > 0 {
			w.pollInterval = interval
		}
	}
}

// WithBatchSize задаёт размер пачки событий за один цикл.
func WithBatchSize(size int) Option {
	return func(w *Worker) {
		if size > 0 {
			w.batchSize = size
		}
	}
}

// WithMaxAttempts задаёт число попыток публикации одного события.
func WithMaxAttempts(attempts int) Option {
	return func(w *Worker) {
		if attempts > 0 {
			w.maxAttempts = attempts
		}
	}
}

// WithRetryBaseDelay задаёт первую паузу между попытками; 0 отключает паузы.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(w *Worker) {
		if delay >= 0 {
			w.retryBaseDelay = delay
		}
	}
}

// WithPublishTimeout ограничивает одну попытку публикации.
func WithPublishTimeout(timeout time.Duration) Option {
	return func(w *Worker) {
		if timeout > 0 {
			w.publishTimeout = timeout
		}
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(w *Worker) {
		if now != nil {
			w.now = now
		}
	}
}

// Worker пересылает события заказов из outbox в брокер. Событие, которое не
// удалось доставить за maxAttempts попыток, уходит в DLQ и помечается failed.
type Worker struct {
	repo      domain.OutboxRepository
	publisher domain.OutboxPublisher
	dlq       domain.OutboxPublisher
	logger    *log.Entry
	now       func() time.Time

	pollInterval   time.Duration
	batchSize      int
	maxAttempts    int
	retryBaseDelay time.Duration
	publishTimeout time.Duration
}

// NewWorker создаёт relay поверх репозитория outbox.
func NewWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, opts ...Option) *Worker {
	w := &Worker{
		repo:           repo,
		publisher:      publisher,
		logger:         log.WithField("component", "outbox-worker"),
		now:            func() time.Time { return time.Now().UTC() },
		pollInterval:   defaultPollInterval,
		batchSize:      defaultBatchSize,
		maxAttempts:    defaultMaxAttempts,
		retryBaseDelay: defaultRetryBaseDelay,
		publishTimeout: defaultPublishTimeout,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run опрашивает outbox до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.repo == nil || w.publisher == nil {
		w.logger.Warn("outbox relay disabled: repository or publisher is not configured")
		return
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		w.ProcessOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Report — итог одного цикла.
type Report struct {
	Sent   int
	Failed int
	// DeadLettered: сколько из Failed удалось положить в DLQ.
	DeadLettered int
}

// ProcessOnce обрабатывает одну пачку событий в порядке их создания.
func (w *Worker) ProcessOnce(ctx context.Context) Report {
	var report Report
	if ctx.Err() != nil {
		return report
	}

	events, err := w.repo.PullPending(ctx, w.batchSize)
	if err != nil {
		w.logger.WithError(err).Warn("failed to pull order events from outbox")
		return report
	}

	for _, event := range events {
		if ctx.Err() != nil {
			break
		}
		w.relay(ctx, event, &report)
	}

	w.observeBacklog(ctx)
	if len(events) > 0 {
		w.logger.WithFields(log.Fields{
			"sent":          report.Sent,
			"failed":        report.Failed,
			"dead_lettered": report.DeadLettered,
		}).Debug("order events relayed")
	}
	return report
}

func (w *Worker) relay(ctx context.Context, event domain.OutboxMessage, report *Report) {
	fields := log.Fields{"outbox_id": event.ID, "order_id": event.AggregateID, "event_type": event.EventType}

	err := w.deliver(ctx, event)
	if err == nil {
		report.Sent++
		eventsRelayed.WithLabelValues(event.EventType, "sent").Inc()
		if markErr := w.repo.MarkSent(ctx, event.ID); markErr != nil {
			w.logger.WithError(markErr).WithFields(fields).Warn("event published but not marked as sent")
		}
		return
	}
	if ctx.Err() != nil {
		// Событие остаётся pending и уйдёт в следующем запуске.
		return
	}

	report.Failed++
	eventsRelayed.WithLabelValues(event.EventType, "failed").Inc()
	w.logger.WithError(err).WithFields(fields).Error("order event could not be delivered")

	if w.dlq != nil {
		if dlqErr := w.deadLetter(ctx, event, err); dlqErr != nil {
			eventsRelayed.WithLabelValues(event.EventType, "dlq_failed").Inc()
			w.logger.WithError(dlqErr).WithFields(fields).Warn("failed to dead-letter order event")
		} else {
			report.DeadLettered++
		}
	}
	if markErr := w.repo.MarkFailed(ctx, event.ID); markErr != nil {
		w.logger.WithError(markErr).WithFields(fields).Warn("failed to mark order event as failed")
	}
}

// deliver публикует событие, повторяя попытки с экспоненциальной паузой.
func (w *Worker) deliver(ctx context.Context, event domain.OutboxMessage) error {
	if len(event.Payload) > 0 && !json.Valid(event.Payload) {
		return errMalformedPayload
	}

	var lastErr error
	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, w.publishTimeout)
		lastErr = w.publisher.Publish(attemptCtx, event)
		cancel()
		if lastErr == nil {
			return nil
		}
		if attempt == w.maxAttempts {
			break
		}
		eventsRelayed.WithLabelValues(event.EventType, "retry").Inc()

		if delay := w.backoff(attempt); delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	return fmt.Errorf("%w after %d attempts: %v", domain.ErrOutboxPublish, w.maxAttempts, lastErr)
}

// backoff возвращает паузу после attempt-й неудачи: base, 2*base, 4*base... не больше maxRetryDelay.
func (w *Worker) backoff(attempt int) time.Duration {
	if w.retryBaseDelay <= 0 || attempt < 1 {
		return 0
	}
	delay := w.retryBaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	return min(delay, maxRetryDelay)
}

// deadLetterEnvelope — содержимое сообщения в DLQ.
type deadLetterEnvelope struct {
	OutboxID  string          `json:"outbox_id"`
	OrderID   string          `json:"order_id"`
	Aggregate string          `json:"aggregate_type"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	RawBody   []byte          `json:"raw_payload,omitempty"`
	Error     string          `json:"error"`
	FailedAt  time.Time       `json:"failed_at"`
}

func (w *Worker) deadLetter(ctx context.Context, event domain.OutboxMessage, cause error) error {
	envelope := deadLetterEnvelope{
		OutboxID:  event.ID,
		OrderID:   event.AggregateID,
		Aggregate: event.AggregateType,
		EventType: event.EventType,
		Error:     cause.Error(),
		FailedAt:  w.now(),
	}
	if errors.Is(cause, errMalformedPayload) {
		envelope.RawBody = event.Payload
	} else {
		envelope.Payload = event.Payload
	}

	body, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("encode dead letter: %w", err)
	}

	dlqCtx, cancel := context.WithTimeout(ctx, w.publishTimeout)
	defer cancel()
	return w.dlq.Publish(dlqCtx, domain.OutboxMessage{
		ID:            event.ID,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.EventType,
		Payload:       body,
		CreatedAt:     event.CreatedAt,
	})
}

func (w *Worker) observeBacklog(ctx context.Context) {
	stats, err := w.repo.Stats(ctx)
	if err != nil {
		w.logger.WithError(err).Warn("failed to read outbox backlog")
		return
	}
	relayBacklog.Set(float64(stats.PendingCount))
	if stats.PendingCount == 0 || stats.OldestPendingAt.IsZero() {
		relayBacklogAge.Set(0)
		return
	}
	relayBacklogAge.Set(max(0, w.now().Sub(stats.OldestPendingAt).Seconds()))
}
