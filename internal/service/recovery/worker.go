package recovery

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/vegshop/internal/domain"
	"github.com/vladislavdragonenkov/vegshop/internal/service/checkout"
)

const (
	defaultPollInterval = 30 * time.Second
	defaultGracePeriod  = 2 * time.Minute
	defaultBatchSize    = 20
	defaultMaxAttempts  = 10
)

var (
	receiptRecoveryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vegshop_receipt_recovery_total",
		Help: "Total number of order recovery attempts grouped by result.",
	}, []string{"result"})
	receiptRecoveryBacklog = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vegshop_receipt_recovery_backlog",
		Help: "Number of unfinished orders found during the last recovery scan.",
	})
)

// Resumer продолжает прерванное оформление заказа.
type Resumer interface {
	Resume(ctx context.Context, orderID string) (checkout.Result, error)
}

// WorkerOptions задаёт параметры воркера восстановления.
type WorkerOptions struct {
	Logger       *log.Entry
	PollInterval time.Duration
	GracePeriod  time.Duration
	BatchSize    int
	MaxAttempts  int
	Clock        func() time.Time
}

// Option настраивает Worker.
type Option func(*WorkerOptions)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(opts *WorkerOptions) {
		opts.Logger = logger
	}
}

// WithPollInterval задаёт интервал между сканированиями.
func WithPollInterval(interval time.Duration) Option {
	return func(opts *WorkerOptions) {
		opts.PollInterval = interval
	}
}

// WithGracePeriod задаёт возраст заказа, после которого он считается брошенным.
// Заказы моложе grace period ещё могут обрабатываться синхронным оформлением.
func WithGracePeriod(period time.Duration) Option {
	return func(opts *WorkerOptions) {
		opts.GracePeriod = period
	}
}

// WithBatchSize задаёт количество заказов за один цикл.
func WithBatchSize(size int) Option {
	return func(opts *WorkerOptions) {
		opts.BatchSize = size
	}
}

// WithMaxAttempts задаёт предел попыток восстановления одного заказа.
func WithMaxAttempts(attempts int) Option {
	return func(opts *WorkerOptions) {
		opts.MaxAttempts = attempts
	}
}

// WithClock подменяет источник времени.
func WithClock(clock func() time.Time) Option {
	return func(opts *WorkerOptions) {
		opts.Clock = clock
	}
}

// Report — итог одного цикла восстановления.
type Report struct {
	Scanned   int
	Completed int
	Pending   int
	Failed    int
}

// Worker находит заказы с незавершённой отправкой чека и продолжает оформление.
type Worker struct {
	orders       domain.OrderRepository
	resumer      Resumer
	logger       *log.Entry
	pollInterval time.Duration
	gracePeriod  time.Duration
	batchSize    int
	maxAttempts  int
	now          func() time.Time
}

// NewWorker создаёт воркер восстановления.
func NewWorker(orders domain.OrderRepository, resumer Resumer, options ...Option) *Worker {
	opts := WorkerOptions{
		PollInterval: defaultPollInterval,
		GracePeriod:  defaultGracePeriod,
		BatchSize:    defaultBatchSize,
		MaxAttempts:  defaultMaxAttempts,
	}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "receipt-recovery-worker")
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.GracePeriod < 0 {
		opts.GracePeriod = 0
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return time.Now().UTC() }
	}

	return &Worker{
		orders:       orders,
		resumer:      resumer,
		logger:       logger,
		pollInterval: opts.PollInterval,
		gracePeriod:  opts.GracePeriod,
		batchSize:    opts.BatchSize,
		maxAttempts:  opts.MaxAttempts,
		now:          opts.Clock,
	}
}

// Run выполняет сканирование до отмены ctx.
func (w *Worker) Run(ctx context.Context) {
	if w.orders == nil || w.resumer == nil {
		w.logger.Warn("receipt recovery worker is disabled: dependencies are nil")
		return
	}

	w.ProcessOnce(ctx)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.ProcessOnce(ctx)
		}
	}
}

// ProcessOnce выполняет один цикл восстановления.
func (w *Worker) ProcessOnce(ctx context.Context) Report {
	var report Report
	if ctx.Err() != nil {
		return report
	}

	orders, err := w.orders.ListUnfinished(ctx, w.now().Add(-w.gracePeriod), w.maxAttempts, w.batchSize)
	if err != nil {
		receiptRecoveryTotal.WithLabelValues("scan_error").Inc()
		w.logger.WithError(err).Warn("failed to list unfinished orders")
		return report
	}
	receiptRecoveryBacklog.Set(float64(len(orders)))
	report.Scanned = len(orders)

	for _, order := range orders {
		if ctx.Err() != nil {
			return report
		}

		logger := w.logger.WithFields(log.Fields{
			"order_id": order.ID,
			"state":    order.ReceiptState,
			"attempts": order.RecoveryAttempts,
		})

		result, err := w.resumer.Resume(ctx, order.ID)
		switch {
		case errors.Is(err, domain.ErrCheckoutInProgress):
			// Заказ уже восстанавливается другим экземпляром.
			receiptRecoveryTotal.WithLabelValues("skipped").Inc()
			continue
		case err != nil:
			report.Failed++
			receiptRecoveryTotal.WithLabelValues("failed").Inc()
			logger.WithError(err).Warn("order recovery failed")
			continue
		}

		if len(result.Warnings) > 0 {
			report.Pending++
			receiptRecoveryTotal.WithLabelValues("pending").Inc()
			if order.RecoveryAttempts+1 >= w.maxAttempts {
				logger.Error("order recovery attempts exhausted")
			}
			continue
		}

		report.Completed++
		receiptRecoveryTotal.WithLabelValues("completed").Inc()
	}

	if report.Scanned > 0 {
		w.logger.WithFields(log.Fields{
			"scanned":   report.Scanned,
			"completed": report.Completed,
			"pending":   report.Pending,
			"failed":    report.Failed,
		}).Info("receipt recovery cycle finished")
	}
	return report
}
