package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/vegshop/internal/domain"
)

const (
	defaultSweepInterval   = 10 * time.Minute
	defaultSweepBatchSize  = 500
	defaultSweepMaxBatches = 100
)

var (
	sweepRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vegshop_idempotency_sweep_runs_total",
		Help: "Idempotency key sweeps by result.",
	}, []string{"result"})
	sweptKeys = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vegshop_idempotency_swept_keys_total",
		Help: "Expired checkout idempotency keys removed.",
	})
)

// SweepOption настраивает Sweeper.
type SweepOption func(*Sweeper)

// WithSweepLogger задаёт logger.
func WithSweepLogger(logger *log.Entry) SweepOption {
	return func(s *Sweeper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSweepInterval задаёт паузу между проходами.
func WithSweepInterval(interval time.Duration) SweepOption {
	return func(s *Sweeper) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

// WithSweepBatchSize задаёт число ключей, удаляемых одним запросом.
func WithSweepBatchSize(size int) SweepOption {
	return func(s *Sweeper) {
		if size > 0 {
			s.batchSize = size
		}
	}
}

// WithMaxBatches ограничивает число запросов за один проход; остаток удалится в следующем.
func WithMaxBatches(n int) SweepOption {
	return func(s *Sweeper) {
		if n > 0 {
			s.maxBatches = n
		}
	}
}

// WithSweepClock подменяет источник времени.
func WithSweepClock(now func() time.Time) SweepOption {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

// Sweeper удаляет просроченные ключи Idempotency-Key оформления заказов.
type Sweeper struct {
	repo       domain.IdempotencyRepository
	logger     *log.Entry
	now        func() time.Time
	interval   time.Duration
	batchSize  int
	maxBatches int
}

// NewSweeper создаёт Sweeper поверх репозитория ключей.
func NewSweeper(repo domain.IdempotencyRepository, opts ...SweepOption) *Sweeper {
	s := &Sweeper{
		repo:       repo,
		logger:     log.WithField("component", "idempotency-sweeper"),
		now:        func() time.Time { return time.Now().UTC() },
		interval:   defaultSweepInterval,
		batchSize:  defaultSweepBatchSize,
		maxBatches: defaultSweepMaxBatches,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run выполняет проходы до отмены ctx; первый проход сразу при старте.
func (s *Sweeper) Run(ctx context.Context) {
	if s.repo == nil {
		s.logger.Warn("idempotency sweeper disabled: repository is not configured")
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.runOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Sweeper) runOnce(ctx context.Context) {
	result, err := s.Sweep(ctx)
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return
	case err != nil:
		sweepRuns.WithLabelValues("error").Inc()
		s.logger.WithError(err).WithField("deleted", result.Deleted).Warn("idempotency sweep failed")
		return
	}

	sweepRuns.WithLabelValues("ok").Inc()
	if result.Deleted > 0 {
		s.logger.WithFields(log.Fields{"deleted": result.Deleted, "batches": result.Batches}).Info("expired idempotency keys removed")
	}
}

// SweepResult — итог одного прохода.
type SweepResult struct {
	Deleted int
	Batches int
	// Truncated: проход упёрся в WithMaxBatches, просроченные ключи ещё остались.
	Truncated bool
}

// Sweep удаляет ключи с истёкшим TTL порциями batchSize.
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	cutoff := s.now()

	for result.Batches < s.maxBatches {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		deleted, err := s.repo.DeleteExpired(ctx, cutoff, s.batchSize)
		if err != nil {
			return result, err
		}
		result.Batches++
		result.Deleted += deleted
		sweptKeys.Add(float64(deleted))
		if deleted < s.batchSize {
			return result, nil
		}
	}
	result.Truncated = true
	return result, nil
}
