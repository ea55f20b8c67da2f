package app

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/vegshop/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/vegshop/internal/health"
	"github.com/vladislavdragonenkov/vegshop/internal/service/checkout"
	"github.com/vladislavdragonenkov/vegshop/internal/service/idempotency"
	"github.com/vladislavdragonenkov/vegshop/internal/service/outbox"
	"github.com/vladislavdragonenkov/vegshop/internal/service/recovery"
)

const workerStopTimeout = 5 * time.Second

// backgroundWorker — запущенный фоновый цикл.
type backgroundWorker struct {
	name   string
	cancel context.CancelFunc
	done   chan struct{}
}

func startWorker(ctx context.Context, name string, run func(context.Context)) backgroundWorker {
	workerCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		run(workerCtx)
	}()
	return backgroundWorker{name: name, cancel: cancel, done: done}
}

// shutdownWorker отменяет контекст worker и ждёт завершения цикла.
func shutdownWorker(cancel context.CancelFunc, done <-chan struct{}, logger *log.Entry) {
	if cancel == nil {
		return
	}
	cancel()
	if done == nil {
		return
	}
	select {
	case <-done:
	case <-time.After(workerStopTimeout):
		logger.Warn("worker did not stop in time")
	}
}

func startWorkers(ctx context.Context, cfg Config, deps *runtimeDependencies, checkoutSvc *checkout.Service, sinks eventSinks, logger *log.Entry) []backgroundWorker {
	outboxOpts := []outbox.Option{
		outbox.WithLogger(logger.WithField("component", "outbox-worker")),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	}
	if sinks.dead != nil {
		outboxOpts = append(outboxOpts, outbox.WithDLQPublisher(sinks.dead))
	}
	outboxWorker := outbox.NewWorker(deps.outboxRepo, sinks.events, outboxOpts...)

	recoveryWorker := newRecoveryWorker(cfg, deps, checkoutSvc, logger)

	sweeper := idempotency.NewSweeper(deps.idempotencyRepo,
		idempotency.WithSweepLogger(logger.WithField("component", "idempotency-sweeper")),
		idempotency.WithSweepInterval(cfg.IdempotencyCleanupInterval),
		idempotency.WithSweepBatchSize(cfg.IdempotencyCleanupBatchSize),
	)

	return []backgroundWorker{
		startWorker(ctx, "outbox", outboxWorker.Run),
		startWorker(ctx, "receipt-recovery", recoveryWorker.Run),
		startWorker(ctx, "idempotency-sweeper", sweeper.Run),
	}
}

func newRecoveryWorker(cfg Config, deps *runtimeDependencies, checkoutSvc *checkout.Service, logger *log.Entry) *recovery.Worker {
	return recovery.NewWorker(deps.orders, checkoutSvc,
		recovery.WithLogger(logger.WithField("component", "receipt-recovery")),
		recovery.WithPollInterval(cfg.RecoveryInterval),
		recovery.WithGracePeriod(cfg.RecoveryGracePeriod),
		recovery.WithBatchSize(cfg.RecoveryBatchSize),
		recovery.WithMaxAttempts(cfg.RecoveryMaxAttempts),
	)
}

func stopWorkers(workers []backgroundWorker, logger *log.Entry) {
	for _, w := range workers {
		shutdownWorker(w.cancel, w.done, logger.WithField("worker", w.name))
	}
}

// outboxBacklogChecker переводит сервис в degraded при переполненном outbox.
func outboxBacklogChecker(repo domain.OutboxRepository, maxPending int) healthcheck.Checker {
	return healthcheck.NewOptionalChecker("outbox", func(ctx context.Context) error {
		stats, err := repo.Stats(ctx)
		if err != nil {
			return err
		}
		if maxPending > 0 && stats.PendingCount > maxPending {
			return fmt.Errorf("outbox backlog %d exceeds %d", stats.PendingCount, maxPending)
		}
		return nil
	})
}
