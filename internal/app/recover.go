package app

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/vegshop/internal/service/recovery"
)

// RecoverOnce выполняет один проход восстановления чеков без запуска серверов.
func RecoverOnce(ctx context.Context, cfg Config) (recovery.Report, error) {
	logger := log.WithField("component", "app")

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return recovery.Report{}, err
	}
	defer func() {
		if err := deps.close(); err != nil {
			logger.WithError(err).Warn("failed to close storage")
		}
	}()
	if deps.storageChecker == nil {
		logger.Warn("in-memory storage has no orders from previous runs")
	}

	integ, err := initIntegrations(ctx, cfg, logger)
	if err != nil {
		return recovery.Report{}, err
	}
	defer integ.close(logger)

	services, err := buildServices(ctx, cfg, deps, integ, logger)
	if err != nil {
		return recovery.Report{}, err
	}

	report := newRecoveryWorker(cfg, deps, services.Checkout, logger).ProcessOnce(ctx)
	if err := services.Checkout.Wait(ctx); err != nil {
		return report, err
	}
	return report, nil
}
