// Package app собирает магазин из конфигурации: хранилище, адаптеры, HTTP и gRPC
// серверы, фоновые воркеры и корректную остановку.
package app

import (
	"context"
	"errors"
	"net"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	healthcheck "github.com/vladislavdragonenkov/vegshop/internal/health"
	grpcsvc "github.com/vladislavdragonenkov/vegshop/internal/service/grpc"
	httpsvc "github.com/vladislavdragonenkov/vegshop/internal/service/http"
	"github.com/vladislavdragonenkov/vegshop/internal/telemetry"
	"github.com/vladislavdragonenkov/vegshop/internal/version"
)

// Run запускает магазин и блокируется до отмены ctx или ошибки сервера.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		Exporter:     cfg.TelemetryExporter,
		OTLPEndpoint: cfg.OTLPEndpoint,
		ServiceName:  cfg.ServiceName,
		Version:      version.GetVersion(),
		SampleRatio:  cfg.TraceSampleRatio,
	})
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.WithError(err).Warn("failed to flush traces")
		}
	}()

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.close(); err != nil {
			logger.WithError(err).Warn("failed to close storage")
		}
	}()

	integ, err := initIntegrations(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer integ.close(logger)

	sinks := openEventSinks(cfg, logger)
	defer sinks.close(logger)

	services, err := buildServices(ctx, cfg, deps, integ, logger)
	if err != nil {
		return err
	}

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	healthHandler.RegisterChecker("storage", deps.storageChecker)
	healthHandler.RegisterChecker("outbox", outboxBacklogChecker(deps.outboxRepo, cfg.OutboxMaxPending))
	for name, checker := range integ.checkers {
		healthHandler.RegisterChecker(name, checker)
	}
	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)
	defer shutdownHTTP(metricsSrv, logger)

	workers := startWorkers(ctx, cfg, deps, services.Checkout, sinks, logger)
	defer stopWorkers(workers, logger)

	httpLis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		return err
	}
	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		_ = httpLis.Close()
		return err
	}

	router := httpsvc.NewRouter(services, httpsvc.Config{
		AllowedOrigins: cfg.AllowedOrigins,
		CookieSecure:   cfg.CookieSecure,
		FilesRoot:      integ.filesRoot,
		ServiceName:    cfg.ServiceName,
	}, logger.WithField("layer", "http"))

	errCh := make(chan error, 2)
	httpSrv := serveHTTP(httpLis, httpsvc.NewHandler(router, cfg.ServiceName), logger, errCh)

	admin := grpcsvc.NewOrderAdmin(deps.orders, deps.timelineRepo, services.Checkout, logger.WithField("layer", "grpc"))
	grpcServer, grpcHealth := newGRPCServer(admin, services.Auth, logger)
	go func() {
		logger.Infof("gRPC сервер слушает %s", grpcLis.Addr())
		if err := grpcServer.Serve(grpcLis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем серверы")
		runErr = ctx.Err()
	case runErr = <-errCh:
		logger.WithError(runErr).Error("server failed")
	}

	shutdownHTTP(httpSrv, logger)
	stopGRPC(grpcServer, grpcHealth, cfg.ShutdownTimeout, logger)

	// Письма, отправляемые в фоне, дописываются до закрытия хранилища.
	waitCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := services.Checkout.Wait(waitCtx); err != nil {
		logger.WithError(err).Warn("pending notifications were not finished; recovery will resend them")
	}

	return runErr
}
