package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/vegshop/internal/app"
	"github.com/vladislavdragonenkov/vegshop/internal/config"
	"github.com/vladislavdragonenkov/vegshop/internal/version"
)

func main() {
	cfg, lookup, warnings, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}
	config.SetupLogger(lookup)
	gin.SetMode(gin.ReleaseMode)
	for _, warning := range warnings {
		log.Warn(warning)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"http_addr":      cfg.HTTPAddr,
		"grpc_addr":      cfg.GRPCAddr,
		"metrics_addr":   cfg.MetricsAddr,
		"storage_driver": cfg.StorageDriver,
		"version":        version.GetVersion(),
	}).Info("запускаем vegshop")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("vegshop остановлен")
}
