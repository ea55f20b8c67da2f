// Command receipt-recovery однократно досылает чеки по заказам, застрявшим до отправки письма.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/vegshop/internal/app"
	"github.com/vladislavdragonenkov/vegshop/internal/config"
)

func main() {
	cfg, lookup, warnings, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}
	config.SetupLogger(lookup)
	for _, warning := range warnings {
		log.Warn(warning)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	report, err := app.RecoverOnce(ctx, cfg)
	logger := log.WithFields(log.Fields{
		"scanned":   report.Scanned,
		"completed": report.Completed,
		"pending":   report.Pending,
		"failed":    report.Failed,
	})
	if err != nil {
		logger.WithError(err).Fatal("receipt recovery failed")
	}
	logger.Info("receipt recovery finished")
	if report.Failed > 0 {
		os.Exit(2)
	}
}
