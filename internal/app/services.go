package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/vegshop/internal/metrics"
	"github.com/vladislavdragonenkov/vegshop/internal/receipt"
	"github.com/vladislavdragonenkov/vegshop/internal/service/auth"
	"github.com/vladislavdragonenkov/vegshop/internal/service/cart"
	"github.com/vladislavdragonenkov/vegshop/internal/service/catalog"
	"github.com/vladislavdragonenkov/vegshop/internal/service/checkout"
	httpsvc "github.com/vladislavdragonenkov/vegshop/internal/service/http"
	"github.com/vladislavdragonenkov/vegshop/internal/service/idempotency"
)

// buildServices собирает прикладные сервисы поверх репозиториев и адаптеров.
func buildServices(ctx context.Context, cfg Config, deps *runtimeDependencies, integ *integrations, logger *log.Entry) (httpsvc.Services, error) {
	secret, err := jwtSecret(cfg.JWTSecret, logger)
	if err != nil {
		return httpsvc.Services{}, err
	}

	authSvc, err := auth.New(deps.users, auth.Config{
		Secret:      secret,
		Issuer:      cfg.ServiceName,
		SessionTTL:  cfg.SessionTTL,
		RememberTTL: cfg.RememberTTL,
	}, auth.WithLogger(logger.WithField("component", "auth-service")))
	if err != nil {
		return httpsvc.Services{}, err
	}

	if cfg.AdminEmail != "" && cfg.AdminPassword != "" {
		admin, err := authSvc.EnsureAdmin(ctx, auth.RegisterInput{
			FirstName: "Shop",
			LastName:  "Admin",
			Email:     cfg.AdminEmail,
			Password:  cfg.AdminPassword,
		})
		if err != nil {
			return httpsvc.Services{}, fmt.Errorf("seed admin: %w", err)
		}
		logger.WithField("admin_id", admin.ID).Info("admin account ensured")
	}

	checkoutSvc, err := checkout.New(checkout.Dependencies{
		Carts:    deps.carts,
		Products: deps.products,
		Orders:   deps.orders,
		Users:    deps.users,
		Renderer: receipt.NewGenerator(),
		Store:    integ.store,
		Mailer:   integ.mailer,
		Locker:   integ.locker,
		Outbox:   deps.outboxRepo,
		Timeline: deps.timelineRepo,
	},
		checkout.WithLogger(logger.WithField("component", "checkout")),
		checkout.WithMetrics(metrics.NewCheckoutMetrics()),
		checkout.WithStepTimeout(cfg.CheckoutStepTimeout),
		checkout.WithAsyncNotification(cfg.AsyncNotification),
	)
	if err != nil {
		return httpsvc.Services{}, err
	}

	return httpsvc.Services{
		Auth:     authSvc,
		Catalog:  catalog.New(deps.products, catalog.WithLogger(logger.WithField("component", "catalog"))),
		Cart:     cart.New(deps.carts, deps.products, cart.WithLogger(logger.WithField("component", "cart"))),
		Checkout: checkoutSvc,
		Orders:   deps.orders,
		Users:    deps.users,
		Timeline: deps.timelineRepo,
		Idempotency: idempotency.NewGuard(deps.idempotencyRepo,
			idempotency.WithKeyTTL(cfg.IdempotencyKeyTTL),
			idempotency.WithGuardLogger(logger.WithField("component", "idempotency-guard")),
		),
	}, nil
}

// jwtSecret возвращает настроенный секрет или случайный на время жизни процесса.
func jwtSecret(configured string, logger *log.Entry) ([]byte, error) {
	if secret := strings.TrimSpace(configured); secret != "" {
		return []byte(secret), nil
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("generate jwt secret: %w", err)
	}
	logger.Warn("jwt secret is not configured, sessions will not survive a restart")
	return []byte(hex.EncodeToString(buf)), nil
}
