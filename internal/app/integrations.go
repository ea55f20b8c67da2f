package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/vegshop/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/vegshop/internal/health"
	"github.com/vladislavdragonenkov/vegshop/internal/lock"
	"github.com/vladislavdragonenkov/vegshop/internal/mail"
	"github.com/vladislavdragonenkov/vegshop/internal/objectstore"
)

// integrations — внешние адаптеры оформления заказа.
type integrations struct {
	locker   domain.CheckoutLocker
	store    domain.ObjectStore
	mailer   domain.Mailer
	checkers map[string]healthcheck.Checker
	// filesRoot раздаётся HTTP-сервером, когда чеки лежат на диске.
	filesRoot string
	closeFns  []func() error
}

func (i *integrations) close(logger *log.Entry) {
	for _, fn := range i.closeFns {
		if err := fn(); err != nil {
			logger.WithError(err).Warn("failed to close integration")
		}
	}
}

func initIntegrations(ctx context.Context, cfg Config, logger *log.Entry) (*integrations, error) {
	out := &integrations{checkers: make(map[string]healthcheck.Checker)}

	if err := out.initLocker(ctx, cfg, logger); err != nil {
		return nil, err
	}
	if err := out.initObjectStore(ctx, cfg, logger); err != nil {
		out.close(logger)
		return nil, err
	}
	if err := out.initMailer(cfg, logger); err != nil {
		out.close(logger)
		return nil, err
	}
	return out, nil
}

func (i *integrations) initLocker(ctx context.Context, cfg Config, logger *log.Entry) error {
	switch strings.ToLower(strings.TrimSpace(cfg.LockDriver)) {
	case "", LockDriverLocal:
		i.locker = lock.NewLocal()
		return nil
	case LockDriverRedis:
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return fmt.Errorf("redis addr is required for redis lock driver")
		}
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return fmt.Errorf("ping redis: %w", err)
		}
		i.locker = lock.NewRedis(client,
			lock.WithTTL(cfg.CheckoutLockTTL),
			lock.WithLogger(logger.WithField("component", "checkout-lock")),
		)
		i.checkers["redis"] = healthcheck.NewPingChecker("redis", func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
		i.closeFns = append(i.closeFns, client.Close)
		logger.WithField("addr", cfg.RedisAddr).Info("checkout lock uses redis")
		return nil
	default:
		return fmt.Errorf("unsupported lock driver %q", cfg.LockDriver)
	}
}

func (i *integrations) initObjectStore(ctx context.Context, cfg Config, logger *log.Entry) error {
	switch strings.ToLower(strings.TrimSpace(cfg.ObjectStoreDriver)) {
	case "", ObjectStoreLocal:
		store, err := objectstore.NewLocal(cfg.FilesRoot, cfg.FilesBaseURL)
		if err != nil {
			return err
		}
		i.store = store
		i.filesRoot = store.Root()
		return nil
	case ObjectStoreMinIO:
		store, err := objectstore.NewMinIO(ctx, objectstore.MinIOConfig{
			Endpoint:      cfg.MinIOEndpoint,
			AccessKey:     cfg.MinIOAccessKey,
			SecretKey:     cfg.MinIOSecretKey,
			Bucket:        cfg.MinIOBucket,
			UseSSL:        cfg.MinIOUseSSL,
			PublicBaseURL: cfg.MinIOPublicBaseURL,
			PresignExpiry: cfg.MinIOPresignExpiry,
		})
		if err != nil {
			return err
		}
		i.store = store
		// Недоступный бакет переводит сервис в degraded.
		i.checkers["object_store"] = healthcheck.NewOptionalChecker("object_store", store.Ping)
		logger.WithFields(log.Fields{"endpoint": cfg.MinIOEndpoint, "bucket": cfg.MinIOBucket}).Info("receipts are stored in minio")
		return nil
	default:
		return fmt.Errorf("unsupported object store driver %q", cfg.ObjectStoreDriver)
	}
}

func (i *integrations) initMailer(cfg Config, logger *log.Entry) error {
	switch strings.ToLower(strings.TrimSpace(cfg.MailerDriver)) {
	case "", MailerLog:
		i.mailer = mail.NewLog(logger.WithField("component", "mailer"))
		return nil
	case MailerSMTP:
		if strings.TrimSpace(cfg.SMTPHost) == "" {
			return fmt.Errorf("smtp host is required for smtp mailer")
		}
		i.mailer = mail.NewSMTP(mail.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
		logger.WithField("host", cfg.SMTPHost).Info("receipts are mailed via smtp")
		return nil
	default:
		return fmt.Errorf("unsupported mailer %q", cfg.MailerDriver)
	}
}
