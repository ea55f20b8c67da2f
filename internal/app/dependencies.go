package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/vegshop/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/vegshop/internal/health"
	"github.com/vladislavdragonenkov/vegshop/internal/storage/memory"
	mongostore "github.com/vladislavdragonenkov/vegshop/internal/storage/mongo"
	"github.com/vladislavdragonenkov/vegshop/internal/storage/postgres"
)

// runtimeDependencies — репозитории выбранного драйвера хранилища.
type runtimeDependencies struct {
	users           domain.UserRepository
	products        domain.ProductRepository
	carts           domain.CartRepository
	orders          domain.OrderRepository
	outboxRepo      domain.OutboxRepository
	timelineRepo    domain.TimelineRepository
	idempotencyRepo domain.IdempotencyRepository

	storageChecker healthcheck.Checker
	closeFn        func() error
}

func (d *runtimeDependencies) close() error {
	if d == nil || d.closeFn == nil {
		return nil
	}
	return d.closeFn()
}

// initRuntimeDependencies создаёт репозитории согласно cfg.StorageDriver.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	if logger == nil {
		logger = log.WithField("component", "app")
	}

	switch strings.ToLower(strings.TrimSpace(cfg.StorageDriver)) {
	case "", StorageDriverMemory:
		logger.Info("using in-memory storage")
		return newMemoryDependencies(), nil
	case StorageDriverPostgres:
		return initPostgresDependencies(ctx, cfg, logger)
	case StorageDriverMongo:
		return initMongoDependencies(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}
}

func newMemoryDependencies() *runtimeDependencies {
	return &runtimeDependencies{
		users:           memory.NewUserRepository(),
		products:        memory.NewProductRepository(),
		carts:           memory.NewCartRepository(),
		orders:          memory.NewOrderRepository(),
		outboxRepo:      memory.NewOutboxRepository(),
		timelineRepo:    memory.NewTimelineRepository(),
		idempotencyRepo: memory.NewIdempotencyRepository(),
	}
}

func initPostgresDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	if strings.TrimSpace(cfg.PostgresDSN) == "" {
		return nil, errors.New("postgres dsn is required for postgres storage driver")
	}

	store, err := postgres.Open(ctx, cfg.PostgresDSN, postgres.WithPool(postgres.PoolSettings{MaxOpen: cfg.PostgresMaxConns}))
	if err != nil {
		return nil, err
	}
	if cfg.PostgresAutoMigrate {
		applied, err := store.MigrateUp(ctx, 0)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
		logger.WithField("applied", applied).Info("postgres migrations applied")
	}

	logger.Info("using postgres storage")
	return &runtimeDependencies{
		users:           postgres.NewUserRepository(store),
		products:        postgres.NewProductRepository(store),
		carts:           postgres.NewCartRepository(store),
		orders:          postgres.NewOrderRepository(store),
		outboxRepo:      postgres.NewOutboxRepository(store),
		timelineRepo:    postgres.NewTimelineRepository(store),
		idempotencyRepo: postgres.NewIdempotencyRepository(store),
		storageChecker:  healthcheck.NewPingChecker("postgres", store.Ping),
		closeFn:         store.Close,
	}, nil
}

// initMongoDependencies хранит документы в MongoDB; outbox и ключи идемпотентности
// остаются в памяти процесса.
func initMongoDependencies(ctx context.Context, cfg Config, logger *log.Entry) (*runtimeDependencies, error) {
	if strings.TrimSpace(cfg.MongoURI) == "" {
		return nil, errors.New("mongo uri is required for mongo storage driver")
	}

	store, err := mongostore.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		return nil, err
	}
	if err := store.EnsureIndexes(ctx); err != nil {
		_ = store.Close(context.Background())
		return nil, err
	}

	logger.WithField("database", cfg.MongoDatabase).
		Warn("using mongo storage; outbox and idempotency keys are kept in memory")
	return &runtimeDependencies{
		users:           mongostore.NewUserRepository(store),
		products:        mongostore.NewProductRepository(store),
		carts:           mongostore.NewCartRepository(store),
		orders:          mongostore.NewOrderRepository(store),
		outboxRepo:      memory.NewOutboxRepository(),
		timelineRepo:    mongostore.NewTimelineRepository(store),
		idempotencyRepo: memory.NewIdempotencyRepository(),
		storageChecker:  healthcheck.NewPingChecker("mongo", store.Ping),
		closeFn:         func() error { return store.Close(context.Background()) },
	}, nil
}
