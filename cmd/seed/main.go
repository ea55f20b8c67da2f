// Command seed загружает каталог овощей из YAML в хранилище магазина.
// Повторный запуск обновляет товары с теми же id.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/vladislavdragonenkov/vegshop/internal/domain"
	mongostore "github.com/vladislavdragonenkov/vegshop/internal/storage/mongo"
	"github.com/vladislavdragonenkov/vegshop/internal/storage/postgres"
)

const defaultTimeout = time.Minute

type catalogFile struct {
	Vegetables []vegetableEntry `yaml:"vegetables"`
}

type vegetableEntry struct {
	ID          string       `yaml:"id"`
	Name        string       `yaml:"name"`
	Description string       `yaml:"description"`
	Price       string       `yaml:"price"`
	Discount    string       `yaml:"discount"`
	Stock       int          `yaml:"stock"`
	Unit        string       `yaml:"unit"`
	Category    string       `yaml:"category"`
	Available   *bool        `yaml:"available"`
	Images      []imageEntry `yaml:"images"`
}

type imageEntry struct {
	URL      string `yaml:"url"`
	PublicID string `yaml:"public_id"`
}

// loadCatalog разбирает YAML и проверяет каждый товар.
func loadCatalog(r io.Reader, now time.Time) ([]domain.Product, error) {
	var file catalogFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	seen := make(map[string]struct{}, len(file.Vegetables))
	products := make([]domain.Product, 0, len(file.Vegetables))
	for i, entry := range file.Vegetables {
		product, err := entry.toProduct(now)
		if err != nil {
			return nil, fmt.Errorf("vegetable #%d (%s): %w", i+1, entry.Name, err)
		}
		if _, dup := seen[product.ID]; dup {
			return nil, fmt.Errorf("vegetable #%d: duplicate id %q", i+1, product.ID)
		}
		seen[product.ID] = struct{}{}
		products = append(products, product)
	}
	return products, nil
}

func (e vegetableEntry) toProduct(now time.Time) (domain.Product, error) {
	id := strings.TrimSpace(e.ID)
	if id == "" {
		return domain.Product{}, domain.ErrProductIDRequired
	}
	price, err := decimal.NewFromString(strings.TrimSpace(e.Price))
	if err != nil {
		return domain.Product{}, fmt.Errorf("invalid price %q: %w", e.Price, err)
	}
	discount := decimal.Zero
	if raw := strings.TrimSpace(e.Discount); raw != "" {
		if discount, err = decimal.NewFromString(raw); err != nil {
			return domain.Product{}, fmt.Errorf("invalid discount %q: %w", e.Discount, err)
		}
	}

	product := domain.Product{
		ID:              id,
		Name:            strings.TrimSpace(e.Name),
		Description:     strings.TrimSpace(e.Description),
		Price:           price,
		DiscountPercent: discount,
		Stock:           e.Stock,
		Unit:            e.Unit,
		Available:       e.Available == nil || *e.Available,
		Category:        e.Category,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	for _, img := range e.Images {
		product.Images = append(product.Images, domain.ProductImage{URL: img.URL, PublicID: img.PublicID})
	}
	if errs := product.Validate(); len(errs) > 0 {
		return domain.Product{}, domain.NewValidationError(errs)
	}
	return product, nil
}

// seedCatalog создаёт новые товары и обновляет существующие, сохраняя дату создания.
func seedCatalog(ctx context.Context, repo domain.ProductRepository, products []domain.Product) (created, updated int, err error) {
	for _, product := range products {
		existing, getErr := repo.Get(ctx, product.ID)
		switch {
		case getErr == nil:
			product.CreatedAt = existing.CreatedAt
			if err := repo.Update(ctx, product); err != nil {
				return created, updated, fmt.Errorf("update %s: %w", product.ID, err)
			}
			updated++
		case errors.Is(getErr, domain.ErrProductNotFound):
			if err := repo.Create(ctx, product); err != nil {
				return created, updated, fmt.Errorf("create %s: %w", product.ID, err)
			}
			created++
		default:
			return created, updated, fmt.Errorf("get %s: %w", product.ID, getErr)
		}
	}
	return created, updated, nil
}

// openProducts открывает репозиторий товаров выбранного драйвера.
func openProducts(ctx context.Context, driver, dsn, mongoURI, mongoDB string) (domain.ProductRepository, func(), error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "postgres":
		if dsn == "" {
			return nil, nil, errors.New("VEGSHOP_POSTGRES_DSN (or -dsn) is required")
		}
		store, err := postgres.Open(ctx, dsn)
		if err != nil {
			return nil, nil, err
		}
		return postgres.NewProductRepository(store), func() { _ = store.Close() }, nil
	case "mongo":
		if mongoURI == "" {
			return nil, nil, errors.New("VEGSHOP_MONGO_URI (or -mongo-uri) is required")
		}
		store, err := mongostore.Connect(ctx, mongoURI, mongoDB)
		if err != nil {
			return nil, nil, err
		}
		return mongostore.NewProductRepository(store), func() { _ = store.Close(context.Background()) }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported storage driver %q (use postgres|mongo)", driver)
	}
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func main() {
	_ = godotenv.Load()
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	logger := log.WithField("component", "seed")

	var file, driver, dsn, mongoURI, mongoDB string
	flag.StringVar(&file, "file", "configs/catalog.yaml", "path to the catalog YAML file")
	flag.StringVar(&driver, "driver", envOr("VEGSHOP_STORAGE_DRIVER", "postgres"), "storage driver: postgres|mongo")
	flag.StringVar(&dsn, "dsn", envOr("VEGSHOP_POSTGRES_DSN", ""), "PostgreSQL DSN")
	flag.StringVar(&mongoURI, "mongo-uri", envOr("VEGSHOP_MONGO_URI", ""), "MongoDB URI")
	flag.StringVar(&mongoDB, "mongo-db", envOr("VEGSHOP_MONGO_DATABASE", "vegshop"), "MongoDB database")
	flag.Parse()

	f, err := os.Open(file)
	if err != nil {
		logger.WithError(err).Fatal("failed to open catalog")
	}
	defer f.Close()

	products, err := loadCatalog(f, time.Now().UTC())
	if err != nil {
		logger.WithError(err).Fatal("invalid catalog")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	repo, closeFn, err := openProducts(ctx, driver, dsn, mongoURI, mongoDB)
	if err != nil {
		logger.WithError(err).Fatal("failed to open storage")
	}
	defer closeFn()

	created, updated, err := seedCatalog(ctx, repo, products)
	logger = logger.WithFields(log.Fields{"created": created, "updated": updated, "driver": driver})
	if err != nil {
		logger.WithError(err).Error("seeding stopped")
		closeFn()
		os.Exit(1)
	}
	logger.Info("catalog seeded")
}
