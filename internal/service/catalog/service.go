package catalog

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/vegshop/internal/domain"
)

// ProductInput — данные для создания товара.
type ProductInput struct {
	Name            string
	Description     string
	Price           decimal.Decimal
	DiscountPercent decimal.Decimal
	Stock           int
	Unit            string
	Category        string
	Available       *bool
	Images          []domain.ProductImage
}

// ProductPatch — частичное обновление. Пустые поля не меняются.
type ProductPatch struct {
	Name            *string
	Description     *string
	Price           *decimal.Decimal
	DiscountPercent *decimal.Decimal
	Stock           *int
	Unit            *string
	Category        *string
	Available       *bool
	Images          []domain.ProductImage
}

// Option настраивает Service.
type Option func(*Service)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator подменяет генератор идентификаторов.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// Service — каталог овощей.
type Service struct {
	products domain.ProductRepository
	logger   *log.Entry
	now      func() time.Time
	newID    func() string
}

// New создаёт сервис каталога.
func New(products domain.ProductRepository, opts ...Option) *Service {
	s := &Service{
		products: products,
		logger:   log.WithField("component", "catalog-service"),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) List(ctx context.Context) ([]domain.Product, error) {
	return s.products.List(ctx)
}

func (s *Service) Get(ctx context.Context, id string) (domain.Product, error) {
	return s.products.Get(ctx, id)
}

// Create добавляет товар. По умолчанию товар доступен для заказа.
func (s *Service) Create(ctx context.Context, in ProductInput) (domain.Product, error) {
	now := s.now()
	product := domain.Product{
		ID:              s.newID(),
		Name:            strings.TrimSpace(in.Name),
		Description:     in.Description,
		Price:           in.Price,
		DiscountPercent: in.DiscountPercent,
		Stock:           in.Stock,
		Unit:            in.Unit,
		Category:        in.Category,
		Available:       true,
		Images:          in.Images,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if in.Available != nil {
		product.Available = *in.Available
	}
	if err := domain.NewValidationError(product.Validate()); err != nil {
		return domain.Product{}, err
	}
	if err := s.products.Create(ctx, product); err != nil {
		return domain.Product{}, err
	}

	s.logger.WithFields(log.Fields{"product_id": product.ID, "name": product.Name}).Info("product created")
	return product, nil
}

// Update применяет частичное обновление. Цена в уже оформленных заказах не меняется.
func (s *Service) Update(ctx context.Context, id string, patch ProductPatch) (domain.Product, error) {
	product, err := s.products.Get(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}

	if patch.Name != nil {
		product.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Description != nil {
		product.Description = *patch.Description
	}
	if patch.Price != nil {
		product.Price = *patch.Price
	}
	if patch.DiscountPercent != nil {
		product.DiscountPercent = *patch.DiscountPercent
	}
	if patch.Stock != nil {
		product.Stock = *patch.Stock
	}
	if patch.Unit != nil {
		product.Unit = *patch.Unit
	}
	if patch.Category != nil {
		product.Category = *patch.Category
	}
	if patch.Available != nil {
		product.Available = *patch.Available
	}
	if patch.Images != nil {
		product.Images = patch.Images
	}
	product.UpdatedAt = s.now()

	if err := domain.NewValidationError(product.Validate()); err != nil {
		return domain.Product{}, err
	}
	if err := s.products.Update(ctx, product); err != nil {
		return domain.Product{}, err
	}
	return product, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.products.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.WithField("product_id", id).Info("product deleted")
	return nil
}
