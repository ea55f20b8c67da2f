package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/vegshop/internal/domain"
)

const maxSaveAttempts = 3

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

// Service управляет корзиной пользователя.
type Service struct {
	carts    domain.CartRepository
	products domain.ProductRepository
	logger   *log.Entry
	now      func() time.Time
}

// New создаёт сервис корзины.
func New(carts domain.CartRepository, products domain.ProductRepository, opts ...Option) *Service {
	s := &Service{
		carts:    carts,
		products: products,
		logger:   log.WithField("component", "cart-service"),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get возвращает корзину. Если её ещё нет, возвращается пустая корзина.
func (s *Service) Get(ctx context.Context, actorID string) (domain.Cart, error) {
	if strings.TrimSpace(actorID) == "" {
		return domain.Cart{}, domain.ErrActorRequired
	}
	cart, err := s.carts.GetByActor(ctx, actorID)
	if errors.Is(err, domain.ErrCartNotFound) {
		return domain.Cart{ActorID: actorID}, nil
	}
	return cart, err
}

// Add добавляет товар или заменяет его количество.
func (s *Service) Add(ctx context.Context, actorID, productID string, qty int) (domain.Cart, error) {
	if strings.TrimSpace(actorID) == "" {
		return domain.Cart{}, domain.ErrActorRequired
	}
	if qty < 1 {
		return domain.Cart{}, domain.ErrCartQtyInvalid
	}

	product, err := s.products.Get(ctx, productID)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("add %s to cart: %w", productID, err)
	}

	return s.mutate(ctx, actorID, false, func(c *domain.Cart) error {
		return c.Upsert(product.ID, product.Name, qty, s.now())
	})
}

// Remove удаляет товар из корзины. Отсутствие товара в корзине не ошибка.
func (s *Service) Remove(ctx context.Context, actorID, productID string) (domain.Cart, error) {
	if strings.TrimSpace(actorID) == "" {
		return domain.Cart{}, domain.ErrActorRequired
	}
	return s.mutate(ctx, actorID, true, func(c *domain.Cart) error {
		c.Remove(productID)
		return nil
	})
}

// mutate перечитывает корзину при конфликте версий: корзину могли очистить
// параллельно идущим оформлением заказа.
func (s *Service) mutate(ctx context.Context, actorID string, mustExist bool, fn func(*domain.Cart) error) (domain.Cart, error) {
	var lastErr error
	for attempt := 0; attempt < maxSaveAttempts; attempt++ {
		cart, err := s.carts.GetByActor(ctx, actorID)
		switch {
		case errors.Is(err, domain.ErrCartNotFound) && !mustExist:
			cart = domain.Cart{ActorID: actorID}
		case err != nil:
			return domain.Cart{}, err
		}

		if err := fn(&cart); err != nil {
			return domain.Cart{}, err
		}

		saved, err := s.carts.Save(ctx, cart)
		if err == nil {
			return saved, nil
		}
		if !domain.IsVersionConflict(err) {
			return domain.Cart{}, err
		}
		lastErr = err
		s.logger.WithFields(log.Fields{"actor_id": actorID, "attempt": attempt + 1}).Debug("cart version conflict, retrying")
	}
	return domain.Cart{}, lastErr
}
