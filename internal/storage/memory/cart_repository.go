package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/vegshop/internal/domain"
)

type cartRepositoryInMemory struct {
	mu    sync.Mutex
	carts map[string]domain.Cart
}

// NewCartRepository создаёт in-memory хранилище корзин.
func NewCartRepository() domain.CartRepository {
	return &cartRepositoryInMemory{carts: make(map[string]domain.Cart)}
}

func (r *cartRepositoryInMemory) GetByActor(_ context.Context, actorID string) (domain.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cart, ok := r.carts[actorID]
	if !ok {
		return domain.Cart{}, domain.ErrCartNotFound
	}
	return cloneCart(cart), nil
}

// Save создаёт корзину (версия 0) или обновляет существующую с проверкой версии.
func (r *cartRepositoryInMemory) Save(_ context.Context, cart domain.Cart) (domain.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	current, ok := r.carts[cart.ActorID]
	switch {
	case !ok && cart.Version != 0:
		return domain.Cart{}, domain.ErrCartVersionConflict
	case ok && current.Version != cart.Version:
		return domain.Cart{}, domain.ErrCartVersionConflict
	case !ok:
		cart.CreatedAt = now
	default:
		cart.CreatedAt = current.CreatedAt
	}

	cart.Version++
	cart.UpdatedAt = now
	r.carts[cart.ActorID] = cloneCart(cart)
	return cloneCart(cart), nil
}

func (r *cartRepositoryInMemory) Clear(_ context.Context, actorID string, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cart, ok := r.carts[actorID]
	if !ok || len(cart.Lines) == 0 {
		return nil
	}
	if cart.Version != expectedVersion {
		return domain.ErrCartVersionConflict
	}
	cart.Lines = nil
	cart.Version++
	cart.UpdatedAt = time.Now().UTC()
	r.carts[actorID] = cart
	return nil
}

func cloneCart(src domain.Cart) domain.Cart {
	dst := src
	dst.Lines = append([]domain.CartLine(nil), src.Lines...)
	return dst
}

var _ domain.CartRepository = (*cartRepositoryInMemory)(nil)
