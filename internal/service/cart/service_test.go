package cart

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/vegshop/internal/domain"
	"github.com/vladislavdragonenkov/vegshop/internal/storage/memory"
)

func newService(t *testing.T) (*Service, domain.CartRepository) {
	t.Helper()

	products := memory.NewProductRepository()
	ctx := context.Background()
	for _, p := range []domain.Product{
		{ID: "tomato", Name: "Tomato", Price: decimal.NewFromInt(40), Stock: 10, Available: true},
		{ID: "onion", Name: "Onion", Price: decimal.NewFromInt(30), Stock: 10, Available: true},
	} {
		require.NoError(t, products.Create(ctx, p))
	}
	carts := memory.NewCartRepository()
	now := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	return New(carts, products, WithClock(func() time.Time { return now })), carts
}

func TestService_GetMissingCartIsEmpty(t *testing.T) {
	svc, _ := newService(t)

	cart, err := svc.Get(context.Background(), "user-1")
	require.NoError(t, err)
	require.True(t, cart.IsEmpty())
	require.Equal(t, "user-1", cart.ActorID)
}

func TestService_AddAndUpdateQuantity(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Add(ctx, "user-1", "tomato", 2)
	require.NoError(t, err)
	_, err = svc.Add(ctx, "user-1", "onion", 1)
	require.NoError(t, err)
	cart, err := svc.Add(ctx, "user-1", "tomato", 5)
	require.NoError(t, err)

	require.Len(t, cart.Lines, 2)
	require.Equal(t, "tomato", cart.Lines[0].ProductID)
	require.Equal(t, 5, cart.Lines[0].Quantity)
	require.Equal(t, "Tomato", cart.Lines[0].Name)
	require.Equal(t, int64(3), cart.Version)
}

func TestService_AddRejectsInvalidInput(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Add(ctx, "user-1", "tomato", 0)
	require.ErrorIs(t, err, domain.ErrCartQtyInvalid)

	_, err = svc.Add(ctx, "user-1", "celery", 1)
	require.ErrorIs(t, err, domain.ErrProductNotFound)

	_, err = svc.Add(ctx, "", "tomato", 1)
	require.ErrorIs(t, err, domain.ErrActorRequired)
}

func TestService_Remove(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.Remove(ctx, "user-1", "tomato")
	require.ErrorIs(t, err, domain.ErrCartNotFound)

	_, err = svc.Add(ctx, "user-1", "tomato", 1)
	require.NoError(t, err)
	cart, err := svc.Remove(ctx, "user-1", "tomato")
	require.NoError(t, err)
	require.True(t, cart.IsEmpty())
}

func TestService_RetriesOnVersionConflict(t *testing.T) {
	products := memory.NewProductRepository()
	require.NoError(t, products.Create(context.Background(), domain.Product{ID: "tomato", Name: "Tomato", Price: decimal.NewFromInt(40)}))

	carts := &conflictingCarts{CartRepository: memory.NewCartRepository(), conflicts: 2}
	svc := New(carts, products)

	cart, err := svc.Add(context.Background(), "user-1", "tomato", 1)
	require.NoError(t, err)
	require.Len(t, cart.Lines, 1)
	require.Equal(t, 3, carts.saves)

	carts.conflicts = maxSaveAttempts
	_, err = svc.Add(context.Background(), "user-1", "tomato", 2)
	require.True(t, errors.Is(err, domain.ErrCartVersionConflict))
}

type conflictingCarts struct {
	domain.CartRepository
	conflicts int
	saves     int
}

func (c *conflictingCarts) Save(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	c.saves++
	if c.conflicts > 0 {
		c.conflicts--
		return domain.Cart{}, domain.ErrCartVersionConflict
	}
	return c.CartRepository.Save(ctx, cart)
}
