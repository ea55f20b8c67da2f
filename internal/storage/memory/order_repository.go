package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/vegshop/internal/domain"
)

// OrderRepository хранит заказы в памяти процесса. Снаружи отдаются только
// копии, так что изменение среза Lines у вызывающего не трогает хранилище.
type OrderRepository struct {
	mu     sync.RWMutex
	orders map[string]domain.Order
}

func NewOrderRepository() *OrderRepository {
	return &OrderRepository{orders: make(map[string]domain.Order)}
}

func (r *OrderRepository) Create(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.orders[order.ID]; taken {
		return domain.ErrOrderExists
	}
	r.orders[order.ID] = detach(order)
	return nil
}

func (r *OrderRepository) Get(_ context.Context, id string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if order, ok := r.orders[id]; ok {
		return detach(order), nil
	}
	return domain.Order{}, domain.ErrOrderNotFound
}

func (r *OrderRepository) ListByCustomer(_ context.Context, customerID string, limit int) ([]domain.Order, error) {
	mine := r.filter(func(o domain.Order) bool { return o.CustomerID == customerID })
	return head(sortOrders(mine, true), limit), nil
}

func (r *OrderRepository) List(_ context.Context, limit int) ([]domain.Order, error) {
	all := r.filter(func(domain.Order) bool { return true })
	return head(sortOrders(all, true), limit), nil
}

func (r *OrderRepository) ListUnfinished(_ context.Context, before time.Time, maxAttempts, limit int) ([]domain.Order, error) {
	stuck := r.filter(func(o domain.Order) bool { return o.AwaitsRecovery(before, maxAttempts) })
	return head(sortOrders(stuck, false), limit), nil
}

// Save принимает заказ только с той версией, что лежит в хранилище, и увеличивает её.
func (r *OrderRepository) Save(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.orders[order.ID]
	switch {
	case !ok:
		return domain.ErrOrderNotFound
	case stored.Version != order.Version:
		return domain.ErrOrderVersionConflict
	}
	order.Version = stored.Version + 1
	r.orders[order.ID] = detach(order)
	return nil
}

func (r *OrderRepository) filter(keep func(domain.Order) bool) []domain.Order {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.Order
	for _, o := range r.orders {
		if keep(o) {
			out = append(out, detach(o))
		}
	}
	return out
}

// sortOrders упорядочивает по CreatedAt, при равенстве по ID.
func sortOrders(orders []domain.Order, newestFirst bool) []domain.Order {
	slices.SortFunc(orders, func(a, b domain.Order) int {
		c := a.CreatedAt.Compare(b.CreatedAt)
		if c == 0 {
			c = cmp.Compare(a.ID, b.ID)
		}
		if newestFirst {
			return -c
		}
		return c
	})
	return orders
}

func head(orders []domain.Order, limit int) []domain.Order {
	if orders == nil {
		orders = []domain.Order{}
	}
	if limit > 0 && len(orders) > limit {
		return orders[:limit]
	}
	return orders
}

func detach(o domain.Order) domain.Order {
	o.Lines = slices.Clone(o.Lines)
	return o
}

var _ domain.OrderRepository = (*OrderRepository)(nil)
