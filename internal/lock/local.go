// Package lock сериализует оформление заказов одного пользователя.
package lock

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/vegshop/internal/domain"
)

// Local — блокировка в пределах одного процесса.
type Local struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocal создаёт in-process блокировку.
func NewLocal() *Local {
	return &Local{held: make(map[string]struct{})}
}

// Acquire захватывает блокировку пользователя или сразу возвращает ErrCheckoutInProgress.
func (l *Local) Acquire(_ context.Context, actorID string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.held[actorID]; busy {
		return nil, domain.ErrCheckoutInProgress
	}
	l.held[actorID] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, actorID)
			l.mu.Unlock()
		})
	}, nil
}

var _ domain.CheckoutLocker = (*Local)(nil)
