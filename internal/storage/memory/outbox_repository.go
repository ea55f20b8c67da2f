package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/vegshop/internal/domain"
)

type outboxState uint8

const (
	outboxPending outboxState = iota
	outboxSent
	outboxFailed
)

type outboxEntry struct {
	msg   domain.OutboxMessage
	state outboxState
}

// OutboxRepository держит события заказов в порядке добавления.
type OutboxRepository struct {
	mu      sync.RWMutex
	entries []*outboxEntry
	byID    map[string]*outboxEntry
}

// NewOutboxRepository создаёт пустой outbox.
func NewOutboxRepository() *OutboxRepository {
	return &OutboxRepository{byID: make(map[string]*outboxEntry)}
}

// Enqueue добавляет событие в очередь. Повторный ID перезаписывает событие и снова делает его pending.
func (r *OutboxRepository) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	msg.Payload = slices.Clone(msg.Payload)

	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.byID[msg.ID]; ok {
		entry.msg, entry.state = msg, outboxPending
		return msg, nil
	}
	entry := &outboxEntry{msg: msg}
	r.entries = append(r.entries, entry)
	r.byID[msg.ID] = entry
	return msg, nil
}

// PullPending возвращает до limit pending-событий, старые первыми.
func (r *OutboxRepository) PullPending(_ context.Context, limit int) ([]domain.OutboxMessage, error) {
	pending := r.AllPending()
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

// Stats возвращает размер backlog.
func (r *OutboxRepository) Stats(_ context.Context) (domain.OutboxStats, error) {
	pending := r.AllPending()
	if len(pending) == 0 {
		return domain.OutboxStats{}, nil
	}
	return domain.OutboxStats{PendingCount: len(pending), OldestPendingAt: pending[0].CreatedAt}, nil
}

// MarkSent помечает событие доставленным.
func (r *OutboxRepository) MarkSent(_ context.Context, id string) error {
	return r.setState(id, outboxSent)
}

// MarkFailed помечает событие недоставленным; из очереди оно уходит.
func (r *OutboxRepository) MarkFailed(_ context.Context, id string) error {
	return r.setState(id, outboxFailed)
}

// AllPending возвращает копию очереди pending-событий.
func (r *OutboxRepository) AllPending() []domain.OutboxMessage {
	r.mu.RLock()
	out := make([]domain.OutboxMessage, 0, len(r.entries))
	for _, entry := range r.entries {
		if entry.state == outboxPending {
			out = append(out, entry.msg)
		}
	}
	r.mu.RUnlock()

	// События одного заказа добавляются по порядку, но CreatedAt может прийти извне.
	slices.SortStableFunc(out, func(a, b domain.OutboxMessage) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out
}

// Failed возвращает идентификаторы событий, помеченных failed.
func (r *OutboxRepository) Failed() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []string
	for _, entry := range r.entries {
		if entry.state == outboxFailed {
			ids = append(ids, entry.msg.ID)
		}
	}
	return ids
}

func (r *OutboxRepository) setState(id string, state outboxState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.byID[id]
	if !ok {
		return domain.ErrOutboxPublish
	}
	entry.state = state
	return nil
}

var _ domain.OutboxRepository = (*OutboxRepository)(nil)
