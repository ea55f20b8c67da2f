package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/vladislavdragonenkov/vegshop/internal/domain"
)

type timelineEntry struct {
	seq   uint64
	event domain.TimelineEvent
}

// TimelineRepository — журнал заказов в памяти. События с одинаковым
// временем отдаются в порядке записи, как по id в PostgreSQL.
type TimelineRepository struct {
	mu      sync.RWMutex
	seq     uint64
	byOrder map[string][]timelineEntry
}

func NewTimelineRepository() *TimelineRepository {
	return &TimelineRepository{byOrder: make(map[string][]timelineEntry)}
}

func (r *TimelineRepository) Append(_ context.Context, event domain.TimelineEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	r.byOrder[event.OrderID] = append(r.byOrder[event.OrderID], timelineEntry{seq: r.seq, event: event})
	return nil
}

func (r *TimelineRepository) List(_ context.Context, orderID string) ([]domain.TimelineEvent, error) {
	r.mu.RLock()
	entries := slices.Clone(r.byOrder[orderID])
	r.mu.RUnlock()

	slices.SortFunc(entries, func(a, b timelineEntry) int {
		if c := a.event.Occurred.Compare(b.event.Occurred); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})

	out := make([]domain.TimelineEvent, len(entries))
	for i, e := range entries {
		out[i] = e.event
	}
	return out, nil
}

var _ domain.TimelineRepository = (*TimelineRepository)(nil)
