package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vladislavdragonenkov/vegshop/internal/domain"
)

// timelineRepository — журнал шагов оформления заказа (таблица timeline_events).
type timelineRepository struct {
	db *sql.DB
}

// NewTimelineRepository создаёт журнал событий заказа.
func NewTimelineRepository(store *Store) domain.TimelineRepository {
	return &timelineRepository{db: store.DB()}
}

func (r *timelineRepository) Append(ctx context.Context, event domain.TimelineEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO timeline_events (order_id, event_type, reason, occurred_at) VALUES ($1, $2, $3, $4)`,
		event.OrderID, event.Type, event.Reason, event.Occurred.UTC(),
	)
	if err != nil {
		return fmt.Errorf("append %s for order %s: %w", event.Type, event.OrderID, err)
	}
	return nil
}

// List возвращает события заказа в порядке записи; одинаковое время различается по id.
func (r *timelineRepository) List(ctx context.Context, orderID string) ([]domain.TimelineEvent, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx,
		`SELECT order_id, event_type, reason, occurred_at FROM timeline_events WHERE order_id = $1 ORDER BY occurred_at, id`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("list timeline of order %s: %w", orderID, err)
	}
	return collectRows(rows, func(rows *sql.Rows) (domain.TimelineEvent, error) {
		var e domain.TimelineEvent
		if err := rows.Scan(&e.OrderID, &e.Type, &e.Reason, &e.Occurred); err != nil {
			return e, fmt.Errorf("scan timeline event: %w", err)
		}
		e.Occurred = e.Occurred.UTC()
		return e, nil
	})
}

var _ domain.TimelineRepository = (*timelineRepository)(nil)
