package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/vegshop/internal/domain"
)

type cartLineRecord struct {
	ProductID string    `json:"product_id"`
	Name      string    `json:"name,omitempty"`
	Quantity  int       `json:"quantity"`
	AddedAt   time.Time `json:"added_at"`
}

type cartRepository struct {
	db *sql.DB
}

// NewCartRepository создаёт PostgreSQL-реализацию CartRepository.
// Позиции корзины хранятся одним JSONB документом, версия проверяется в WHERE.
func NewCartRepository(store *Store) domain.CartRepository {
	return &cartRepository{db: store.DB()}
}

func (r *cartRepository) GetByActor(ctx context.Context, actorID string) (domain.Cart, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var (
		cart  domain.Cart
		lines []byte
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT actor_id, lines, version, created_at, updated_at
		FROM carts
		WHERE actor_id = $1
	`, actorID).Scan(&cart.ActorID, &lines, &cart.Version, &cart.CreatedAt, &cart.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Cart{}, domain.ErrCartNotFound
	}
	if err != nil {
		return domain.Cart{}, fmt.Errorf("select cart: %w", err)
	}

	if cart.Lines, err = decodeCartLines(lines); err != nil {
		return domain.Cart{}, err
	}
	return cart, nil
}

func (r *cartRepository) Save(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	lines, err := encodeCartLines(cart.Lines)
	if err != nil {
		return domain.Cart{}, err
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	now := time.Now().UTC()
	if cart.Version == 0 {
		err = r.db.QueryRowContext(ctx, `
			INSERT INTO carts (actor_id, lines, version, created_at, updated_at)
			VALUES ($1, $2, 1, $3, $3)
			ON CONFLICT (actor_id) DO NOTHING
			RETURNING created_at
		`, cart.ActorID, lines, now).Scan(&cart.CreatedAt)
	} else {
		err = r.db.QueryRowContext(ctx, `
			UPDATE carts
			SET lines = $2, version = version + 1, updated_at = $3
			WHERE actor_id = $1 AND version = $4
			RETURNING created_at
		`, cart.ActorID, lines, now, cart.Version).Scan(&cart.CreatedAt)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Cart{}, domain.ErrCartVersionConflict
	}
	if err != nil {
		return domain.Cart{}, fmt.Errorf("save cart: %w", err)
	}

	cart.Version++
	cart.UpdatedAt = now
	return cart, nil
}

func (r *cartRepository) Clear(ctx context.Context, actorID string, expectedVersion int64) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE carts
		SET lines = '[]'::jsonb, version = version + 1, updated_at = $3
		WHERE actor_id = $1 AND version = $2 AND jsonb_array_length(lines) > 0
	`, actorID, expectedVersion, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	// Ничего не обновлено: корзины нет, она уже пуста или изменилась.
	var count int
	err = r.db.QueryRowContext(ctx, `SELECT jsonb_array_length(lines) FROM carts WHERE actor_id = $1`, actorID).Scan(&count)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil
	case err != nil:
		return fmt.Errorf("check cart: %w", err)
	case count == 0:
		return nil
	default:
		return domain.ErrCartVersionConflict
	}
}

func encodeCartLines(lines []domain.CartLine) ([]byte, error) {
	records := make([]cartLineRecord, 0, len(lines))
	for _, l := range lines {
		records = append(records, cartLineRecord(l))
	}
	raw, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("encode cart lines: %w", err)
	}
	return raw, nil
}

func decodeCartLines(raw []byte) ([]domain.CartLine, error) {
	var records []cartLineRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("decode cart lines: %w", err)
	}
	lines := make([]domain.CartLine, 0, len(records))
	for _, rec := range records {
		lines = append(lines, domain.CartLine(rec))
	}
	return lines, nil
}

var _ domain.CartRepository = (*cartRepository)(nil)
