package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/vegshop/internal/domain"
)

const (
	sqlIdempotencyInsert = `
		INSERT INTO idempotency_keys (key, request_hash, status, ttl_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (key) DO NOTHING`

	sqlIdempotencySelect = `
		SELECT key, request_hash, response_body, http_status, status, ttl_at, created_at, updated_at
		FROM idempotency_keys
		WHERE key = $1`

	sqlIdempotencyFinish = `
		UPDATE idempotency_keys
		SET status = $2, response_body = $3, http_status = $4, updated_at = $5
		WHERE key = $1`

	sqlIdempotencyRelease = `
		DELETE FROM idempotency_keys
		WHERE key = $1 AND status = $2`

	// LIMIT NULL снимает ограничение, поэтому limit = 0 удаляет всё просроченное.
	sqlIdempotencyPurge = `
		WITH expired AS (
			SELECT key FROM idempotency_keys
			WHERE ttl_at <= $1
			ORDER BY ttl_at
			LIMIT NULLIF($2, 0)
		)
		DELETE FROM idempotency_keys k USING expired e WHERE k.key = e.key`
)

// idempotencyRepository хранит ключи оформления заказов и сохранённые ответы.
type idempotencyRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewIdempotencyRepository создаёт PostgreSQL-реализацию IdempotencyRepository.
func NewIdempotencyRepository(store *Store) domain.IdempotencyRepository {
	return &idempotencyRepository{db: store.DB(), now: func() time.Time { return time.Now().UTC() }}
}

func (r *idempotencyRepository) CreateProcessing(ctx context.Context, key, requestHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	record, err := domain.NewIdempotencyRecord(key, requestHash, ttlAt, r.now())
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}

	inserted, err := r.insert(ctx, record)
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}
	if inserted {
		return record, nil
	}

	existing, err := r.Get(ctx, record.Key)
	if errors.Is(err, domain.ErrIdempotencyKeyNotFound) {
		// Ключ успели удалить между INSERT и SELECT: для клиента это всё ещё занятый ключ.
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyExists
	}
	if err != nil {
		return domain.IdempotencyRecord{}, err
	}
	return existing, existing.ConflictWith(record.RequestHash)
}

func (r *idempotencyRepository) insert(ctx context.Context, record domain.IdempotencyRecord) (bool, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, sqlIdempotencyInsert,
		record.Key, record.RequestHash, string(record.Status), record.TTLAt, record.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("register idempotency key: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected == 1, nil
}

func (r *idempotencyRepository) Get(ctx context.Context, key string) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	record, err := scanIdempotencyRecord(r.db.QueryRowContext(ctx, sqlIdempotencySelect, key))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("load idempotency key: %w", err)
	}
	return record, nil
}

func scanIdempotencyRecord(row *sql.Row) (domain.IdempotencyRecord, error) {
	var (
		rec        domain.IdempotencyRecord
		status     string
		httpStatus sql.NullInt64
	)
	if err := row.Scan(&rec.Key, &rec.RequestHash, &rec.ResponseBody, &httpStatus, &status,
		&rec.TTLAt, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return rec, err
	}
	rec.Status = domain.IdempotencyStatus(status)
	if !rec.Status.Valid() {
		return domain.IdempotencyRecord{}, fmt.Errorf("unknown idempotency status %q", status)
	}
	rec.HTTPStatus = int(httpStatus.Int64)
	return rec, nil
}

func (r *idempotencyRepository) MarkDone(ctx context.Context, key string, responseBody []byte, httpStatus int) error {
	return r.complete(ctx, key, domain.IdempotencyStatusDone, responseBody, httpStatus)
}

func (r *idempotencyRepository) MarkFailed(ctx context.Context, key string, responseBody []byte, httpStatus int) error {
	return r.complete(ctx, key, domain.IdempotencyStatusFailed, responseBody, httpStatus)
}

func (r *idempotencyRepository) complete(ctx context.Context, key string, status domain.IdempotencyStatus, body []byte, httpStatus int) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, sqlIdempotencyFinish, key, string(status), body, httpStatus, r.now())
	if err != nil {
		return fmt.Errorf("store %s response for idempotency key: %w", status, err)
	}
	return requireAffected(res, domain.ErrIdempotencyKeyNotFound)
}

func (r *idempotencyRepository) Release(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if _, err := r.db.ExecContext(ctx, sqlIdempotencyRelease, key, string(domain.IdempotencyStatusProcessing)); err != nil {
		return fmt.Errorf("release idempotency key: %w", err)
	}
	return nil
}

// DeleteExpired удаляет до limit ключей с ttl_at <= before, начиная с самых старых.
func (r *idempotencyRepository) DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = r.now()
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, sqlIdempotencyPurge, before, max(limit, 0))
	if err != nil {
		return 0, fmt.Errorf("purge expired idempotency keys: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(affected), nil
}

var _ domain.IdempotencyRepository = (*idempotencyRepository)(nil)
