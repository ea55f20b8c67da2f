// Package postgres — хранилище магазина в PostgreSQL через database/sql и драйвер pgx.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"
)

const (
	// Таймаут одного запроса репозитория.
	queryTimeout = 5 * time.Second
	pingTimeout  = 5 * time.Second

	pgUniqueViolation = "23505"
)

var errStoreNotInitialized = errors.New("postgres store is not initialized")

// PoolSettings — параметры пула database/sql.
type PoolSettings struct {
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

// DefaultPoolSettings рассчитаны на один инстанс vegshop и пару фоновых воркеров.
func DefaultPoolSettings() PoolSettings {
	return PoolSettings{MaxOpen: 20, MaxIdle: 5, MaxLifetime: time.Hour, MaxIdleTime: 10 * time.Minute}
}

// StoreOption настраивает Open.
type StoreOption func(*PoolSettings)

// WithPool заменяет настройки пула; нулевые поля остаются по умолчанию.
func WithPool(p PoolSettings) StoreOption {
	return func(cur *PoolSettings) {
		if p.MaxOpen > 0 {
			cur.MaxOpen = p.MaxOpen
		}
		if p.MaxIdle > 0 {
			cur.MaxIdle = p.MaxIdle
		}
		if p.MaxLifetime > 0 {
			cur.MaxLifetime = p.MaxLifetime
		}
		if p.MaxIdleTime > 0 {
			cur.MaxIdleTime = p.MaxIdleTime
		}
	}
}

// Store владеет пулом подключений к PostgreSQL.
type Store struct {
	db *sql.DB
}

// Open разбирает DSN, открывает пул через pgx и дожидается ответа базы.
func Open(ctx context.Context, dsn string, opts ...StoreOption) (*Store, error) {
	connCfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}

	pool := DefaultPoolSettings()
	for _, opt := range opts {
		opt(&pool)
	}

	db := stdlib.OpenDB(*connCfg)
	db.SetMaxOpenConns(pool.MaxOpen)
	db.SetMaxIdleConns(min(pool.MaxIdle, pool.MaxOpen))
	db.SetConnMaxLifetime(pool.MaxLifetime)
	db.SetConnMaxIdleTime(pool.MaxIdleTime)

	store := &Store{db: db}
	if err := store.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres %s:%d unreachable: %w", connCfg.Host, connCfg.Port, err)
	}
	return store, nil
}

// DB отдаёт пул репозиториям и мигратору.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping используется health-проверкой.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errStoreNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return s.db.PingContext(ctx)
}

// Close можно вызывать на nil.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// inTx выполняет fn в транзакции и откатывает её при ошибке.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// isUniqueViolation распознаёт нарушение UNIQUE/PK, например повторный email.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgUniqueViolation
}

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, queryTimeout)
}

// collectRows читает все строки через scan и закрывает rows.
func collectRows[T any](rows *sql.Rows, scan func(*sql.Rows) (T, error)) ([]T, error) {
	defer rows.Close()

	out := make([]T, 0)
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// requireAffected возвращает notFound, если запрос не затронул ни одной строки.
func requireAffected(res sql.Result, notFound error) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return notFound
	}
	return nil
}
