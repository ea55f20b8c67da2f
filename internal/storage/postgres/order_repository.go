package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/vegshop/internal/domain"
)

const orderColumns = `id, customer_id, total_price, currency, status, payment_method, receipt_url,
	receipt_state, recovery_attempts, last_error, version, created_at, updated_at`

type orderRepository struct {
	store *Store
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
// Позиции заказа пишутся в order_lines той же транзакцией и дальше не меняются.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{store: store}
}

func (r *orderRepository) Create(ctx context.Context, order domain.Order) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	return r.store.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO orders (`+orderColumns+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		`,
			order.ID, order.CustomerID, order.TotalPrice, order.Currency, string(order.Status),
			string(order.PaymentMethod), order.ReceiptURL, string(order.ReceiptState),
			order.RecoveryAttempts, order.LastError, order.Version, order.CreatedAt, order.UpdatedAt,
		)
		if isUniqueViolation(err) {
			return domain.ErrOrderExists
		}
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		for i, line := range order.Lines {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO order_lines (order_id, position, product_id, name, unit_price, quantity)
				VALUES ($1,$2,$3,$4,$5,$6)
			`, order.ID, i, line.ProductID, line.Name, line.UnitPrice, line.Quantity); err != nil {
				return fmt.Errorf("insert order line: %w", err)
			}
		}
		return nil
	})
}

func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	order, err := scanOrder(r.store.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if err != nil {
		return domain.Order{}, err
	}

	orders := []domain.Order{order}
	if err := r.attachLines(ctx, orders); err != nil {
		return domain.Order{}, err
	}
	return orders[0], nil
}

func (r *orderRepository) ListByCustomer(ctx context.Context, customerID string, limit int) ([]domain.Order, error) {
	return r.list(ctx, `WHERE customer_id = $1 ORDER BY created_at DESC, id DESC`, limit, customerID)
}

func (r *orderRepository) List(ctx context.Context, limit int) ([]domain.Order, error) {
	return r.list(ctx, `ORDER BY created_at DESC, id DESC`, limit)
}

func (r *orderRepository) ListUnfinished(ctx context.Context, before time.Time, maxAttempts, limit int) ([]domain.Order, error) {
	return r.list(ctx, `
		WHERE receipt_state <> $1
		  AND created_at < $2
		  AND ($3 <= 0 OR recovery_attempts < $3)
		ORDER BY created_at ASC, id ASC`,
		limit, string(domain.ReceiptStateNotified), before, maxAttempts)
}

var errStaleOrMissing = errors.New("order not updated")

func (r *orderRepository) Save(ctx context.Context, order domain.Order) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	return r.store.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE orders
			SET status = $3,
			    payment_method = $4,
			    receipt_url = $5,
			    receipt_state = $6,
			    recovery_attempts = $7,
			    last_error = $8,
			    updated_at = $9,
			    version = version + 1
			WHERE id = $1 AND version = $2
		`,
			order.ID, order.Version, string(order.Status), string(order.PaymentMethod), order.ReceiptURL,
			string(order.ReceiptState), order.RecoveryAttempts, order.LastError, order.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("update order: %w", err)
		}
		// Ноль строк: либо заказа нет, либо версия устарела.
		if err := requireAffected(res, errStaleOrMissing); !errors.Is(err, errStaleOrMissing) {
			return err
		}

		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, order.ID).Scan(&exists); err != nil {
			return fmt.Errorf("check order exists: %w", err)
		}
		if !exists {
			return domain.ErrOrderNotFound
		}
		return domain.ErrOrderVersionConflict
	})
}

func (r *orderRepository) list(ctx context.Context, clause string, limit int, args ...any) ([]domain.Order, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	query := `SELECT ` + orderColumns + ` FROM orders ` + clause
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	orders, err := collectRows(rows, func(rows *sql.Rows) (domain.Order, error) { return scanOrder(rows) })
	if err != nil {
		return nil, err
	}
	if err := r.attachLines(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// attachLines подгружает позиции всех orders одним запросом.
func (r *orderRepository) attachLines(ctx context.Context, orders []domain.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, len(orders))
	at := make(map[string]int, len(orders))
	for i, o := range orders {
		ids[i], at[o.ID] = o.ID, i
		orders[i].Lines = make([]domain.OrderLine, 0)
	}

	rows, err := r.store.db.QueryContext(ctx, `
		SELECT order_id, product_id, name, unit_price, quantity
		FROM order_lines
		WHERE order_id = ANY($1)
		ORDER BY order_id, position
	`, ids)
	if err != nil {
		return fmt.Errorf("load order lines: %w", err)
	}
	type ownedLine struct {
		orderID string
		line    domain.OrderLine
	}
	lines, err := collectRows(rows, func(rows *sql.Rows) (ownedLine, error) {
		var l ownedLine
		err := rows.Scan(&l.orderID, &l.line.ProductID, &l.line.Name, &l.line.UnitPrice, &l.line.Quantity)
		if err != nil {
			return l, fmt.Errorf("scan order line: %w", err)
		}
		return l, nil
	})
	if err != nil {
		return err
	}
	for _, l := range lines {
		i := at[l.orderID]
		orders[i].Lines = append(orders[i].Lines, l.line)
	}
	return nil
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order                       domain.Order
		status, method, receiptStat string
	)
	err := row.Scan(
		&order.ID, &order.CustomerID, &order.TotalPrice, &order.Currency, &status, &method, &order.ReceiptURL,
		&receiptStat, &order.RecoveryAttempts, &order.LastError, &order.Version, &order.CreatedAt, &order.UpdatedAt,
	)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return domain.Order{}, err
	case err != nil:
		return domain.Order{}, fmt.Errorf("scan order: %w", err)
	}
	order.Status = domain.OrderStatus(status)
	order.PaymentMethod = domain.PaymentMethod(method)
	order.ReceiptState = domain.ReceiptState(receiptStat)
	return order, nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)
