package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/vegshop/internal/domain"
)

const productColumns = `id, name, description, price, discount_percent, stock, unit, available,
	category, images, created_at, updated_at`

type imageRecord struct {
	URL      string `json:"url"`
	PublicID string `json:"public_id,omitempty"`
}

type productRepository struct {
	db *sql.DB
}

// NewProductRepository создаёт PostgreSQL-реализацию ProductRepository.
// Цены хранятся как NUMERIC, изображения как JSONB.
func NewProductRepository(store *Store) domain.ProductRepository {
	return &productRepository{db: store.DB()}
}

func (r *productRepository) Create(ctx context.Context, p domain.Product) error {
	images, err := encodeImages(p.Images)
	if err != nil {
		return err
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO products (`+productColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`,
		p.ID, p.Name, p.Description, p.Price, p.DiscountPercent, p.Stock, p.Unit, p.Available,
		p.Category, images, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

func (r *productRepository) Get(ctx context.Context, id string) (domain.Product, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	p, err := scanProduct(r.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return p, err
}

func (r *productRepository) List(ctx context.Context) ([]domain.Product, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate products: %w", err)
	}
	return products, nil
}

func (r *productRepository) Update(ctx context.Context, p domain.Product) error {
	images, err := encodeImages(p.Images)
	if err != nil {
		return err
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, description = $3, price = $4, discount_percent = $5, stock = $6,
		    unit = $7, available = $8, category = $9, images = $10, updated_at = $11
		WHERE id = $1
	`,
		p.ID, p.Name, p.Description, p.Price, p.DiscountPercent, p.Stock,
		p.Unit, p.Available, p.Category, images, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	return requireAffected(res, domain.ErrProductNotFound)
}

func (r *productRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	return requireAffected(res, domain.ErrProductNotFound)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var (
		p      domain.Product
		images []byte
	)
	if err := row.Scan(
		&p.ID, &p.Name, &p.Description, &p.Price, &p.DiscountPercent, &p.Stock, &p.Unit, &p.Available,
		&p.Category, &images, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, err
		}
		return domain.Product{}, fmt.Errorf("scan product: %w", err)
	}

	var records []imageRecord
	if err := json.Unmarshal(images, &records); err != nil {
		return domain.Product{}, fmt.Errorf("decode product images: %w", err)
	}
	for _, img := range records {
		p.Images = append(p.Images, domain.ProductImage{URL: img.URL, PublicID: img.PublicID})
	}
	return p, nil
}

func encodeImages(images []domain.ProductImage) ([]byte, error) {
	records := make([]imageRecord, 0, len(images))
	for _, img := range images {
		records = append(records, imageRecord{URL: img.URL, PublicID: img.PublicID})
	}
	raw, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("encode product images: %w", err)
	}
	return raw, nil
}

var _ domain.ProductRepository = (*productRepository)(nil)
