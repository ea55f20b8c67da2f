package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vladislavdragonenkov/vegshop/internal/domain"
)

type imageDocument struct {
	URL      string `bson:"url"`
	PublicID string `bson:"public_id,omitempty"`
}

type productDocument struct {
	ID              string               `bson:"_id"`
	Name            string               `bson:"name"`
	Description     string               `bson:"description,omitempty"`
	Price           primitive.Decimal128 `bson:"price"`
	DiscountPercent primitive.Decimal128 `bson:"discount"`
	Stock           int                  `bson:"stock"`
	Unit            string               `bson:"unit,omitempty"`
	Available       bool                 `bson:"available"`
	Category        string               `bson:"category,omitempty"`
	Images          []imageDocument      `bson:"images"`
	CreatedAt       time.Time            `bson:"created_at"`
	UpdatedAt       time.Time            `bson:"updated_at"`
}

func newProductDocument(p domain.Product) (productDocument, error) {
	price, err := toDecimal128(p.Price)
	if err != nil {
		return productDocument{}, err
	}
	discount, err := toDecimal128(p.DiscountPercent)
	if err != nil {
		return productDocument{}, err
	}
	images := make([]imageDocument, 0, len(p.Images))
	for _, img := range p.Images {
		images = append(images, imageDocument(img))
	}
	return productDocument{
		ID: p.ID, Name: p.Name, Description: p.Description, Price: price, DiscountPercent: discount,
		Stock: p.Stock, Unit: p.Unit, Available: p.Available, Category: p.Category, Images: images,
		CreatedAt: p.CreatedAt, UpdatedAt: p.UpdatedAt,
	}, nil
}

func (d productDocument) toDomain() (domain.Product, error) {
	price, err := fromDecimal128(d.Price)
	if err != nil {
		return domain.Product{}, err
	}
	discount, err := fromDecimal128(d.DiscountPercent)
	if err != nil {
		return domain.Product{}, err
	}
	p := domain.Product{
		ID: d.ID, Name: d.Name, Description: d.Description, Price: price, DiscountPercent: discount,
		Stock: d.Stock, Unit: d.Unit, Available: d.Available, Category: d.Category,
		CreatedAt: d.CreatedAt.UTC(), UpdatedAt: d.UpdatedAt.UTC(),
	}
	for _, img := range d.Images {
		p.Images = append(p.Images, domain.ProductImage(img))
	}
	return p, nil
}

type productRepository struct {
	collection *mongo.Collection
}

// NewProductRepository создаёт MongoDB-реализацию ProductRepository. Цены хранятся как Decimal128.
func NewProductRepository(store *Store) domain.ProductRepository {
	return &productRepository{collection: store.Database().Collection(collectionProducts)}
}

func (r *productRepository) Create(ctx context.Context, p domain.Product) error {
	doc, err := newProductDocument(p)
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

func (r *productRepository) Get(ctx context.Context, id string) (domain.Product, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var doc productDocument
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Product{}, domain.ErrProductNotFound
	}
	if err != nil {
		return domain.Product{}, fmt.Errorf("find product: %w", err)
	}
	return doc.toDomain()
}

func (r *productRepository) List(ctx context.Context) ([]domain.Product, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("find products: %w", err)
	}
	var docs []productDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode products: %w", err)
	}

	products := make([]domain.Product, 0, len(docs))
	for _, doc := range docs {
		p, err := doc.toDomain()
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, nil
}

func (r *productRepository) Update(ctx context.Context, p domain.Product) error {
	doc, err := newProductDocument(p)
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.collection.ReplaceOne(ctx, bson.M{"_id": p.ID}, doc)
	if err != nil {
		return fmt.Errorf("replace product: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

func (r *productRepository) Delete(ctx context.Context, id string) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

var _ domain.ProductRepository = (*productRepository)(nil)
