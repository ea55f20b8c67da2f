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

type orderLineDocument struct {
	ProductID string               `bson:"vegetable_id"`
	Name      string               `bson:"name"`
	UnitPrice primitive.Decimal128 `bson:"unit_price"`
	Quantity  int                  `bson:"quantity"`
}

type orderDocument struct {
	ID               string               `bson:"_id"`
	CustomerID       string               `bson:"customer_id"`
	Lines            []orderLineDocument  `bson:"items"`
	TotalPrice       primitive.Decimal128 `bson:"total_price"`
	Currency         string               `bson:"currency"`
	Status           string               `bson:"status"`
	PaymentMethod    string               `bson:"payment_method,omitempty"`
	ReceiptURL       string               `bson:"receipt_url,omitempty"`
	ReceiptState     string               `bson:"receipt_state"`
	RecoveryAttempts int                  `bson:"recovery_attempts"`
	LastError        string               `bson:"last_error,omitempty"`
	Version          int64                `bson:"version"`
	CreatedAt        time.Time            `bson:"created_at"`
	UpdatedAt        time.Time            `bson:"updated_at"`
}

func newOrderDocument(o domain.Order) (orderDocument, error) {
	total, err := toDecimal128(o.TotalPrice)
	if err != nil {
		return orderDocument{}, err
	}
	lines := make([]orderLineDocument, 0, len(o.Lines))
	for _, l := range o.Lines {
		price, err := toDecimal128(l.UnitPrice)
		if err != nil {
			return orderDocument{}, err
		}
		lines = append(lines, orderLineDocument{ProductID: l.ProductID, Name: l.Name, UnitPrice: price, Quantity: l.Quantity})
	}
	return orderDocument{
		ID: o.ID, CustomerID: o.CustomerID, Lines: lines, TotalPrice: total, Currency: o.Currency,
		Status: string(o.Status), PaymentMethod: string(o.PaymentMethod), ReceiptURL: o.ReceiptURL,
		ReceiptState: string(o.ReceiptState), RecoveryAttempts: o.RecoveryAttempts, LastError: o.LastError,
		Version: o.Version, CreatedAt: o.CreatedAt, UpdatedAt: o.UpdatedAt,
	}, nil
}

func (d orderDocument) toDomain() (domain.Order, error) {
	total, err := fromDecimal128(d.TotalPrice)
	if err != nil {
		return domain.Order{}, err
	}
	o := domain.Order{
		ID: d.ID, CustomerID: d.CustomerID, TotalPrice: total, Currency: d.Currency,
		Status: domain.OrderStatus(d.Status), PaymentMethod: domain.PaymentMethod(d.PaymentMethod),
		ReceiptURL: d.ReceiptURL, ReceiptState: domain.ReceiptState(d.ReceiptState),
		RecoveryAttempts: d.RecoveryAttempts, LastError: d.LastError, Version: d.Version,
		CreatedAt: d.CreatedAt.UTC(), UpdatedAt: d.UpdatedAt.UTC(),
		Lines: make([]domain.OrderLine, 0, len(d.Lines)),
	}
	for _, l := range d.Lines {
		price, err := fromDecimal128(l.UnitPrice)
		if err != nil {
			return domain.Order{}, err
		}
		o.Lines = append(o.Lines, domain.OrderLine{ProductID: l.ProductID, Name: l.Name, UnitPrice: price, Quantity: l.Quantity})
	}
	return o, nil
}

type orderRepository struct {
	collection *mongo.Collection
}

// NewOrderRepository создаёт MongoDB-реализацию OrderRepository. Позиции хранятся внутри документа заказа.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{collection: store.Database().Collection(collectionOrders)}
}

func (r *orderRepository) Create(ctx context.Context, order domain.Order) error {
	doc, err := newOrderDocument(order)
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	_, err = r.collection.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return domain.ErrOrderExists
	}
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var doc orderDocument
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if err != nil {
		return domain.Order{}, fmt.Errorf("find order: %w", err)
	}
	return doc.toDomain()
}

func (r *orderRepository) ListByCustomer(ctx context.Context, customerID string, limit int) ([]domain.Order, error) {
	return r.find(ctx, bson.M{"customer_id": customerID}, -1, limit)
}

func (r *orderRepository) List(ctx context.Context, limit int) ([]domain.Order, error) {
	return r.find(ctx, bson.M{}, -1, limit)
}

func (r *orderRepository) ListUnfinished(ctx context.Context, before time.Time, maxAttempts, limit int) ([]domain.Order, error) {
	filter := bson.M{
		"receipt_state": bson.M{"$ne": string(domain.ReceiptStateNotified)},
		"created_at":    bson.M{"$lt": before},
	}
	if maxAttempts > 0 {
		filter["recovery_attempts"] = bson.M{"$lt": maxAttempts}
	}
	return r.find(ctx, filter, 1, limit)
}

func (r *orderRepository) Save(ctx context.Context, order domain.Order) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": order.ID, "version": order.Version},
		bson.M{
			"$set": bson.M{
				"status":            string(order.Status),
				"payment_method":    string(order.PaymentMethod),
				"receipt_url":       order.ReceiptURL,
				"receipt_state":     string(order.ReceiptState),
				"recovery_attempts": order.RecoveryAttempts,
				"last_error":        order.LastError,
				"updated_at":        order.UpdatedAt,
			},
			"$inc": bson.M{"version": 1},
		},
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	count, err := r.collection.CountDocuments(ctx, bson.M{"_id": order.ID})
	if err != nil {
		return fmt.Errorf("check order exists: %w", err)
	}
	if count == 0 {
		return domain.ErrOrderNotFound
	}
	return domain.ErrOrderVersionConflict
}

// find сортирует по created_at (order 1 или -1), затем по _id.
func (r *orderRepository) find(ctx context.Context, filter bson.M, order, limit int) ([]domain.Order, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: order}, {Key: "_id", Value: order}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find orders: %w", err)
	}
	var docs []orderDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode orders: %w", err)
	}

	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		o, err := doc.toDomain()
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)
