// Package mongo — хранилище магазина в MongoDB: пользователи, каталог, корзины, заказы и их события.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	defaultConnectTimeout = 10 * time.Second
	opTimeout             = 5 * time.Second

	collectionUsers    = "users"
	collectionProducts = "vegetables"
	collectionCarts    = "carts"
	collectionOrders   = "orders"
	collectionTimeline = "order_timeline"
)

var errStoreNotInitialized = errors.New("mongo store is not initialized")

// Store владеет клиентом MongoDB и базой магазина.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect подключается к MongoDB и проверяет доступность primary.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	connectCtx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &Store{client: client, db: client.Database(database)}, nil
}

// Database возвращает базу магазина.
func (s *Store) Database() *mongo.Database {
	return s.db
}

// Ping проверяет подключение.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return errStoreNotInitialized
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return s.client.Ping(ctx, readpref.Primary())
}

// EnsureIndexes создаёт индексы, на которых держатся инварианты:
// уникальный email пользователя и одна корзина на пользователя.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errStoreNotInitialized
	}

	indexes := map[string][]mongo.IndexModel{
		collectionUsers: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true).SetName("users_email_unique")},
		},
		collectionCarts: {
			{Keys: bson.D{{Key: "actor_id", Value: 1}}, Options: options.Index().SetUnique(true).SetName("carts_actor_unique")},
		},
		collectionOrders: {
			{Keys: bson.D{{Key: "customer_id", Value: 1}, {Key: "created_at", Value: -1}}, Options: options.Index().SetName("orders_customer_created")},
			{Keys: bson.D{{Key: "receipt_state", Value: 1}, {Key: "created_at", Value: 1}}, Options: options.Index().SetName("orders_receipt_state")},
		},
		collectionTimeline: {
			{Keys: bson.D{{Key: "order_id", Value: 1}, {Key: "occurred", Value: 1}}, Options: options.Index().SetName("timeline_order_occurred")},
		},
	}

	for collection, models := range indexes {
		if _, err := s.db.Collection(collection).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", collection, err)
		}
	}
	return nil
}

// Close отключает клиента.
func (s *Store) Close(ctx context.Context) error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, opTimeout)
}
