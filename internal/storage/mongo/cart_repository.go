package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vladislavdragonenkov/vegshop/internal/domain"
)

type cartLineDocument struct {
	ProductID string    `bson:"vegetable_id"`
	Name      string    `bson:"name,omitempty"`
	Quantity  int       `bson:"quantity"`
	AddedAt   time.Time `bson:"added_at"`
}

type cartDocument struct {
	ActorID   string             `bson:"actor_id"`
	Lines     []cartLineDocument `bson:"lines"`
	Version   int64              `bson:"version"`
	CreatedAt time.Time          `bson:"created_at"`
	UpdatedAt time.Time          `bson:"updated_at"`
}

func (d cartDocument) toDomain() domain.Cart {
	cart := domain.Cart{
		ActorID:   d.ActorID,
		Lines:     make([]domain.CartLine, 0, len(d.Lines)),
		Version:   d.Version,
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}
	for _, l := range d.Lines {
		line := domain.CartLine(l)
		line.AddedAt = line.AddedAt.UTC()
		cart.Lines = append(cart.Lines, line)
	}
	return cart
}

func cartLineDocuments(lines []domain.CartLine) []cartLineDocument {
	out := make([]cartLineDocument, 0, len(lines))
	for _, l := range lines {
		out = append(out, cartLineDocument(l))
	}
	return out
}

type cartRepository struct {
	collection *mongo.Collection
}

// NewCartRepository создаёт MongoDB-реализацию CartRepository с проверкой версии в фильтре.
func NewCartRepository(store *Store) domain.CartRepository {
	return &cartRepository{collection: store.Database().Collection(collectionCarts)}
}

func (r *cartRepository) GetByActor(ctx context.Context, actorID string) (domain.Cart, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	var doc cartDocument
	err := r.collection.FindOne(ctx, bson.M{"actor_id": actorID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Cart{}, domain.ErrCartNotFound
	}
	if err != nil {
		return domain.Cart{}, fmt.Errorf("find cart: %w", err)
	}
	return doc.toDomain(), nil
}

func (r *cartRepository) Save(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	now := time.Now().UTC()
	if cart.Version == 0 {
		doc := cartDocument{ActorID: cart.ActorID, Lines: cartLineDocuments(cart.Lines), Version: 1, CreatedAt: now, UpdatedAt: now}
		_, err := r.collection.InsertOne(ctx, doc)
		if mongo.IsDuplicateKeyError(err) {
			return domain.Cart{}, domain.ErrCartVersionConflict
		}
		if err != nil {
			return domain.Cart{}, fmt.Errorf("insert cart: %w", err)
		}
		return doc.toDomain(), nil
	}

	var doc cartDocument
	err := r.collection.FindOneAndUpdate(ctx,
		bson.M{"actor_id": cart.ActorID, "version": cart.Version},
		bson.M{
			"$set": bson.M{"lines": cartLineDocuments(cart.Lines), "updated_at": now},
			"$inc": bson.M{"version": 1},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Cart{}, domain.ErrCartVersionConflict
	}
	if err != nil {
		return domain.Cart{}, fmt.Errorf("update cart: %w", err)
	}
	return doc.toDomain(), nil
}

func (r *cartRepository) Clear(ctx context.Context, actorID string, expectedVersion int64) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	res, err := r.collection.UpdateOne(ctx,
		bson.M{"actor_id": actorID, "version": expectedVersion, "lines.0": bson.M{"$exists": true}},
		bson.M{
			"$set": bson.M{"lines": []cartLineDocument{}, "updated_at": time.Now().UTC()},
			"$inc": bson.M{"version": 1},
		},
	)
	if err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	current, err := r.GetByActor(ctx, actorID)
	switch {
	case errors.Is(err, domain.ErrCartNotFound):
		return nil
	case err != nil:
		return err
	case len(current.Lines) == 0:
		return nil
	default:
		return domain.ErrCartVersionConflict
	}
}

var _ domain.CartRepository = (*cartRepository)(nil)
