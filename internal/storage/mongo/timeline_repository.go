package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vladislavdragonenkov/vegshop/internal/domain"
)

type timelineDocument struct {
	OrderID  string    `bson:"order_id"`
	Type     string    `bson:"type"`
	Reason   string    `bson:"reason,omitempty"`
	Occurred time.Time `bson:"occurred"`
}

type timelineRepository struct {
	collection *mongo.Collection
}

// NewTimelineRepository создаёт MongoDB-реализацию TimelineRepository.
func NewTimelineRepository(store *Store) domain.TimelineRepository {
	return &timelineRepository{collection: store.Database().Collection(collectionTimeline)}
}

func (r *timelineRepository) Append(ctx context.Context, event domain.TimelineEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if _, err := r.collection.InsertOne(ctx, timelineDocument(event)); err != nil {
		return fmt.Errorf("append timeline event: %w", err)
	}
	return nil
}

func (r *timelineRepository) List(ctx context.Context, orderID string) ([]domain.TimelineEvent, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	// _id (ObjectID) монотонен и сохраняет порядок вставки при равном времени.
	opts := options.Find().SetSort(bson.D{{Key: "occurred", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"order_id": orderID}, opts)
	if err != nil {
		return nil, fmt.Errorf("find timeline events: %w", err)
	}
	var docs []timelineDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode timeline events: %w", err)
	}

	events := make([]domain.TimelineEvent, 0, len(docs))
	for _, d := range docs {
		e := domain.TimelineEvent(d)
		e.Occurred = e.Occurred.UTC()
		events = append(events, e)
	}
	return events, nil
}

var _ domain.TimelineRepository = (*timelineRepository)(nil)
