package kafka

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/vegshop/internal/domain"
)

var errNoProducer = errors.New("kafka: outbox publisher has no producer")

// OutboxPublisher отправляет события заказов из outbox в один topic.
// Для DLQ создаётся второй экземпляр с другим topic.
type OutboxPublisher struct {
	producer *Producer
	topic    string
	now      func() time.Time
}

// NewOutboxPublisher создаёт паблишер; пустой topic означает TopicOrderEvents.
func NewOutboxPublisher(producer *Producer, topic string) *OutboxPublisher {
	return &OutboxPublisher{
		producer: producer,
		topic:    cmp.Or(topic, TopicOrderEvents),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (p *OutboxPublisher) Topic() string { return p.topic }

func (p *OutboxPublisher) Publish(ctx context.Context, event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return errNoProducer
	}

	env := NewEnvelope(event, p.now())
	value, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("kafka: encode %s envelope: %w", event.EventType, err)
	}

	_, err = p.producer.Send(ctx, Record{
		Topic: p.topic,
		Key:   env.PartitionKey(),
		Value: value,
		Headers: map[string]string{
			HeaderEventType:     event.EventType,
			HeaderAggregateType: event.AggregateType,
			HeaderOutboxID:      event.ID,
		},
	})
	return err
}

var _ domain.OutboxPublisher = (*OutboxPublisher)(nil)
