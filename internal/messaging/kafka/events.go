package kafka

import (
	"encoding/json"
	"time"

	"github.com/vladislavdragonenkov/vegshop/internal/domain"
)

// Topics для Kafka.
const (
	TopicOrderEvents     = "vegshop.order.events"
	TopicDeadLetterQueue = "vegshop.order.events.dlq"
)

// Заголовки, которые получает каждое сообщение.
const (
	HeaderEventType     = "x-event-type"
	HeaderAggregateType = "x-aggregate-type"
	HeaderOutboxID      = "x-outbox-id"
)

// Envelope — формат сообщения о событии заказа в Kafka.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	OccurredAt    time.Time       `json:"occurred_at"`
	PublishedAt   time.Time       `json:"published_at"`
}

// NewEnvelope упаковывает outbox-сообщение.
func NewEnvelope(msg domain.OutboxMessage, publishedAt time.Time) Envelope {
	var payload json.RawMessage
	if len(msg.Payload) > 0 && json.Valid(msg.Payload) {
		payload = json.RawMessage(msg.Payload)
	}
	return Envelope{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       payload,
		OccurredAt:    msg.CreatedAt,
		PublishedAt:   publishedAt,
	}
}

// PartitionKey — все события одного заказа попадают в одну партицию.
func (e Envelope) PartitionKey() string {
	if e.AggregateID != "" {
		return e.AggregateID
	}
	return e.ID
}
