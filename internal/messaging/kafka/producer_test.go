package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/vladislavdragonenkov/vegshop/internal/domain"
)

func headersOf(msg *sarama.ProducerMessage) map[string]string {
	out := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		out[string(h.Key)] = string(h.Value)
	}
	return out
}

func TestProducer_Send(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		require.Equal(t, TopicOrderEvents, msg.Topic)
		key, err := msg.Key.Encode()
		require.NoError(t, err)
		require.Equal(t, "order-123", string(key))
		require.Equal(t, domain.EventOrderPlaced, headersOf(msg)[HeaderEventType])
		return nil
	})

	_, err := Wrap(sp).Send(context.Background(), Record{
		Topic:   TopicOrderEvents,
		Key:     "order-123",
		Value:   []byte(`{"order_id":"order-123"}`),
		Headers: map[string]string{HeaderEventType: domain.EventOrderPlaced},
	})
	require.NoError(t, err)
	require.NoError(t, sp.Close())
}

func TestProducer_SendPropagatesTraceContext(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		require.Equal(t, "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01", headersOf(msg)["traceparent"])
		return nil
	})

	_, err := Wrap(sp).Send(ctx, Record{Topic: TopicOrderEvents, Key: "k", Value: []byte(`{}`)})
	require.NoError(t, err)
	require.NoError(t, sp.Close())
}

func TestProducer_SendError(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	_, err := Wrap(sp).Send(context.Background(), Record{Topic: TopicOrderEvents, Key: "order-123"})
	require.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, sp.Close())
}

func TestProducer_SendCancelledContext(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Wrap(sp).Send(ctx, Record{Topic: TopicOrderEvents, Key: "k"})
	require.ErrorIs(t, err, context.Canceled)
	require.NoError(t, sp.Close())
}

func TestNewProducer_RequiresBrokers(t *testing.T) {
	_, err := NewProducer(ProducerConfig{})
	require.Error(t, err)

	var nilProducer *Producer
	require.NoError(t, nilProducer.Close())
}

func TestOutboxPublisher_Publish(t *testing.T) {
	created := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		raw, err := msg.Value.Encode()
		require.NoError(t, err)

		var env Envelope
		require.NoError(t, json.Unmarshal(raw, &env))
		require.Equal(t, domain.EventOrderPlaced, env.EventType)
		require.Equal(t, "order-123", env.AggregateID)
		require.True(t, env.OccurredAt.Equal(created))
		require.JSONEq(t, `{"total":"115.00"}`, string(env.Payload))

		h := headersOf(msg)
		require.Equal(t, "outbox-1", h[HeaderOutboxID])
		require.Equal(t, "order", h[HeaderAggregateType])
		return nil
	})

	publisher := NewOutboxPublisher(Wrap(sp), "")
	require.Equal(t, TopicOrderEvents, publisher.Topic())

	require.NoError(t, publisher.Publish(context.Background(), domain.OutboxMessage{
		ID:            "outbox-1",
		AggregateType: "order",
		AggregateID:   "order-123",
		EventType:     domain.EventOrderPlaced,
		Payload:       []byte(`{"total":"115.00"}`),
		CreatedAt:     created,
	}))
	require.NoError(t, sp.Close())
}

func TestOutboxPublisher_Errors(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	sp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	dlq := NewOutboxPublisher(Wrap(sp), TopicDeadLetterQueue)
	require.Equal(t, TopicDeadLetterQueue, dlq.Topic())
	err := dlq.Publish(context.Background(), domain.OutboxMessage{ID: "outbox-2", EventType: domain.EventNotificationFailed})
	require.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, sp.Close())

	require.ErrorIs(t, NewOutboxPublisher(nil, "").Publish(context.Background(), domain.OutboxMessage{}), errNoProducer)
}

func TestNewEnvelope(t *testing.T) {
	occurred := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

	env := NewEnvelope(domain.OutboxMessage{
		ID:            "outbox-1",
		AggregateType: "order",
		AggregateID:   "order-1",
		EventType:     domain.EventReceiptReady,
		Payload:       []byte(`{"receipt_url":"https://cdn/receipts/order-order-1.pdf"}`),
		CreatedAt:     occurred,
	}, occurred.Add(time.Second))

	require.Equal(t, "order-1", env.PartitionKey())
	raw, err := json.Marshal(env)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"receipt_url"`)
	require.Contains(t, string(raw), `"event_type":"order.receipt_ready"`)

	// Невалидный JSON в payload не ломает конверт.
	broken := NewEnvelope(domain.OutboxMessage{ID: "outbox-2", Payload: []byte("not json")}, occurred)
	require.Nil(t, broken.Payload)
	require.Equal(t, "outbox-2", broken.PartitionKey())
}
