package kafka

import (
	"context"
	"errors"
	"fmt"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

// ProducerConfig — параметры подключения к брокерам.
type ProducerConfig struct {
	Brokers  []string
	ClientID string
	// MaxRetries: повторы sarama на один Send; 0 означает 5.
	MaxRetries int
}

func (c ProducerConfig) sarama() *sarama.Config {
	sc := sarama.NewConfig()
	if c.ClientID != "" {
		sc.ClientID = c.ClientID
	}
	sc.Producer.Return.Successes = true
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = 5
	if c.MaxRetries > 0 {
		sc.Producer.Retry.Max = c.MaxRetries
	}
	sc.Producer.Compression = sarama.CompressionSnappy
	// Idempotent producer требует одного запроса в полёте на соединение.
	sc.Producer.Idempotent = true
	sc.Net.MaxOpenRequests = 1
	return sc
}

// Record — сообщение в том виде, в каком оно уходит в topic.
type Record struct {
	Topic   string
	Key     string
	Value   []byte
	Headers map[string]string
}

// Delivery — куда брокер записал сообщение.
type Delivery struct {
	Partition int32
	Offset    int64
}

// Producer — синхронная отправка в Kafka с контекстом трассировки в заголовках.
type Producer struct {
	sync   sarama.SyncProducer
	logger *log.Entry
}

// NewProducer подключается к брокерам из cfg.
func NewProducer(cfg ProducerConfig) (*Producer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}
	sp, err := sarama.NewSyncProducer(cfg.Brokers, cfg.sarama())
	if err != nil {
		return nil, fmt.Errorf("kafka: connect to %v: %w", cfg.Brokers, err)
	}
	return Wrap(sp), nil
}

// Wrap строит Producer поверх готового SyncProducer, например mocks.SyncProducer.
func Wrap(sp sarama.SyncProducer) *Producer {
	return &Producer{sync: sp, logger: log.WithField("component", "kafka-producer")}
}

// Send отправляет запись. SyncProducer не принимает ctx, поэтому он
// проверяется до отправки и служит источником trace-заголовков.
func (p *Producer) Send(ctx context.Context, rec Record) (Delivery, error) {
	if err := ctx.Err(); err != nil {
		return Delivery{}, err
	}

	headers := make(headerCarrier, len(rec.Headers))
	for k, v := range rec.Headers {
		headers.Set(k, v)
	}
	otel.GetTextMapPropagator().Inject(ctx, headers)

	msg := &sarama.ProducerMessage{
		Topic:   rec.Topic,
		Key:     sarama.StringEncoder(rec.Key),
		Value:   sarama.ByteEncoder(rec.Value),
		Headers: headers.records(),
	}

	fields := log.Fields{"topic": rec.Topic, "key": rec.Key}
	partition, offset, err := p.sync.SendMessage(msg)
	if err != nil {
		p.logger.WithError(err).WithFields(fields).Warn("kafka send failed")
		return Delivery{}, fmt.Errorf("kafka: send to %s: %w", rec.Topic, err)
	}

	fields["partition"], fields["offset"] = partition, offset
	p.logger.WithFields(fields).Debug("kafka record delivered")
	return Delivery{Partition: partition, Offset: offset}, nil
}

// Close дожидается отправки буфера и закрывает соединения.
func (p *Producer) Close() error {
	if p == nil || p.sync == nil {
		return nil
	}
	if err := p.sync.Close(); err != nil {
		return fmt.Errorf("kafka: close producer: %w", err)
	}
	return nil
}

// headerCarrier — заголовки сообщения для otel propagation.
type headerCarrier map[string]string

func (h headerCarrier) Get(key string) string { return h[key] }

func (h headerCarrier) Set(key, value string) { h[key] = value }

func (h headerCarrier) Keys() []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	return keys
}

func (h headerCarrier) records() []sarama.RecordHeader {
	out := make([]sarama.RecordHeader, 0, len(h))
	for k, v := range h {
		out = append(out, sarama.RecordHeader{Key: []byte(k), Value: []byte(v)})
	}
	return out
}
