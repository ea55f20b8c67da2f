package app

import (
	"context"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/vegshop/internal/domain"
	"github.com/vladislavdragonenkov/vegshop/internal/messaging/kafka"
)

// eventSinks — куда outbox-воркер отправляет события и их мёртвые письма.
type eventSinks struct {
	events   domain.OutboxPublisher
	dead     domain.OutboxPublisher
	producer *kafka.Producer
}

// openEventSinks подключает Kafka, если заданы брокеры. Без брокеров или при
// ошибке подключения события пишутся в лог, а outbox продолжает работать.
func openEventSinks(cfg Config, logger *log.Entry) eventSinks {
	sinks := eventSinks{events: logPublisher{logger: logger.WithField("component", "outbox")}}

	brokers := splitList(cfg.KafkaBrokers)
	if len(brokers) == 0 {
		logger.Info("kafka brokers not set, order events are logged only")
		return sinks
	}

	producer, err := kafka.NewProducer(kafka.ProducerConfig{Brokers: brokers, ClientID: cfg.KafkaClientID})
	if err != nil {
		logger.WithError(err).Warn("kafka unavailable, order events are logged only")
		return sinks
	}

	sinks.producer = producer
	sinks.events = kafka.NewOutboxPublisher(producer, cfg.KafkaTopic)
	if cfg.KafkaDLQTopic != "" {
		sinks.dead = kafka.NewOutboxPublisher(producer, cfg.KafkaDLQTopic)
	}
	logger.WithFields(log.Fields{"brokers": brokers, "topic": cfg.KafkaTopic}).Info("kafka producer ready")
	return sinks
}

func (s eventSinks) close(logger *log.Entry) {
	if s.producer == nil {
		return
	}
	if err := s.producer.Close(); err != nil {
		logger.WithError(err).Warn("kafka producer close failed")
	}
}

// logPublisher подменяет брокер, когда Kafka не настроена.
type logPublisher struct {
	logger *log.Entry
}

func (p logPublisher) Publish(_ context.Context, event domain.OutboxMessage) error {
	p.logger.WithFields(log.Fields{
		"event_type":   event.EventType,
		"aggregate_id": event.AggregateID,
	}).Debug("order event not published: no broker configured")
	return nil
}

func splitList(raw string) []string {
	var out []string
	for item := range strings.SplitSeq(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
