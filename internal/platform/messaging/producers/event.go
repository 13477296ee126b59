package producers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/tamper-evident-ledger/internal/config"
	"github.com/tamper-evident-ledger/internal/domain/outbox"
)

type EventProducer struct {
	logger *slog.Logger
	writer KafkaWriter
	topic  string
}

// Creates the outbox event producer and ensures the event topic exists
func NewEventProducer(ctx context.Context, logger *slog.Logger, cfg *config.KafkaConfig) (*EventProducer, error) {
	if cfg.EventTopic == "" {
		return nil, fmt.Errorf("kafka event topic is not configured")
	}

	conn, err := kafka.Dial("tcp", cfg.Brokers)
	if err != nil {
		return nil, fmt.Errorf("failed to dial kafka for event producer: %w", err)
	}
	defer conn.Close()

	err = ensureTopic(ctx, conn, topicConfigFor(cfg.EventTopic, cfg), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure event topic %s exists: %w", cfg.EventTopic, err)
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers),
		Topic:        cfg.EventTopic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: cfg.MaxWait,
	}

	return &EventProducer{
		logger: logger,
		writer: writer,
		topic:  cfg.EventTopic,
	}, nil
}

// PublishEvent writes the envelope keyed by aggregate id, so all events of one entry
// keep their order within a partition.
func (p *EventProducer) PublishEvent(ctx context.Context, aggregateID string, envelope outbox.Envelope) error {
	value, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal %s envelope: %w", envelope.EventType, err)
	}

	msg := kafka.Message{
		Key:   []byte(aggregateID),
		Value: value,
		Headers: []kafka.Header{
			{Key: HeaderEventType, Value: []byte(envelope.EventType)},
			{Key: HeaderCorrelationID, Value: []byte(envelope.CorrelationID)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish domain event",
			"topic", p.topic,
			"event_id", envelope.EventID.String(),
			"event_type", envelope.EventType,
			"error", err,
		)
		return fmt.Errorf("failed to publish event %s to %s: %w", envelope.EventID, p.topic, err)
	}

	p.logger.Debug("Published domain event",
		"topic", p.topic,
		"event_id", envelope.EventID.String(),
		"event_type", envelope.EventType,
	)
	return nil
}

func (p *EventProducer) Close() error {
	p.logger.Info("Closing event producer", "topic", p.topic)
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close event writer for topic %s: %w", p.topic, err)
	}
	return nil
}
