package producers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"

	"github.com/tamper-evident-ledger/internal/config"
	"github.com/tamper-evident-ledger/internal/domain/ledger"
)

// Header keys set on every command and event message
const (
	HeaderCommandType   = "command-type"
	HeaderEventType     = "event-type"
	HeaderCorrelationID = "correlation-id"
)

type CommandProducer struct {
	logger *slog.Logger
	writer KafkaWriter // Interface for testability
	topic  string
}

// NewCommandProducer ensures the command topic exists. Writes are synchronous so the
// gateway only acknowledges a command once the broker has it.
func NewCommandProducer(ctx context.Context, logger *slog.Logger, cfg *config.KafkaConfig) (*CommandProducer, error) {
	if cfg.CommandTopic == "" {
		return nil, fmt.Errorf("kafka command topic is not configured")
	}

	conn, err := kafka.Dial("tcp", cfg.Brokers)
	if err != nil {
		return nil, fmt.Errorf("failed to dial kafka for command producer: %w", err)
	}
	defer conn.Close()

	err = ensureTopic(ctx, conn, topicConfigFor(cfg.CommandTopic, cfg), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure command topic %s exists: %w", cfg.CommandTopic, err)
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers),
		Topic:        cfg.CommandTopic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: cfg.MaxWait,
	}

	return &CommandProducer{
		logger: logger,
		writer: writer,
		topic:  cfg.CommandTopic,
	}, nil
}

// PublishCommand keys the message by idempotency key so retries of one request land on
// the same partition and are applied in order.
func (p *CommandProducer) PublishCommand(ctx context.Context, command *ledger.Command) error {
	key := command.IdempotencyKey()
	if key == "" {
		return fmt.Errorf("command %s carries no idempotency key", command.CommandID)
	}

	value, err := json.Marshal(command)
	if err != nil {
		return fmt.Errorf("failed to marshal ledger command: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: value,
		Headers: []kafka.Header{
			{Key: HeaderCommandType, Value: []byte(command.Type)},
			{Key: HeaderCorrelationID, Value: []byte(command.CorrelationID)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("Failed to publish ledger command",
			"topic", p.topic,
			"key", key,
			"error", err,
		)
		return fmt.Errorf("failed to publish command to %s: %w", p.topic, err)
	}

	p.logger.Debug("Published ledger command",
		"topic", p.topic,
		"key", key,
		"command_id", command.CommandID.String(),
	)
	return nil
}

func (p *CommandProducer) Close() error {
	p.logger.Info("Closing command producer", "topic", p.topic)
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("failed to close command writer for topic %s: %w", p.topic, err)
	}
	return nil
}
