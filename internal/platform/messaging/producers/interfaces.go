package producers

import (
	"context"

	"github.com/segmentio/kafka-go"

	"github.com/tamper-evident-ledger/internal/domain/ledger"
	"github.com/tamper-evident-ledger/internal/domain/outbox"
)

// CommandPublisher hands asynchronous ledger commands to the ledger processor
type CommandPublisher interface {
	PublishCommand(ctx context.Context, command *ledger.Command) error
	Close() error
}

// EventPublisher publishes outbox envelopes to the domain event topic
type EventPublisher interface {
	PublishEvent(ctx context.Context, aggregateID string, envelope outbox.Envelope) error
	Close() error
}

// DeadLetterPublisher handles publishing messages to a Dead Letter Queue
type DeadLetterPublisher interface {
	PublishToDLQ(ctx context.Context, key string, originalMessageValue []byte, reason string) error
	Close() error
}

// KafkaWriter wraps kafka.Writer methods for testing
type KafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}
