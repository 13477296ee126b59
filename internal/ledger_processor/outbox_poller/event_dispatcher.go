package outbox_poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tamper-evident-ledger/internal/domain/audit"
	"github.com/tamper-evident-ledger/internal/domain/ledger"
	"github.com/tamper-evident-ledger/internal/domain/outbox"
	"github.com/tamper-evident-ledger/internal/domain/shared"
	"github.com/tamper-evident-ledger/internal/platform/messaging/producers"
	"github.com/tamper-evident-ledger/internal/platform/metrics"
)

// EventDispatcher delivers one outbox message to its consumers
type EventDispatcher interface {
	Dispatch(ctx context.Context, message *outbox.Message) error
}

// EventDispatcherImpl publishes the envelope to Kafka and then feeds the Mongo read
// models. Both steps are idempotent per event id, so a redelivered message is harmless.
type EventDispatcherImpl struct {
	producer         producers.EventPublisher
	ledgerProjection ledger.ProjectionRepository
	auditProjection  audit.ProjectionRepository
	metrics          *metrics.Metrics
	logger           *slog.Logger
}

func NewEventDispatcher(
	producer producers.EventPublisher,
	ledgerProjection ledger.ProjectionRepository,
	auditProjection audit.ProjectionRepository,
	m *metrics.Metrics,
	logger *slog.Logger,
) EventDispatcher {
	return &EventDispatcherImpl{
		producer:         producer,
		ledgerProjection: ledgerProjection,
		auditProjection:  auditProjection,
		metrics:          m,
		logger:           logger,
	}
}

func (d *EventDispatcherImpl) Dispatch(ctx context.Context, message *outbox.Message) error {
	logger := d.logger.With("event_id", message.EventID.String(), "event_type", message.EventType)
	if message.CorrelationID != "" {
		logger = logger.With("correlation_id", message.CorrelationID)
	}

	if err := d.producer.PublishEvent(ctx, message.AggregateID, message.Envelope()); err != nil {
		d.metrics.IncOutboxPublish(string(message.EventType), false)
		return fmt.Errorf("failed to publish outbox message %d: %w", message.ID, err)
	}

	if err := d.project(ctx, message); err != nil {
		d.metrics.IncOutboxPublish(string(message.EventType), false)
		logger.Error("Failed to project event into read model", "outbox_id", message.ID, "error", err)
		return fmt.Errorf("failed to project outbox message %d: %w", message.ID, err)
	}

	d.metrics.IncOutboxPublish(string(message.EventType), true)
	logger.Debug("Dispatched outbox message", "outbox_id", message.ID)
	return nil
}

func (d *EventDispatcherImpl) project(ctx context.Context, message *outbox.Message) error {
	switch message.EventType {
	case shared.EventLedgerPosted:
		var payload outbox.LedgerPostedPayload
		if err := message.DecodePayload(&payload); err != nil {
			return err
		}
		if payload.Entry == nil {
			return errors.New("ledger posted payload carries no entry")
		}
		return d.ledgerProjection.Upsert(ctx, payload.Entry)

	case shared.EventLedgerReversed:
		var payload outbox.LedgerReversedPayload
		if err := message.DecodePayload(&payload); err != nil {
			return err
		}
		if payload.Reversal == nil || payload.Reversal.ReversedEntryID == nil {
			return errors.New("ledger reversed payload carries no reversal")
		}
		if err := d.ledgerProjection.Upsert(ctx, payload.Reversal); err != nil {
			return err
		}
		// The original's Posted event is always dispatched first, so a missing
		// original here means its projection failed and will be retried.
		return d.ledgerProjection.MarkReversed(ctx, *payload.Reversal.ReversedEntryID, payload.Reversal.ID)

	case shared.EventAuditRecorded:
		var payload outbox.AuditRecordedPayload
		if err := message.DecodePayload(&payload); err != nil {
			return err
		}
		if payload.Event == nil {
			return errors.New("audit recorded payload carries no event")
		}
		return d.auditProjection.Upsert(ctx, payload.Event)
	}

	d.logger.Warn("No read model for event type", "event_type", message.EventType)
	return nil
}
