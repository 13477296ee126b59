package components

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/tamper-evident-ledger/internal/domain/outbox"
	"github.com/tamper-evident-ledger/internal/domain/shared"
)

type OutboxManagerImpl struct {
	outboxRepo outbox.Repository
	logger     *slog.Logger
}

func NewOutboxManager(outboxRepo outbox.Repository, logger *slog.Logger) outbox.Enqueuer {
	return &OutboxManagerImpl{
		outboxRepo: outboxRepo,
		logger:     logger,
	}
}

// Enqueue writes a pending outbox row in the caller's transaction. The poller publishes it
// only after that transaction commits.
func (m *OutboxManagerImpl) Enqueue(
	ctx context.Context,
	tx pgx.Tx,
	eventType shared.EventType,
	aggregateID string,
	correlationID string,
	payload interface{},
) (*outbox.Message, error) {
	logger := m.logger
	if correlationID != "" {
		logger = m.logger.With("correlation_id", correlationID)
	}

	message, err := outbox.NewMessage(eventType, aggregateID, correlationID, payload)
	if err != nil {
		logger.Error("Failed to create new outbox message (marshal payload)",
			"event_type", eventType,
			"aggregate_id", aggregateID,
			"error", err,
		)
		return nil, err
	}

	if err := m.outboxRepo.WithTx(tx).Create(ctx, message); err != nil {
		logger.Error("Failed to create outbox message",
			"event_type", eventType,
			"aggregate_id", aggregateID,
			"error", err,
		)
		return nil, fmt.Errorf("failed to create outbox message for %s %s: %w", eventType, aggregateID, err)
	}

	logger.Debug("Outbox message created",
		"event_type", eventType,
		"aggregate_id", aggregateID,
		"outbox_id", message.ID,
	)
	return message, nil
}
