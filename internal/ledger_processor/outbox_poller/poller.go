package outbox_poller

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/tamper-evident-ledger/internal/config"
	"github.com/tamper-evident-ledger/internal/domain/outbox"
	"github.com/tamper-evident-ledger/internal/domain/shared"
	"github.com/tamper-evident-ledger/internal/platform/persistence"
)

// Poller processes pending outbox messages
type Poller struct {
	db               persistence.TxExecutor
	outboxRepo       outbox.Repository
	dispatcher       EventDispatcher
	logger           *slog.Logger
	pollInterval     time.Duration
	batchSize        int
	maxRetryAttempts int
}

func NewPoller(
	cfg *config.OutboxConfig,
	db persistence.TxExecutor,
	outboxRepo outbox.Repository,
	dispatcher EventDispatcher,
	logger *slog.Logger,
) *Poller {
	return &Poller{
		db:               db,
		outboxRepo:       outboxRepo,
		dispatcher:       dispatcher,
		logger:           logger,
		pollInterval:     cfg.PollingInterval,
		batchSize:        cfg.BatchSize,
		maxRetryAttempts: cfg.MaxRetryAttempts,
	}
}

// Start begins polling until context is canceled
func (p *Poller) Start(ctx context.Context) {
	p.logger.Info("Starting Outbox Poller",
		"poll_interval", p.pollInterval.String(),
		"batch_size", p.batchSize,
		"max_retry_attempts", p.maxRetryAttempts,
	)
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Outbox Poller stopping due to context cancellation.")
			return
		case <-ticker.C:
			if err := p.processPendingMessages(ctx); err != nil {
				p.logger.Error("Error during batch processing of pending outbox messages", "error", err)
			}
		}
	}
}

// processPendingMessages holds the row locks of one batch for the whole dispatch, so a
// second poller never publishes the same message concurrently.
func (p *Poller) processPendingMessages(ctx context.Context) error {
	return p.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		repo := p.outboxRepo.WithTx(tx)

		messages, err := repo.GetPending(ctx, p.batchSize)
		if err != nil {
			return fmt.Errorf("failed to get pending outbox messages: %w", err)
		}
		if len(messages) == 0 {
			return nil
		}

		p.logger.Debug("Fetched pending outbox messages", "count", len(messages))

		for _, msg := range messages {
			if err := p.processMessage(ctx, repo, msg); err != nil {
				return err
			}
		}
		return nil
	})
}

// processMessage only returns errors from the outbox table itself; dispatch failures are
// recorded on the row.
func (p *Poller) processMessage(ctx context.Context, repo outbox.Repository, msg *outbox.Message) error {
	logger := p.logger.With("outbox_id", msg.ID, "event_type", msg.EventType)
	if msg.CorrelationID != "" {
		logger = logger.With("correlation_id", msg.CorrelationID)
	}

	if err := p.dispatcher.Dispatch(ctx, msg); err != nil {
		logger.Error("Failed to dispatch outbox message", "current_attempts", msg.Attempts, "error", err)

		if errInc := repo.IncrementAttempts(ctx, msg.ID); errInc != nil {
			return fmt.Errorf("failed to increment attempts for outbox message %d: %w", msg.ID, errInc)
		}
		msg.IncrementAttempts()

		if msg.Attempts >= p.maxRetryAttempts {
			logger.Warn("Max retry attempts reached for outbox message, marking as FAILED_TO_PUBLISH",
				"attempts_made", msg.Attempts,
			)
			if errUpdate := repo.UpdateStatus(ctx, msg.ID, shared.OutboxStatusFailedToPublish); errUpdate != nil {
				return fmt.Errorf("failed to mark outbox message %d as FAILED_TO_PUBLISH: %w", msg.ID, errUpdate)
			}
			msg.MarkAsFailed()
		}
		return nil
	}

	if err := repo.UpdateStatus(ctx, msg.ID, shared.OutboxStatusProcessed); err != nil {
		return fmt.Errorf("outbox message %d dispatched, but failed to mark as PROCESSED: %w", msg.ID, err)
	}
	msg.MarkAsProcessed()
	logger.Info("Outbox message dispatched and marked as PROCESSED")
	return nil
}
