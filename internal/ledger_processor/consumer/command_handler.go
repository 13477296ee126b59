package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/tamper-evident-ledger/internal/domain/apperror"
	"github.com/tamper-evident-ledger/internal/domain/ledger"
	"github.com/tamper-evident-ledger/internal/ledger_processor/service"
	"github.com/tamper-evident-ledger/internal/platform/messaging/producers"
)

// CommandHandler applies ledger commands consumed from Kafka. Commands that can never
// succeed go to the DLQ and their offset is committed; transient failures are returned
// so the offset stays uncommitted and the command is redelivered.
type CommandHandler struct {
	processor service.CommandProcessor
	producer  producers.DeadLetterPublisher
	logger    *slog.Logger
}

func NewCommandHandler(
	logger *slog.Logger,
	processor service.CommandProcessor,
	producer producers.DeadLetterPublisher,
) *CommandHandler {
	return &CommandHandler{
		processor: processor,
		producer:  producer,
		logger:    logger,
	}
}

// HandleMessage processes Kafka messages
func (h *CommandHandler) HandleMessage(ctx context.Context, key []byte, value []byte) error {
	var command ledger.Command
	if err := json.Unmarshal(value, &command); err != nil {
		h.logger.Error("Failed to unmarshal ledger command from Kafka message", "error", err, "message_key", string(key))
		reason := fmt.Sprintf("unmarshal: %s", err.Error())
		if dlqErr := h.deadLetter(ctx, key, value, reason); dlqErr != nil {
			return fmt.Errorf("failed to unmarshal message value: %w", err)
		}
		return nil
	}

	logger := h.logger
	if command.CorrelationID != "" {
		logger = h.logger.With("correlation_id", command.CorrelationID)
	}

	logger.Info("Received ledger command",
		"command_id", command.CommandID.String(),
		"type", command.Type,
		"idempotency_key", command.IdempotencyKey(),
	)

	err := h.processor.ProcessCommand(ctx, &command)
	if err == nil {
		logger.Info("Successfully processed ledger command", "command_id", command.CommandID.String())
		return nil
	}

	if !isPermanent(err) {
		logger.Error("Failed to process ledger command, leaving for redelivery",
			"command_id", command.CommandID.String(),
			"error", err,
		)
		return fmt.Errorf("processing command %s failed: %w", command.CommandID.String(), err)
	}

	logger.Warn("Ledger command rejected", "command_id", command.CommandID.String(), "code", apperror.CodeOf(err), "error", err)
	if dlqErr := h.deadLetter(ctx, key, value, string(apperror.CodeOf(err))+": "+apperror.As(err).Message()); dlqErr != nil {
		return fmt.Errorf("command %s rejected and DLQ publish failed: %w", command.CommandID.String(), dlqErr)
	}
	return nil
}

func (h *CommandHandler) deadLetter(ctx context.Context, key, value []byte, reason string) error {
	if h.producer == nil {
		return fmt.Errorf("DLQ producer not configured")
	}
	if err := h.producer.PublishToDLQ(ctx, string(key), value, reason); err != nil {
		h.logger.Error("Failed to publish message to DLQ", "dlq_error", err, "message_key", string(key))
		return err
	}
	h.logger.Info("Published unprocessable message to DLQ", "message_key", string(key), "reason", reason)
	return nil
}

// isPermanent reports whether redelivering the command would fail the same way.
func isPermanent(err error) bool {
	switch apperror.CodeOf(err) {
	case apperror.CodeValidation,
		apperror.CodeConflict,
		apperror.CodeIdempotencyKeyReused,
		apperror.CodeNotFound:
		return true
	}
	return false
}
