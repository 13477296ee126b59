package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tamper-evident-ledger/internal/domain/apperror"
	"github.com/tamper-evident-ledger/internal/domain/ledger"
	ledgersvc "github.com/tamper-evident-ledger/internal/ledger_processor/service"
	"github.com/tamper-evident-ledger/internal/platform/messaging/producers"
	"github.com/tamper-evident-ledger/internal/platform/pagination"
)

const maxBusinessDayPageSize = 100

// LedgerServiceImpl implements LedgerService on top of the ledger engine. Synchronous
// calls go straight to the engine; submissions are published to the command topic.
type LedgerServiceImpl struct {
	engine     ledgersvc.LedgerService
	ledgerRepo ledger.Repository
	projection ledger.ProjectionRepository
	producer   producers.CommandPublisher
	logger     *slog.Logger
	now        func() time.Time
}

// NewLedgerService creates a new ledger service. producer may be nil when asynchronous
// submission is disabled.
func NewLedgerService(
	logger *slog.Logger,
	engine ledgersvc.LedgerService,
	ledgerRepo ledger.Repository,
	projection ledger.ProjectionRepository,
	producer producers.CommandPublisher,
) *LedgerServiceImpl {
	return &LedgerServiceImpl{
		engine:     engine,
		ledgerRepo: ledgerRepo,
		projection: projection,
		producer:   producer,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *LedgerServiceImpl) PostEntry(ctx context.Context, request *ledger.PostingRequest) (*ledger.PostingResult, error) {
	return s.engine.PostEntry(ctx, request)
}

func (s *LedgerServiceImpl) SubmitPosting(ctx context.Context, request *ledger.PostingRequest) (*ledger.Command, *ledger.PostingResult, error) {
	if _, err := ledger.ValidatePostingRequest(request); err != nil {
		return nil, nil, err
	}

	used, err := s.keyUsed(ctx, request.IdempotencyKey)
	if err != nil {
		return nil, nil, err
	}
	if used {
		result, err := s.engine.PostEntry(ctx, request)
		return nil, result, err
	}

	command := &ledger.Command{
		CommandID:     uuid.New(),
		Type:          ledger.CommandPostEntry,
		Posting:       request,
		CorrelationID: request.CorrelationID,
		Timestamp:     s.now().UTC(),
	}
	if err := s.publish(ctx, command); err != nil {
		return nil, nil, err
	}
	return command, nil, nil
}

func (s *LedgerServiceImpl) ReverseEntry(ctx context.Context, entryID uuid.UUID, request *ledger.ReverseRequest) (*ledger.PostingResult, error) {
	return s.engine.ReverseEntry(ctx, entryID, request)
}

// SubmitReversal checks that the original exists before publishing so that an unknown id
// is answered with NOT_FOUND rather than a dead-lettered command.
func (s *LedgerServiceImpl) SubmitReversal(ctx context.Context, entryID uuid.UUID, request *ledger.ReverseRequest) (*ledger.Command, *ledger.PostingResult, error) {
	if err := ledger.ValidateReverseRequest(request); err != nil {
		return nil, nil, err
	}

	used, err := s.keyUsed(ctx, request.IdempotencyKey)
	if err != nil {
		return nil, nil, err
	}
	if used {
		result, err := s.engine.ReverseEntry(ctx, entryID, request)
		return nil, result, err
	}

	if _, err := s.engine.GetEntry(ctx, entryID); err != nil {
		return nil, nil, err
	}

	command := &ledger.Command{
		CommandID:     uuid.New(),
		Type:          ledger.CommandReverseEntry,
		EntryID:       entryID,
		Reversal:      request,
		CorrelationID: request.CorrelationID,
		Timestamp:     s.now().UTC(),
	}
	if err := s.publish(ctx, command); err != nil {
		return nil, nil, err
	}
	return command, nil, nil
}

func (s *LedgerServiceImpl) GetEntry(ctx context.Context, entryID uuid.UUID) (*ledger.Entry, error) {
	return s.engine.GetEntry(ctx, entryID)
}

func (s *LedgerServiceImpl) GetStatement(ctx context.Context, accountID string, params pagination.Params) (*ledger.StatementPage, error) {
	return s.engine.GetStatement(ctx, accountID, params)
}

func (s *LedgerServiceImpl) ListBusinessDay(ctx context.Context, businessDay string, page, perPage int) ([]*ledger.Entry, int64, error) {
	if err := ledger.ValidateBusinessDay(businessDay); err != nil {
		return nil, 0, err
	}
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > maxBusinessDayPageSize {
		perPage = maxBusinessDayPageSize
	}
	offset := (page - 1) * perPage

	entries, err := s.projection.ListByBusinessDay(ctx, businessDay, perPage, offset)
	if err != nil {
		s.logger.Error("Failed to list business day entries", "business_day", businessDay, "error", err)
		return nil, 0, err
	}

	total, err := s.projection.CountByBusinessDay(ctx, businessDay)
	if err != nil {
		s.logger.Error("Failed to count business day entries", "business_day", businessDay, "error", err)
		return nil, 0, err
	}

	return entries, total, nil
}

func (s *LedgerServiceImpl) keyUsed(ctx context.Context, key string) (bool, error) {
	_, err := s.ledgerRepo.GetByIdempotencyKey(ctx, key)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ledger.ErrEntryNotFound{}) {
		return false, nil
	}
	s.logger.Error("Failed to check for existing entry with idempotency key",
		"idempotency_key", key,
		"error", err,
	)
	return false, apperror.FromStorage(err)
}

func (s *LedgerServiceImpl) publish(ctx context.Context, command *ledger.Command) error {
	if s.producer == nil {
		return apperror.New(apperror.CodeInternal, "asynchronous submission is not configured")
	}
	if err := s.producer.PublishCommand(ctx, command); err != nil {
		s.logger.Error("Failed to publish ledger command",
			"command_id", command.CommandID.String(),
			"command_type", string(command.Type),
			"idempotency_key", command.IdempotencyKey(),
			"error", err,
		)
		return apperror.Wrap(apperror.CodeTransientStorage, err, "failed to submit ledger command")
	}

	s.logger.Info("Ledger command published",
		"command_id", command.CommandID.String(),
		"command_type", string(command.Type),
		"idempotency_key", command.IdempotencyKey(),
		"correlation_id", command.CorrelationID,
	)
	return nil
}
