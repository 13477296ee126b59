package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/tamper-evident-ledger/internal/config"
	"github.com/tamper-evident-ledger/internal/domain/apperror"
	"github.com/tamper-evident-ledger/internal/domain/audit"
	"github.com/tamper-evident-ledger/internal/domain/ledger"
	"github.com/tamper-evident-ledger/internal/domain/outbox"
	"github.com/tamper-evident-ledger/internal/domain/shared"
	"github.com/tamper-evident-ledger/internal/platform/metrics"
	"github.com/tamper-evident-ledger/internal/platform/pagination"
	"github.com/tamper-evident-ledger/internal/platform/persistence"
)

const (
	operationPost    = "post"
	operationReverse = "reverse"

	defaultActorType = "SYSTEM"
)

type LedgerServiceImpl struct {
	db             persistence.TxExecutor
	ledgerRepo     ledger.Repository
	auditRepo      audit.Repository
	validator      PostingValidator
	recorder       AuditRecorder
	outbox         outbox.Enqueuer
	metrics        *metrics.Metrics
	limits         pagination.Limits
	reversalPrefix string
	maxTxAttempts  int
	logger         *slog.Logger
}

func NewLedgerService(
	db persistence.TxExecutor,
	ledgerRepo ledger.Repository,
	auditRepo audit.Repository,
	validator PostingValidator,
	recorder AuditRecorder,
	enqueuer outbox.Enqueuer,
	m *metrics.Metrics,
	cfg *config.LedgerConfig,
	logger *slog.Logger,
) *LedgerServiceImpl {
	attempts := cfg.TxRetryAttempts
	if attempts <= 0 {
		attempts = 1
	}
	return &LedgerServiceImpl{
		db:             db,
		ledgerRepo:     ledgerRepo,
		auditRepo:      auditRepo,
		validator:      validator,
		recorder:       recorder,
		outbox:         enqueuer,
		metrics:        m,
		limits:         pagination.Limits{Default: cfg.StatementDefaultPageSize, Max: cfg.StatementMaxPageSize},
		reversalPrefix: cfg.ReversalReferencePrefix,
		maxTxAttempts:  attempts,
		logger:         logger,
	}
}

// PostEntry validates the request before opening a transaction, then stores the entry,
// its audit event and its outbox event atomically. A request whose idempotency key was
// already used returns the stored entry unchanged.
func (s *LedgerServiceImpl) PostEntry(ctx context.Context, request *ledger.PostingRequest) (*ledger.PostingResult, error) {
	start := time.Now()

	amounts, err := ledger.ValidatePostingRequest(request)
	if err != nil {
		s.observe(operationPost, nil, err, start)
		return nil, err
	}
	fingerprint, err := ledger.PostingFingerprint(request, amounts)
	if err != nil {
		s.observe(operationPost, nil, err, start)
		return nil, apperror.Wrap(apperror.CodeValidation, err, "posting request cannot be fingerprinted")
	}

	logger := s.requestLogger(request.CorrelationID)

	var result *ledger.PostingResult
	err = s.runSerializable(ctx, logger, func(tx pgx.Tx) error {
		replay, err := s.validator.ResolveReplay(ctx, tx, request.IdempotencyKey, fingerprint)
		if err != nil {
			return err
		}
		if replay != nil {
			result, err = s.replayResult(ctx, tx, replay)
			return err
		}

		result, err = s.insertEntry(ctx, tx, request, amounts, fingerprint, nil)
		return err
	})
	s.observe(operationPost, result, err, start)
	if err != nil {
		logger.Error("Failed to post journal entry", "idempotency_key", request.IdempotencyKey, "error", err)
		return nil, err
	}

	logger.Info("Journal entry posted",
		"entry_id", result.Entry.ID.String(),
		"entry_number", result.Entry.EntryNumber,
		"replayed", result.Replayed,
	)
	return result, nil
}

// ReverseEntry posts the mirror image of an entry. Loading the original, checking for an
// existing reversal and posting the reversal happen in one serializable transaction, and
// the unique reversed_entry_id constraint rejects a concurrent second reversal.
func (s *LedgerServiceImpl) ReverseEntry(ctx context.Context, entryID uuid.UUID, request *ledger.ReverseRequest) (*ledger.PostingResult, error) {
	start := time.Now()

	if err := ledger.ValidateReverseRequest(request); err != nil {
		s.observe(operationReverse, nil, err, start)
		return nil, err
	}
	fingerprint, err := ledger.ReversalFingerprint(entryID.String(), request)
	if err != nil {
		s.observe(operationReverse, nil, err, start)
		return nil, apperror.Wrap(apperror.CodeValidation, err, "reverse request cannot be fingerprinted")
	}

	logger := s.requestLogger(request.CorrelationID).With("original_entry_id", entryID.String())

	var result *ledger.PostingResult
	err = s.runSerializable(ctx, logger, func(tx pgx.Tx) error {
		replay, err := s.validator.ResolveReplay(ctx, tx, request.IdempotencyKey, fingerprint)
		if err != nil {
			return err
		}
		if replay != nil {
			result, err = s.replayResult(ctx, tx, replay)
			return err
		}

		repo := s.ledgerRepo.WithTx(tx)
		original, err := repo.GetByID(ctx, entryID)
		if err != nil {
			if errors.Is(err, ledger.ErrEntryNotFound{}) {
				return apperror.Newf(apperror.CodeNotFound, "Journal entry %s not found", entryID)
			}
			return err
		}

		existing, err := repo.FindReversalOf(ctx, entryID)
		switch {
		case err == nil:
			return apperror.Newf(apperror.CodeConflict, "Journal entry %s has already been reversed", entryID).
				WithDetail("reversal_entry_id", existing.ID.String())
		case !errors.Is(err, ledger.ErrEntryNotFound{}):
			return err
		}

		posting := ledger.ReversalRequest(original, request, s.reversalPrefix)
		amounts, err := ledger.ValidatePostingRequest(posting)
		if err != nil {
			return err
		}

		result, err = s.insertEntry(ctx, tx, posting, amounts, fingerprint, &original.ID)
		return err
	})
	s.observe(operationReverse, result, err, start)
	if err != nil {
		logger.Error("Failed to reverse journal entry", "idempotency_key", request.IdempotencyKey, "error", err)
		return nil, err
	}

	logger.Info("Journal entry reversed",
		"reversal_entry_id", result.Entry.ID.String(),
		"replayed", result.Replayed,
	)
	return result, nil
}

// insertEntry hashes and stores a validated posting, then appends its audit event and
// enqueues its domain event. reversedEntryID is nil for ordinary postings.
func (s *LedgerServiceImpl) insertEntry(
	ctx context.Context,
	tx pgx.Tx,
	request *ledger.PostingRequest,
	amounts []decimal.Decimal,
	fingerprint string,
	reversedEntryID *uuid.UUID,
) (*ledger.PostingResult, error) {
	entry := ledger.BuildEntry(request, amounts, reversedEntryID)
	entry.RequestHash = fingerprint

	hash, err := ledger.ComputeEntryHash(entry)
	if err != nil {
		return nil, fmt.Errorf("failed to compute entry hash: %w", err)
	}
	entry.EntryHash = hash

	if err := s.ledgerRepo.WithTx(tx).CreateEntry(ctx, entry); err != nil {
		return nil, err
	}

	action := shared.ActionLedgerPost
	payload := map[string]interface{}{
		"entryId":        entry.ID.String(),
		"entryHash":      entry.EntryHash,
		"idempotencyKey": entry.IdempotencyKey,
	}
	if reversedEntryID != nil {
		action = shared.ActionLedgerReverse
		payload["originalEntryId"] = reversedEntryID.String()
	}

	actorType := request.Actor.Type
	if actorType == "" {
		actorType = defaultActorType
	}
	event, err := s.recorder.RecordTx(ctx, tx, audit.RecordParams{
		ActorType:     actorType,
		ActorID:       request.Actor.ID,
		Action:        action,
		ResourceType:  shared.ResourceEntry,
		ResourceID:    entry.ID.String(),
		Payload:       payload,
		CorrelationID: entry.CorrelationID,
		RequestID:     request.RequestID,
	})
	if err != nil {
		return nil, err
	}

	receipt := ledger.Receipt{EntryID: entry.ID, EntryHash: entry.EntryHash, AuditEventHash: event.Hash}
	if reversedEntryID != nil {
		_, err = s.outbox.Enqueue(ctx, tx, shared.EventLedgerReversed, entry.ID.String(), entry.CorrelationID,
			outbox.LedgerReversedPayload{OriginalEntryID: reversedEntryID.String(), Reversal: entry, Receipt: receipt})
	} else {
		_, err = s.outbox.Enqueue(ctx, tx, shared.EventLedgerPosted, entry.ID.String(), entry.CorrelationID,
			outbox.LedgerPostedPayload{Entry: entry, Receipt: receipt})
	}
	if err != nil {
		return nil, err
	}

	return &ledger.PostingResult{Entry: entry, Receipt: receipt}, nil
}

// replayResult rebuilds the receipt of a stored entry from the audit event written with it.
func (s *LedgerServiceImpl) replayResult(ctx context.Context, tx pgx.Tx, entry *ledger.Entry) (*ledger.PostingResult, error) {
	event, err := s.auditRepo.WithTx(tx).GetLatestForResource(ctx, shared.ResourceEntry, entry.ID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to load audit event of entry %s: %w", entry.ID, err)
	}
	receipt := ledger.Receipt{EntryID: entry.ID, EntryHash: entry.EntryHash}
	if event != nil {
		receipt.AuditEventHash = event.Hash
	}
	return &ledger.PostingResult{Entry: entry, Receipt: receipt, Replayed: true}, nil
}

func (s *LedgerServiceImpl) GetEntry(ctx context.Context, entryID uuid.UUID) (*ledger.Entry, error) {
	entry, err := s.ledgerRepo.GetByID(ctx, entryID)
	if err != nil {
		if errors.Is(err, ledger.ErrEntryNotFound{}) {
			return nil, apperror.Newf(apperror.CodeNotFound, "Journal entry %s not found", entryID)
		}
		return nil, apperror.FromStorage(err)
	}
	return entry, nil
}

// GetStatement returns one page of an account's lines, newest first. One extra row is
// fetched to decide HasMore; the cursor encodes the position of the last returned line.
func (s *LedgerServiceImpl) GetStatement(ctx context.Context, accountID string, params pagination.Params) (*ledger.StatementPage, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return nil, apperror.Validation("account id is required")
	}

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, apperror.Wrap(apperror.CodeValidation, err, "invalid cursor")
	}

	limit := s.limits.Normalize(params.Limit)
	query := ledger.StatementQuery{AccountID: accountID, Limit: s.limits.WithBuffer(params.Limit)}
	if cursor != nil {
		query.AfterTime = &cursor.CreatedAt
		query.AfterID = cursor.ID
	}

	lines, err := s.ledgerRepo.GetStatement(ctx, query)
	if err != nil {
		return nil, apperror.FromStorage(err)
	}

	page := &ledger.StatementPage{AccountID: accountID, Lines: lines}
	if len(lines) > limit {
		page.Lines = lines[:limit]
		page.HasMore = true
		last := page.Lines[limit-1]
		page.NextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.LineID})
	}
	if page.Lines == nil {
		page.Lines = []ledger.StatementLine{}
	}
	return page, nil
}

// ProcessCommand runs an asynchronous posting or reversal command. The command's
// correlation id is used when the wrapped request carries none.
func (s *LedgerServiceImpl) ProcessCommand(ctx context.Context, command *ledger.Command) error {
	switch command.Type {
	case ledger.CommandPostEntry:
		if command.Posting == nil {
			return apperror.Validation("post command carries no posting")
		}
		if command.Posting.CorrelationID == "" {
			command.Posting.CorrelationID = command.CorrelationID
		}
		_, err := s.PostEntry(ctx, command.Posting)
		return err
	case ledger.CommandReverseEntry:
		if command.Reversal == nil || command.EntryID == uuid.Nil {
			return apperror.Validation("reverse command requires an entry id and a reversal")
		}
		if command.Reversal.CorrelationID == "" {
			command.Reversal.CorrelationID = command.CorrelationID
		}
		_, err := s.ReverseEntry(ctx, command.EntryID, command.Reversal)
		return err
	default:
		return apperror.Newf(apperror.CodeValidation, "unknown command type %q", command.Type)
	}
}

// runSerializable runs fn holding the audit chain lock from before the transaction starts,
// so concurrent postings queue on the lock instead of racing for the chain tail. It retries
// while fn fails with a retryable storage error; every attempt runs in a fresh transaction
// and observes whatever the winning writer committed.
func (s *LedgerServiceImpl) runSerializable(ctx context.Context, logger *slog.Logger, fn func(tx pgx.Tx) error) error {
	var err error
	for attempt := 1; attempt <= s.maxTxAttempts; attempt++ {
		err = apperror.FromStorage(s.db.ExecuteLockedSerializableTx(ctx, s.recorder.LockKey(), fn))
		if err == nil || !apperror.IsRetryable(err) || ctx.Err() != nil {
			return err
		}
		logger.Warn("Retrying ledger transaction", "attempt", attempt, "max_attempts", s.maxTxAttempts, "error", err)
	}
	return err
}

func (s *LedgerServiceImpl) observe(operation string, result *ledger.PostingResult, err error, start time.Time) {
	outcome := metrics.OutcomeSuccess
	switch {
	case err != nil:
		outcome = metrics.OutcomeFailure
	case result != nil && result.Replayed:
		outcome = metrics.OutcomeReplay
	}
	s.metrics.ObserveLedgerOperation(operation, outcome, time.Since(start))
}

func (s *LedgerServiceImpl) requestLogger(correlationID string) *slog.Logger {
	if correlationID == "" {
		return s.logger
	}
	return s.logger.With("correlation_id", correlationID)
}
