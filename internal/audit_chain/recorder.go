package audit_chain

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tamper-evident-ledger/internal/domain/apperror"
	"github.com/tamper-evident-ledger/internal/domain/audit"
	"github.com/tamper-evident-ledger/internal/domain/outbox"
	"github.com/tamper-evident-ledger/internal/domain/shared"
	"github.com/tamper-evident-ledger/internal/platform/hashing"
	"github.com/tamper-evident-ledger/internal/platform/metrics"
	"github.com/tamper-evident-ledger/internal/platform/persistence"
	"github.com/tamper-evident-ledger/internal/platform/redaction"
)

// DefaultLockKey is the advisory lock serializing chain appends when none is configured
const DefaultLockKey int64 = 7_294_118_001

// Recorder appends events to the audit hash chain. All appends, from every process,
// serialize on one advisory lock so the tail read and the insert are atomic with respect
// to other writers. Callers appending inside a SERIALIZABLE transaction must already hold
// the lock at session level before BEGIN (see PostgresDB.ExecuteLockedSerializableTx);
// the transaction-scoped lock taken here is then granted at once.
type Recorder struct {
	db        persistence.TxExecutor
	auditRepo audit.Repository
	enqueuer  outbox.Enqueuer
	metrics   *metrics.Metrics
	lockKey   int64
	logger    *slog.Logger
	now       func() time.Time
}

// NewRecorder creates a recorder. enqueuer may be nil, in which case no
// Audit.Recorded event is written.
func NewRecorder(
	logger *slog.Logger,
	db persistence.TxExecutor,
	auditRepo audit.Repository,
	enqueuer outbox.Enqueuer,
	m *metrics.Metrics,
	lockKey int64,
) *Recorder {
	if lockKey == 0 {
		lockKey = DefaultLockKey
	}
	return &Recorder{
		db:        db,
		auditRepo: auditRepo,
		enqueuer:  enqueuer,
		metrics:   m,
		lockKey:   lockKey,
		logger:    logger,
		now:       time.Now,
	}
}

// LockKey is the advisory lock key chain appends serialize on
func (r *Recorder) LockKey() int64 {
	return r.lockKey
}

// Record appends one event in its own read-committed transaction. The tail is read by a
// statement issued after the lock is granted, so it always sees the latest committed event.
func (r *Recorder) Record(ctx context.Context, params audit.RecordParams) (*audit.Event, error) {
	var recorded *audit.Event
	err := r.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		event, err := r.RecordTx(ctx, tx, params)
		if err != nil {
			return err
		}
		recorded = event
		return nil
	})
	if err != nil {
		return nil, apperror.FromStorage(err)
	}
	return recorded, nil
}

// RecordTx appends one event inside the caller's transaction. The lock is held until
// that transaction ends, and a rollback removes the event with everything else.
// A sequence collision means the lock discipline was broken and surfaces as an
// internal error, never as a retry.
func (r *Recorder) RecordTx(ctx context.Context, tx pgx.Tx, params audit.RecordParams) (*audit.Event, error) {
	if params.ActorType == "" || params.Action == "" || params.ResourceType == "" {
		return nil, apperror.Validation("audit event requires actor type, action and resource type")
	}

	logger := r.logger
	if params.CorrelationID != "" {
		logger = r.logger.With("correlation_id", params.CorrelationID)
	}

	if err := persistence.AcquireAdvisoryXactLock(ctx, tx, r.lockKey); err != nil {
		return nil, err
	}

	repo := r.auditRepo.WithTx(tx)
	tail, err := repo.GetTail(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read audit chain tail: %w", err)
	}

	payload, err := redactPayload(params.Payload)
	if err != nil {
		return nil, err
	}

	event := &audit.Event{
		SequenceNumber: 1,
		ID:             uuid.New(),
		ActorType:      params.ActorType,
		ActorID:        params.ActorID,
		Action:         params.Action,
		ResourceType:   params.ResourceType,
		ResourceID:     params.ResourceID,
		Payload:        payload,
		CorrelationID:  params.CorrelationID,
		RequestID:      params.RequestID,
		CreatedAt:      audit.NormalizeTime(r.now()),
	}
	if tail != nil {
		prev := tail.Hash
		event.PrevHash = &prev
		event.SequenceNumber = tail.SequenceNumber + 1
	}

	hash, err := audit.ComputeHash(event.PrevHash, event)
	if err != nil {
		return nil, err
	}
	event.Hash = hash

	if err := repo.Insert(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to append audit event: %w", err)
	}

	if r.enqueuer != nil {
		_, err := r.enqueuer.Enqueue(ctx, tx, shared.EventAuditRecorded,
			strconv.FormatInt(event.SequenceNumber, 10), event.CorrelationID,
			outbox.AuditRecordedPayload{Event: event})
		if err != nil {
			return nil, err
		}
	}

	r.metrics.IncAuditAppend()
	logger.Debug("Appended audit event",
		"sequence_number", event.SequenceNumber,
		"action", event.Action,
		"resource_type", event.ResourceType,
		"resource_id", event.ResourceID,
	)
	return event, nil
}

// redactPayload normalizes the payload to generic JSON, strips PII keys and re-encodes it
// canonically. A nil payload becomes an empty object.
func redactPayload(payload interface{}) (json.RawMessage, error) {
	normalized, err := hashing.Normalize(payload)
	if err != nil {
		return nil, apperror.Wrap(apperror.CodeValidation, err, "audit payload is not JSON serializable")
	}
	if normalized == nil {
		normalized = map[string]interface{}{}
	}
	encoded, err := hashing.CanonicalJSON(redaction.Redact(normalized))
	if err != nil {
		return nil, fmt.Errorf("failed to encode audit payload: %w", err)
	}
	return encoded, nil
}
