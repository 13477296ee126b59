package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/tamper-evident-ledger/internal/domain/audit"
	"github.com/tamper-evident-ledger/internal/domain/ledger"
	"github.com/tamper-evident-ledger/internal/platform/pagination"
)

// LedgerService posts, reverses and reads journal entries.
type LedgerService interface {
	PostEntry(ctx context.Context, request *ledger.PostingRequest) (*ledger.PostingResult, error)
	ReverseEntry(ctx context.Context, entryID uuid.UUID, request *ledger.ReverseRequest) (*ledger.PostingResult, error)
	GetEntry(ctx context.Context, entryID uuid.UUID) (*ledger.Entry, error)
	GetStatement(ctx context.Context, accountID string, params pagination.Params) (*ledger.StatementPage, error)
}

// CommandProcessor executes asynchronous ledger commands consumed from Kafka.
type CommandProcessor interface {
	ProcessCommand(ctx context.Context, command *ledger.Command) error
}

// PostingValidator resolves idempotent replays inside the posting transaction
type PostingValidator interface {
	// ResolveReplay returns the entry previously stored under key, or nil when the key is
	// unused. A stored entry whose request fingerprint differs is IDEMPOTENCY_KEY_REUSED.
	ResolveReplay(ctx context.Context, tx pgx.Tx, key, fingerprint string) (*ledger.Entry, error)
}

// AuditRecorder appends to the audit chain inside the posting transaction
type AuditRecorder interface {
	RecordTx(ctx context.Context, tx pgx.Tx, params audit.RecordParams) (*audit.Event, error)
	// LockKey is the advisory lock every chain append serializes on
	LockKey() int64
}
