package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// StatementQuery selects one page of an account statement. After is the keyset position
// of the last line of the previous page; nil starts from the newest line.
type StatementQuery struct {
	AccountID string
	Limit     int
	AfterTime *time.Time
	AfterID   uuid.UUID
}

// Repository persists journal entries and lines. Status is always derived from the
// existence of a referencing reversal.
type Repository interface {
	// CreateEntry inserts the entry and its lines and fills EntryNumber and CreatedAt.
	CreateEntry(ctx context.Context, entry *Entry) error
	GetByID(ctx context.Context, id uuid.UUID) (*Entry, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*Entry, error)
	// FindReversalOf returns the entry reversing id, or ErrEntryNotFound.
	FindReversalOf(ctx context.Context, id uuid.UUID) (*Entry, error)
	GetStatement(ctx context.Context, query StatementQuery) ([]StatementLine, error)
	WithTx(tx pgx.Tx) Repository
}

// ErrEntryNotFound indicates missing journal entry
type ErrEntryNotFound struct {
	ID             uuid.UUID
	IdempotencyKey string
}

func (e ErrEntryNotFound) Error() string {
	if e.IdempotencyKey != "" {
		return "journal entry not found for idempotency key: " + e.IdempotencyKey
	}
	return "journal entry not found: " + e.ID.String()
}

// Is matches any ErrEntryNotFound when the target carries no identifiers
func (e ErrEntryNotFound) Is(target error) bool {
	t, ok := target.(ErrEntryNotFound)
	if !ok {
		return false
	}
	if t.ID == uuid.Nil && t.IdempotencyKey == "" {
		return true
	}
	return e.ID == t.ID && e.IdempotencyKey == t.IdempotencyKey
}

// ProjectionRepository is the Mongo read model of posted entries
type ProjectionRepository interface {
	Upsert(ctx context.Context, entry *Entry) error
	MarkReversed(ctx context.Context, originalID uuid.UUID, reversalID uuid.UUID) error
	ListByBusinessDay(ctx context.Context, businessDay string, limit, offset int) ([]*Entry, error)
	CountByBusinessDay(ctx context.Context, businessDay string) (int64, error)
}
