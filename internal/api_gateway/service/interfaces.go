package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/tamper-evident-ledger/internal/domain/audit"
	"github.com/tamper-evident-ledger/internal/domain/ledger"
	"github.com/tamper-evident-ledger/internal/platform/pagination"
)

// LedgerService defines the ledger operations exposed over HTTP
type LedgerService interface {
	// PostEntry posts synchronously and returns the entry with its receipt
	PostEntry(ctx context.Context, request *ledger.PostingRequest) (*ledger.PostingResult, error)

	// SubmitPosting validates the request and publishes it as a command for the ledger
	// processor. A key that was already used is answered synchronously instead: the
	// result is the replay and the command is nil.
	SubmitPosting(ctx context.Context, request *ledger.PostingRequest) (*ledger.Command, *ledger.PostingResult, error)

	ReverseEntry(ctx context.Context, entryID uuid.UUID, request *ledger.ReverseRequest) (*ledger.PostingResult, error)

	// SubmitReversal is the asynchronous counterpart of ReverseEntry
	SubmitReversal(ctx context.Context, entryID uuid.UUID, request *ledger.ReverseRequest) (*ledger.Command, *ledger.PostingResult, error)

	GetEntry(ctx context.Context, entryID uuid.UUID) (*ledger.Entry, error)

	// GetStatement returns one cursor page of an account's lines, newest first
	GetStatement(ctx context.Context, accountID string, params pagination.Params) (*ledger.StatementPage, error)

	// ListBusinessDay reads the projection of one business day
	// Returns entries, total count for the day, and any error
	ListBusinessDay(ctx context.Context, businessDay string, page, perPage int) ([]*ledger.Entry, int64, error)
}

// AuditService defines the audit chain operations exposed over HTTP
type AuditService interface {
	VerifyChain(ctx context.Context) (*audit.ChainVerification, error)

	// SearchEvents reads the audit projection, newest first
	SearchEvents(ctx context.Context, filter EventFilter) (*EventPage, error)
}

// ChainVerifier walks the audit chain from the first event
type ChainVerifier interface {
	VerifyChain(ctx context.Context) (*audit.ChainVerification, error)
}

// EventFilter narrows an audit search. Empty fields match everything.
type EventFilter struct {
	Action       string
	ResourceType string
	ResourceID   string
	ActorID      string
	Limit        int
	Cursor       string
}

// EventPage is one page of audit search results
type EventPage struct {
	Events     []*audit.Event `json:"events"`
	NextCursor string         `json:"next_cursor,omitempty"`
	HasMore    bool           `json:"has_more"`
}
