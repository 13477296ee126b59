package audit

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// Repository is the append-only audit_events store
type Repository interface {
	// GetTail returns the event with the highest sequence number, or nil for an empty chain.
	GetTail(ctx context.Context) (*Event, error)
	Insert(ctx context.Context, event *Event) error
	// ListAfter returns up to limit events with sequence_number > after, ascending.
	ListAfter(ctx context.Context, after int64, limit int) ([]*Event, error)
	Count(ctx context.Context) (int64, error)
	// GetLatestForResource returns the newest event for a resource, or nil.
	GetLatestForResource(ctx context.Context, resourceType, resourceID string) (*Event, error)
	WithTx(tx pgx.Tx) Repository
}

// SearchQuery filters the audit projection. Events are returned newest first.
type SearchQuery struct {
	Action       string
	ResourceType string
	ResourceID   string
	ActorID      string
	Before       int64
	Limit        int
}

// ProjectionRepository is the Mongo search index of audit events
type ProjectionRepository interface {
	Upsert(ctx context.Context, event *Event) error
	Search(ctx context.Context, query SearchQuery) ([]*Event, error)
}
