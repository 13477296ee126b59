package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/tamper-evident-ledger/internal/domain/audit"
	"github.com/tamper-evident-ledger/internal/platform/persistence"
)

const auditColumns = `
	sequence_number, id, actor_type, COALESCE(actor_id, ''), action, resource_type,
	COALESCE(resource_id, ''), payload, COALESCE(correlation_id, ''), COALESCE(request_id, ''),
	prev_hash, hash, created_at`

// AuditRepository implements audit.Repository for PostgreSQL. Rows are only ever inserted.
type AuditRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

func NewAuditRepository(logger *slog.Logger, db *persistence.PostgresDB) audit.Repository {
	return &AuditRepository{
		querier: db.Querier(),
		logger:  logger,
	}
}

func (r *AuditRepository) WithTx(tx pgx.Tx) audit.Repository {
	return &AuditRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// GetTail returns the newest event or nil for an empty chain. Callers must hold the
// audit advisory lock for the result to stay the tail.
func (r *AuditRepository) GetTail(ctx context.Context) (*audit.Event, error) {
	query := `SELECT` + auditColumns + `
		FROM audit_events
		ORDER BY sequence_number DESC
		LIMIT 1
	`
	event, err := scanAuditEvent(r.querier.QueryRow(ctx, query))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to read audit chain tail", "error", err)
		return nil, fmt.Errorf("failed to read audit chain tail: %w", err)
	}
	return event, nil
}

func (r *AuditRepository) Insert(ctx context.Context, event *audit.Event) error {
	query := `
		INSERT INTO audit_events (
			sequence_number, id, actor_type, actor_id, action, resource_type, resource_id,
			payload, correlation_id, request_id, prev_hash, hash, created_at
		)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, NULLIF($7, ''), $8, NULLIF($9, ''), NULLIF($10, ''), $11, $12, $13)
	`

	_, err := r.querier.Exec(ctx, query,
		event.SequenceNumber,
		event.ID,
		event.ActorType,
		event.ActorID,
		event.Action,
		event.ResourceType,
		event.ResourceID,
		[]byte(event.Payload),
		event.CorrelationID,
		event.RequestID,
		event.PrevHash,
		event.Hash,
		event.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to insert audit event",
			"sequence_number", event.SequenceNumber,
			"action", event.Action,
			"error", err,
		)
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

// ListAfter pages through the chain in ascending order for verification
func (r *AuditRepository) ListAfter(ctx context.Context, after int64, limit int) ([]*audit.Event, error) {
	query := `SELECT` + auditColumns + `
		FROM audit_events
		WHERE sequence_number > $1
		ORDER BY sequence_number ASC
		LIMIT $2
	`

	rows, err := r.querier.Query(ctx, query, after, limit)
	if err != nil {
		r.logger.Error("Failed to list audit events", "after", after, "error", err)
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	defer rows.Close()

	events := make([]*audit.Event, 0, limit)
	for rows.Next() {
		event, err := scanAuditEvent(rows)
		if err != nil {
			r.logger.Error("Failed to scan audit event", "error", err)
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over audit events: %w", err)
	}
	return events, nil
}

func (r *AuditRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.querier.QueryRow(ctx, `SELECT COUNT(*) FROM audit_events`).Scan(&count); err != nil {
		r.logger.Error("Failed to count audit events", "error", err)
		return 0, fmt.Errorf("failed to count audit events: %w", err)
	}
	return count, nil
}

// GetLatestForResource returns nil when the resource has no events
func (r *AuditRepository) GetLatestForResource(ctx context.Context, resourceType, resourceID string) (*audit.Event, error) {
	query := `SELECT` + auditColumns + `
		FROM audit_events
		WHERE resource_type = $1 AND resource_id = $2
		ORDER BY sequence_number DESC
		LIMIT 1
	`
	event, err := scanAuditEvent(r.querier.QueryRow(ctx, query, resourceType, resourceID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get latest audit event",
			"resource_type", resourceType,
			"resource_id", resourceID,
			"error", err,
		)
		return nil, fmt.Errorf("failed to get latest audit event: %w", err)
	}
	return event, nil
}

func scanAuditEvent(row pgx.Row) (*audit.Event, error) {
	var (
		event   audit.Event
		payload []byte
	)
	err := row.Scan(
		&event.SequenceNumber,
		&event.ID,
		&event.ActorType,
		&event.ActorID,
		&event.Action,
		&event.ResourceType,
		&event.ResourceID,
		&payload,
		&event.CorrelationID,
		&event.RequestID,
		&event.PrevHash,
		&event.Hash,
		&event.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	event.Payload = payload
	event.CreatedAt = audit.NormalizeTime(event.CreatedAt)
	return &event, nil
}
