package service

import (
	"context"
	"log/slog"
	"strings"

	"github.com/tamper-evident-ledger/internal/domain/apperror"
	"github.com/tamper-evident-ledger/internal/domain/audit"
	"github.com/tamper-evident-ledger/internal/platform/pagination"
)

var auditSearchLimits = pagination.Limits{Default: 50, Max: 100}

// AuditServiceImpl implements AuditService. Verification reads the authoritative chain
// in Postgres; search reads the Mongo projection.
type AuditServiceImpl struct {
	verifier   ChainVerifier
	projection audit.ProjectionRepository
	logger     *slog.Logger
}

func NewAuditService(logger *slog.Logger, verifier ChainVerifier, projection audit.ProjectionRepository) *AuditServiceImpl {
	return &AuditServiceImpl{
		verifier:   verifier,
		projection: projection,
		logger:     logger,
	}
}

func (s *AuditServiceImpl) VerifyChain(ctx context.Context) (*audit.ChainVerification, error) {
	result, err := s.verifier.VerifyChain(ctx)
	if err != nil {
		return nil, err
	}
	if !result.Valid {
		s.logger.Warn("Audit chain verification failed", "broken_at", *result.BrokenAt, "total_events", result.TotalEvents)
	}
	return result, nil
}

func (s *AuditServiceImpl) SearchEvents(ctx context.Context, filter EventFilter) (*EventPage, error) {
	before, err := pagination.ParseSequenceCursor(filter.Cursor)
	if err != nil {
		return nil, apperror.Wrap(apperror.CodeValidation, err, "invalid cursor")
	}

	limit := auditSearchLimits.Normalize(filter.Limit)
	events, err := s.projection.Search(ctx, audit.SearchQuery{
		Action:       strings.TrimSpace(filter.Action),
		ResourceType: strings.TrimSpace(filter.ResourceType),
		ResourceID:   strings.TrimSpace(filter.ResourceID),
		ActorID:      strings.TrimSpace(filter.ActorID),
		Before:       before,
		Limit:        auditSearchLimits.WithBuffer(filter.Limit),
	})
	if err != nil {
		s.logger.Error("Failed to search audit events", "action", filter.Action, "error", err)
		return nil, err
	}

	page := &EventPage{Events: events}
	if len(events) > limit {
		page.Events = events[:limit]
		page.HasMore = true
		page.NextCursor = pagination.EncodeSequenceCursor(page.Events[limit-1].SequenceNumber)
	}
	if page.Events == nil {
		page.Events = []*audit.Event{}
	}
	return page, nil
}
