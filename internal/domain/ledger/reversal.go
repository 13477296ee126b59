package ledger

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tamper-evident-ledger/internal/domain/shared"
)

// DeriveStatus maps the existence of a referencing reversal to an entry status.
func DeriveStatus(hasReversal bool) shared.EntryStatus {
	if hasReversal {
		return shared.EntryStatusReversed
	}
	return shared.EntryStatusPosted
}

// ReversalLines flips every original line. Account, amount, currency and order are kept,
// which preserves the per-currency balance of the original.
func ReversalLines(original []Line) []PostingLine {
	lines := make([]PostingLine, len(original))
	for i, line := range original {
		lines[i] = PostingLine{
			AccountID:    line.AccountID,
			DebitCredit:  line.DebitCredit.Flip(),
			Amount:       line.Amount.String(),
			CurrencyCode: line.CurrencyCode,
		}
	}
	return lines
}

// ReversalRequest builds the posting request for a reversal of original.
func ReversalRequest(original *Entry, req *ReverseRequest, referencePrefix string) *PostingRequest {
	reference := req.Reference
	if reference == "" {
		reference = referencePrefix + original.Reference
	}
	correlationID := req.CorrelationID
	if correlationID == "" {
		correlationID = original.CorrelationID
	}
	return &PostingRequest{
		IdempotencyKey: req.IdempotencyKey,
		Subledger:      original.Subledger,
		Description:    req.Description,
		Reference:      reference,
		CorrelationID:  correlationID,
		BusinessDay:    req.BusinessDay,
		Lines:          ReversalLines(original.Lines),
		Actor:          req.Actor,
		RequestID:      req.RequestID,
	}
}

// BuildEntry materializes a validated request into an entry with line ids and numbers
// assigned. EntryNumber and CreatedAt are filled by storage.
func BuildEntry(req *PostingRequest, amounts []decimal.Decimal, reversedEntryID *uuid.UUID) *Entry {
	entry := &Entry{
		ID:              uuid.New(),
		Subledger:       req.Subledger,
		Description:     req.Description,
		Reference:       req.Reference,
		CorrelationID:   req.CorrelationID,
		IdempotencyKey:  req.IdempotencyKey,
		BusinessDay:     req.BusinessDay,
		Status:          shared.EntryStatusPosted,
		ReversedEntryID: reversedEntryID,
		Metadata:        req.Metadata,
		Lines:           make([]Line, len(req.Lines)),
	}
	for i, line := range req.Lines {
		entry.Lines[i] = Line{
			ID:           uuid.New(),
			EntryID:      entry.ID,
			AccountID:    line.AccountID,
			DebitCredit:  line.DebitCredit,
			Amount:       amounts[i],
			CurrencyCode: line.CurrencyCode,
			LineNumber:   i + 1,
		}
	}
	return entry
}
