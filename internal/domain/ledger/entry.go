package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tamper-evident-ledger/internal/domain/shared"
)

// Entry is one balanced journal entry with its lines
type Entry struct {
	ID              uuid.UUID              `json:"id"`
	EntryNumber     int64                  `json:"entry_number"`
	Subledger       shared.Subledger       `json:"subledger"`
	Description     string                 `json:"description"`
	Reference       string                 `json:"reference"`
	CorrelationID   string                 `json:"correlation_id,omitempty"`
	IdempotencyKey  string                 `json:"idempotency_key"`
	RequestHash     string                 `json:"-"`
	BusinessDay     string                 `json:"business_day"`
	Status          shared.EntryStatus     `json:"status"`
	ReversedEntryID *uuid.UUID             `json:"reversed_entry_id,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
	EntryHash       string                 `json:"entry_hash"`
	CreatedAt       time.Time              `json:"created_at"`
	Lines           []Line                 `json:"lines"`
}

// IsReversal reports whether this entry negates another entry
func (e *Entry) IsReversal() bool {
	return e.ReversedEntryID != nil
}

// Line is one debit or credit leg of an entry
type Line struct {
	ID           uuid.UUID          `json:"id"`
	EntryID      uuid.UUID          `json:"entry_id"`
	AccountID    string             `json:"account_id"`
	DebitCredit  shared.DebitCredit `json:"debit_credit"`
	Amount       decimal.Decimal    `json:"amount"`
	CurrencyCode string             `json:"currency_code"`
	LineNumber   int                `json:"line_number"`
	CreatedAt    time.Time          `json:"created_at"`
}

// Actor identifies who initiated a mutation. It is copied into the audit record.
type Actor struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
}

// PostingLine is a requested line. Amount stays a string until validation parses it.
type PostingLine struct {
	AccountID    string             `json:"account_id"`
	DebitCredit  shared.DebitCredit `json:"debit_credit"`
	Amount       string             `json:"amount"`
	CurrencyCode string             `json:"currency_code"`
}

// PostingRequest is the input of PostEntry
type PostingRequest struct {
	IdempotencyKey string                 `json:"idempotency_key"`
	Subledger      shared.Subledger       `json:"subledger"`
	Description    string                 `json:"description"`
	Reference      string                 `json:"reference"`
	CorrelationID  string                 `json:"correlation_id,omitempty"`
	BusinessDay    string                 `json:"business_day"`
	Lines          []PostingLine          `json:"lines"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	Actor          Actor                  `json:"actor"`
	RequestID      string                 `json:"request_id,omitempty"`
}

// ReverseRequest is the input of ReverseEntry. An empty Reference falls back to the
// configured prefix followed by the original reference.
type ReverseRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
	CorrelationID  string `json:"correlation_id,omitempty"`
	Description    string `json:"description"`
	Reference      string `json:"reference,omitempty"`
	BusinessDay    string `json:"business_day"`
	Actor          Actor  `json:"actor"`
	RequestID      string `json:"request_id,omitempty"`
}

// Receipt proves a posting: the entry hash and the hash of the audit event written with it
type Receipt struct {
	EntryID        uuid.UUID `json:"entry_id"`
	EntryHash      string    `json:"entry_hash"`
	AuditEventHash string    `json:"audit_event_hash"`
}

// PostingResult is returned by PostEntry and ReverseEntry. Replayed is true when the
// result came from an earlier request with the same idempotency key.
type PostingResult struct {
	Entry    *Entry  `json:"entry"`
	Receipt  Receipt `json:"receipt"`
	Replayed bool    `json:"replayed"`
}
