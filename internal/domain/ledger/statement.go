package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tamper-evident-ledger/internal/domain/shared"
)

// StatementLine is one journal line of an account joined with its entry
type StatementLine struct {
	LineID        uuid.UUID          `json:"line_id"`
	EntryID       uuid.UUID          `json:"entry_id"`
	EntryNumber   int64              `json:"entry_number"`
	AccountID     string             `json:"account_id"`
	DebitCredit   shared.DebitCredit `json:"debit_credit"`
	Amount        decimal.Decimal    `json:"amount"`
	CurrencyCode  string             `json:"currency_code"`
	LineNumber    int                `json:"line_number"`
	Description   string             `json:"description"`
	Reference     string             `json:"reference"`
	CorrelationID string             `json:"correlation_id,omitempty"`
	BusinessDay   string             `json:"business_day"`
	EntryStatus   shared.EntryStatus `json:"entry_status"`
	CreatedAt     time.Time          `json:"created_at"`
}

// StatementPage is one page of an account statement, newest first
type StatementPage struct {
	AccountID  string          `json:"account_id"`
	Lines      []StatementLine `json:"lines"`
	NextCursor string          `json:"next_cursor,omitempty"`
	HasMore    bool            `json:"has_more"`
}
