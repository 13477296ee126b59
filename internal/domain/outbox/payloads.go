package outbox

import (
	"github.com/tamper-evident-ledger/internal/domain/audit"
	"github.com/tamper-evident-ledger/internal/domain/ledger"
)

// LedgerPostedPayload is the payload of Ledger.Posted.v1
type LedgerPostedPayload struct {
	Entry   *ledger.Entry  `json:"entry"`
	Receipt ledger.Receipt `json:"receipt"`
}

// LedgerReversedPayload is the payload of Ledger.Reversed.v1
type LedgerReversedPayload struct {
	OriginalEntryID string         `json:"original_entry_id"`
	Reversal        *ledger.Entry  `json:"reversal"`
	Receipt         ledger.Receipt `json:"receipt"`
}

// AuditRecordedPayload is the payload of Audit.Recorded.v1
type AuditRecordedPayload struct {
	Event *audit.Event `json:"event"`
}
