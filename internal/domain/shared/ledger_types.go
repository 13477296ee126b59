package shared

// DebitCredit is the side of a journal line
type DebitCredit string

const (
	Debit  DebitCredit = "DEBIT"
	Credit DebitCredit = "CREDIT"
)

func (d DebitCredit) Valid() bool {
	return d == Debit || d == Credit
}

func (d DebitCredit) IsDebit() bool {
	return d == Debit
}

// Flip returns the opposite side. Used to build reversal lines.
func (d DebitCredit) Flip() DebitCredit {
	if d == Debit {
		return Credit
	}
	return Debit
}

// Subledger classifies the owner type of an entry
type Subledger string

const (
	SubledgerCustomer Subledger = "CUSTOMER"
	SubledgerAgent    Subledger = "AGENT"
	SubledgerMerchant Subledger = "MERCHANT"
	SubledgerSystem   Subledger = "SYSTEM"
)

func (s Subledger) Valid() bool {
	switch s {
	case SubledgerCustomer, SubledgerAgent, SubledgerMerchant, SubledgerSystem:
		return true
	}
	return false
}

// EntryStatus is derived from the existence of a reversal, never stored
type EntryStatus string

const (
	EntryStatusPosted   EntryStatus = "POSTED"
	EntryStatusReversed EntryStatus = "REVERSED"
)

// OutboxStatus defines message publishing states
type OutboxStatus string

const (
	OutboxStatusPending         OutboxStatus = "PENDING"
	OutboxStatusProcessed       OutboxStatus = "PROCESSED"
	OutboxStatusFailedToPublish OutboxStatus = "FAILED_TO_PUBLISH"
)

// EventType names a domain event as Domain.Action.vN
type EventType string

const (
	EventLedgerPosted   EventType = "Ledger.Posted.v1"
	EventLedgerReversed EventType = "Ledger.Reversed.v1"
	EventAuditRecorded  EventType = "Audit.Recorded.v1"
)

// Audited actions and resource types
const (
	ActionLedgerPost    = "ledger.post"
	ActionLedgerReverse = "ledger.reverse"
	ActionLedgerRead    = "ledger.read"
	ActionAuditRead     = "audit.read"
	ActionAuditVerify   = "audit.verify"
	ActionPolicySim     = "policy.simulate"

	ResourceLedger  = "ledger"
	ResourceEntry   = "journal_entry"
	ResourceAccount = "account"
	ResourceAudit   = "audit"
	ResourcePolicy  = "policy"
)
