package handler

import (
	"encoding/json"
	"time"

	"github.com/tamper-evident-ledger/internal/domain/audit"
	"github.com/tamper-evident-ledger/internal/domain/ledger"
	"github.com/tamper-evident-ledger/internal/domain/shared"
)

// IdempotencyKeyHeader carries the idempotency key of every mutation
const IdempotencyKeyHeader = "Idempotency-Key"

// PreferHeader with the value respond-async submits a mutation to the command topic
const (
	PreferHeader       = "Prefer"
	preferRespondAsync = "respond-async"
)

// PostingLineRequest is one requested line. Field rules are checked by the ledger so
// violations are reported in its fixed order.
type PostingLineRequest struct {
	AccountID    string `json:"account_id"`
	DebitCredit  string `json:"debit_credit"`
	Amount       string `json:"amount"`
	CurrencyCode string `json:"currency_code"`
}

// PostEntryRequest represents a request to post a journal entry
type PostEntryRequest struct {
	Subledger   string                 `json:"subledger"`
	Description string                 `json:"description"`
	Reference   string                 `json:"reference"`
	BusinessDay string                 `json:"business_day"`
	Lines       []PostingLineRequest   `json:"lines"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// ReverseEntryRequest represents a request to reverse a posted entry
type ReverseEntryRequest struct {
	Description string `json:"description"`
	Reference   string `json:"reference,omitempty"`
	BusinessDay string `json:"business_day"`
}

// LineResponse represents a journal line in API responses
type LineResponse struct {
	ID           string `json:"id"`
	AccountID    string `json:"account_id"`
	DebitCredit  string `json:"debit_credit"`
	Amount       string `json:"amount"`
	CurrencyCode string `json:"currency_code"`
	LineNumber   int    `json:"line_number"`
}

// EntryResponse represents a journal entry in API responses
type EntryResponse struct {
	ID              string                 `json:"id"`
	EntryNumber     int64                  `json:"entry_number"`
	Subledger       string                 `json:"subledger"`
	Description     string                 `json:"description"`
	Reference       string                 `json:"reference"`
	CorrelationID   string                 `json:"correlation_id,omitempty"`
	IdempotencyKey  string                 `json:"idempotency_key"`
	BusinessDay     string                 `json:"business_day"`
	Status          string                 `json:"status"`
	ReversedEntryID string                 `json:"reversed_entry_id,omitempty"`
	Metadata        map[string]interface{} `json:"metadata,omitempty"`
	EntryHash       string                 `json:"entry_hash"`
	CreatedAt       string                 `json:"created_at"`
	Lines           []LineResponse         `json:"lines"`
}

// ReceiptResponse proves a posting
type ReceiptResponse struct {
	EntryID        string `json:"entry_id"`
	EntryHash      string `json:"entry_hash"`
	AuditEventHash string `json:"audit_event_hash"`
}

// PostingResponse is returned by post and reverse
type PostingResponse struct {
	Entry    EntryResponse   `json:"entry"`
	Receipt  ReceiptResponse `json:"receipt"`
	Replayed bool            `json:"replayed"`
}

// CommandAcceptedResponse acknowledges an asynchronous submission
type CommandAcceptedResponse struct {
	CommandID      string `json:"command_id"`
	CommandType    string `json:"command_type"`
	IdempotencyKey string `json:"idempotency_key"`
	Status         string `json:"status"`
}

// StatementLineResponse represents one line of an account statement
type StatementLineResponse struct {
	LineID        string `json:"line_id"`
	EntryID       string `json:"entry_id"`
	EntryNumber   int64  `json:"entry_number"`
	DebitCredit   string `json:"debit_credit"`
	Amount        string `json:"amount"`
	CurrencyCode  string `json:"currency_code"`
	Description   string `json:"description"`
	Reference     string `json:"reference"`
	BusinessDay   string `json:"business_day"`
	EntryStatus   string `json:"entry_status"`
	CorrelationID string `json:"correlation_id,omitempty"`
	CreatedAt     string `json:"created_at"`
}

// StatementResponse represents one statement page
type StatementResponse struct {
	AccountID string                  `json:"account_id"`
	Lines     []StatementLineResponse `json:"lines"`
}

// AuditEventResponse represents an audit event in API responses
type AuditEventResponse struct {
	SequenceNumber int64           `json:"sequence_number"`
	ID             string          `json:"id"`
	ActorType      string          `json:"actor_type"`
	ActorID        string          `json:"actor_id,omitempty"`
	Action         string          `json:"action"`
	ResourceType   string          `json:"resource_type"`
	ResourceID     string          `json:"resource_id,omitempty"`
	Payload        json.RawMessage `json:"payload"`
	CorrelationID  string          `json:"correlation_id,omitempty"`
	PrevHash       *string         `json:"prev_hash"`
	Hash           string          `json:"hash"`
	CreatedAt      string          `json:"created_at"`
}

// StatementParams represents keyset pagination parameters
type StatementParams struct {
	Limit  int    `form:"limit" binding:"min=0"`
	Cursor string `form:"cursor"`
}

// AuditSearchParams represents the filters of the audit search endpoint
type AuditSearchParams struct {
	Action       string `form:"action"`
	ResourceType string `form:"resource_type"`
	ResourceID   string `form:"resource_id"`
	ActorID      string `form:"actor_id"`
	Limit        int    `form:"limit" binding:"min=0"`
	Cursor       string `form:"cursor"`
}

// PaginationParams represents pagination parameters for list endpoints
type PaginationParams struct {
	Page    int `form:"page,default=1" binding:"min=1"`
	PerPage int `form:"per_page,default=10" binding:"min=1,max=100"`
}

// SimulateSubject is the subject of a policy simulation
type SimulateSubject struct {
	PrincipalType string                 `json:"principal_type" binding:"required"`
	PrincipalID   string                 `json:"principal_id"`
	Roles         []string               `json:"roles"`
	Attributes    map[string]interface{} `json:"attributes"`
}

// SimulateResource is the resource of a policy simulation
type SimulateResource struct {
	Type       string                 `json:"type" binding:"required"`
	ID         string                 `json:"id"`
	Attributes map[string]interface{} `json:"attributes"`
}

// SimulatePolicyRequest represents a request to evaluate the loaded policies
type SimulatePolicyRequest struct {
	Subject  SimulateSubject        `json:"subject"`
	Action   string                 `json:"action" binding:"required"`
	Resource SimulateResource       `json:"resource"`
	Context  map[string]interface{} `json:"context"`
}

// DecisionResponse represents a policy decision in API responses
type DecisionResponse struct {
	Allow       bool     `json:"allow"`
	ReasonCodes []string `json:"reason_codes"`
	Obligations []string `json:"obligations"`
}

func toPostingRequest(req *PostEntryRequest) *ledger.PostingRequest {
	lines := make([]ledger.PostingLine, 0, len(req.Lines))
	for _, l := range req.Lines {
		lines = append(lines, ledger.PostingLine{
			AccountID:    l.AccountID,
			DebitCredit:  shared.DebitCredit(l.DebitCredit),
			Amount:       l.Amount,
			CurrencyCode: l.CurrencyCode,
		})
	}
	return &ledger.PostingRequest{
		Subledger:   shared.Subledger(req.Subledger),
		Description: req.Description,
		Reference:   req.Reference,
		BusinessDay: req.BusinessDay,
		Lines:       lines,
		Metadata:    req.Metadata,
	}
}

func mapEntryToResponse(entry *ledger.Entry) EntryResponse {
	response := EntryResponse{
		ID:             entry.ID.String(),
		EntryNumber:    entry.EntryNumber,
		Subledger:      string(entry.Subledger),
		Description:    entry.Description,
		Reference:      entry.Reference,
		CorrelationID:  entry.CorrelationID,
		IdempotencyKey: entry.IdempotencyKey,
		BusinessDay:    entry.BusinessDay,
		Status:         string(entry.Status),
		Metadata:       entry.Metadata,
		EntryHash:      entry.EntryHash,
		CreatedAt:      entry.CreatedAt.Format(time.RFC3339Nano),
		Lines:          make([]LineResponse, 0, len(entry.Lines)),
	}
	if entry.ReversedEntryID != nil {
		response.ReversedEntryID = entry.ReversedEntryID.String()
	}
	for _, l := range entry.Lines {
		response.Lines = append(response.Lines, LineResponse{
			ID:           l.ID.String(),
			AccountID:    l.AccountID,
			DebitCredit:  string(l.DebitCredit),
			Amount:       l.Amount.String(),
			CurrencyCode: l.CurrencyCode,
			LineNumber:   l.LineNumber,
		})
	}
	return response
}

func mapPostingResultToResponse(result *ledger.PostingResult) PostingResponse {
	return PostingResponse{
		Entry: mapEntryToResponse(result.Entry),
		Receipt: ReceiptResponse{
			EntryID:        result.Receipt.EntryID.String(),
			EntryHash:      result.Receipt.EntryHash,
			AuditEventHash: result.Receipt.AuditEventHash,
		},
		Replayed: result.Replayed,
	}
}

func mapCommandToResponse(command *ledger.Command) CommandAcceptedResponse {
	return CommandAcceptedResponse{
		CommandID:      command.CommandID.String(),
		CommandType:    string(command.Type),
		IdempotencyKey: command.IdempotencyKey(),
		Status:         "PENDING",
	}
}

func mapStatementToResponse(page *ledger.StatementPage) StatementResponse {
	response := StatementResponse{AccountID: page.AccountID, Lines: make([]StatementLineResponse, 0, len(page.Lines))}
	for _, l := range page.Lines {
		response.Lines = append(response.Lines, StatementLineResponse{
			LineID:        l.LineID.String(),
			EntryID:       l.EntryID.String(),
			EntryNumber:   l.EntryNumber,
			DebitCredit:   string(l.DebitCredit),
			Amount:        l.Amount.String(),
			CurrencyCode:  l.CurrencyCode,
			Description:   l.Description,
			Reference:     l.Reference,
			BusinessDay:   l.BusinessDay,
			EntryStatus:   string(l.EntryStatus),
			CorrelationID: l.CorrelationID,
			CreatedAt:     l.CreatedAt.Format(time.RFC3339Nano),
		})
	}
	return response
}

func mapAuditEventToResponse(event *audit.Event) AuditEventResponse {
	return AuditEventResponse{
		SequenceNumber: event.SequenceNumber,
		ID:             event.ID.String(),
		ActorType:      event.ActorType,
		ActorID:        event.ActorID,
		Action:         event.Action,
		ResourceType:   event.ResourceType,
		ResourceID:     event.ResourceID,
		Payload:        event.Payload,
		CorrelationID:  event.CorrelationID,
		PrevHash:       event.PrevHash,
		Hash:           event.Hash,
		CreatedAt:      event.CreatedAt.Format(time.RFC3339Nano),
	}
}
