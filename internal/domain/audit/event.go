// Package audit models the tamper-evident audit chain: every event stores the hash of
// its predecessor, and its own hash covers that link plus its content.
package audit

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tamper-evident-ledger/internal/platform/hashing"
)

// Event is one immutable record of the chain
type Event struct {
	SequenceNumber int64           `json:"sequence_number"`
	ID             uuid.UUID       `json:"id"`
	ActorType      string          `json:"actor_type"`
	ActorID        string          `json:"actor_id,omitempty"`
	Action         string          `json:"action"`
	ResourceType   string          `json:"resource_type"`
	ResourceID     string          `json:"resource_id,omitempty"`
	Payload        json.RawMessage `json:"payload"`
	CorrelationID  string          `json:"correlation_id,omitempty"`
	RequestID      string          `json:"request_id,omitempty"`
	PrevHash       *string         `json:"prev_hash"`
	Hash           string          `json:"hash"`
	CreatedAt      time.Time       `json:"created_at"`
}

// RecordParams is the caller supplied part of an event. Payload may be any JSON
// serializable value; it is redacted before hashing.
type RecordParams struct {
	ActorType     string
	ActorID       string
	Action        string
	ResourceType  string
	ResourceID    string
	Payload       interface{}
	CorrelationID string
	RequestID     string
}

// ChainVerification is the result of walking the chain
type ChainVerification struct {
	Valid       bool     `json:"valid"`
	TotalEvents int64    `json:"total_events"`
	BrokenAt    *int64   `json:"broken_at,omitempty"`
	PIIFindings []string `json:"pii_findings,omitempty"`
}

// hashFields fixes the field order of the hashed document
type hashFields struct {
	PrevHash      string          `json:"prev_hash"`
	ActorType     string          `json:"actor_type"`
	ActorID       string          `json:"actor_id"`
	Action        string          `json:"action"`
	ResourceType  string          `json:"resource_type"`
	ResourceID    string          `json:"resource_id"`
	Payload       json.RawMessage `json:"payload"`
	CorrelationID string          `json:"correlation_id"`
	RequestID     string          `json:"request_id"`
	CreatedAt     string          `json:"created_at"`
}

// NormalizeTime truncates to the microsecond precision of timestamptz and converts to UTC,
// so a timestamp read back from storage formats exactly as it did when hashed.
func NormalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// ComputeHash returns the SHA-256 hex digest of the event linked to prevHash. The payload
// is canonicalized first because JSONB does not preserve key order.
func ComputeHash(prevHash *string, e *Event) (string, error) {
	payload, err := hashing.CanonicalJSON(e.Payload)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize audit payload: %w", err)
	}

	prev := ""
	if prevHash != nil {
		prev = *prevHash
	}

	doc, err := json.Marshal(hashFields{
		PrevHash:      prev,
		ActorType:     e.ActorType,
		ActorID:       e.ActorID,
		Action:        e.Action,
		ResourceType:  e.ResourceType,
		ResourceID:    e.ResourceID,
		Payload:       payload,
		CorrelationID: e.CorrelationID,
		RequestID:     e.RequestID,
		CreatedAt:     NormalizeTime(e.CreatedAt).Format(time.RFC3339Nano),
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode audit hash document: %w", err)
	}
	return hashing.SHA256Hex(doc), nil
}

// VerifyLink checks one event against its predecessor (nil for the first event).
func VerifyLink(prev, e *Event) (bool, error) {
	switch {
	case prev == nil && e.PrevHash != nil:
		return false, nil
	case prev != nil && (e.PrevHash == nil || *e.PrevHash != prev.Hash):
		return false, nil
	}
	expected, err := ComputeHash(e.PrevHash, e)
	if err != nil {
		return false, err
	}
	return expected == e.Hash, nil
}
