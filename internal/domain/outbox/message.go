package outbox

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tamper-evident-ledger/internal/domain/shared"
)

// SchemaVersion of the envelope published to the event topic
const SchemaVersion = 1

// Message is an outbox row written in the same transaction as the ledger or audit change
type Message struct {
	ID            int64               `json:"id"`
	EventID       uuid.UUID           `json:"event_id"`
	EventType     shared.EventType    `json:"event_type"`
	AggregateID   string              `json:"aggregate_id"`
	CorrelationID string              `json:"correlation_id,omitempty"`
	Payload       json.RawMessage     `json:"payload"`
	Status        shared.OutboxStatus `json:"status"`
	Attempts      int                 `json:"attempts"`
	CreatedAt     time.Time           `json:"created_at"`
	LastAttemptAt *time.Time          `json:"last_attempt_at,omitempty"`
}

// NewMessage serializes payload into a pending outbox message
func NewMessage(eventType shared.EventType, aggregateID, correlationID string, payload interface{}) (*Message, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}

	return &Message{
		EventID:       uuid.New(),
		EventType:     eventType,
		AggregateID:   aggregateID,
		CorrelationID: correlationID,
		Payload:       encoded,
		Status:        shared.OutboxStatusPending,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

func (m *Message) IncrementAttempts() {
	m.Attempts++
	now := time.Now()
	m.LastAttemptAt = &now
}

func (m *Message) MarkAsProcessed() {
	m.Status = shared.OutboxStatusProcessed
	now := time.Now()
	m.LastAttemptAt = &now
}

func (m *Message) MarkAsFailed() {
	m.Status = shared.OutboxStatusFailedToPublish
	now := time.Now()
	m.LastAttemptAt = &now
}

// Envelope is the wire format of every published domain event
type Envelope struct {
	EventID       uuid.UUID        `json:"event_id"`
	EventType     shared.EventType `json:"event_type"`
	OccurredAt    time.Time        `json:"occurred_at"`
	CorrelationID string           `json:"correlation_id,omitempty"`
	SchemaVersion int              `json:"schema_version"`
	Payload       json.RawMessage  `json:"payload"`
}

// Envelope wraps the message for publishing. OccurredAt is the time the row was written.
func (m *Message) Envelope() Envelope {
	return Envelope{
		EventID:       m.EventID,
		EventType:     m.EventType,
		OccurredAt:    m.CreatedAt,
		CorrelationID: m.CorrelationID,
		SchemaVersion: SchemaVersion,
		Payload:       m.Payload,
	}
}

// DecodePayload unmarshals the payload into out
func (m *Message) DecodePayload(out interface{}) error {
	if err := json.Unmarshal(m.Payload, out); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", m.EventType, err)
	}
	return nil
}
