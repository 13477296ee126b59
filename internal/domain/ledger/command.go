package ledger

import (
	"time"

	"github.com/google/uuid"
)

// CommandType selects the ledger operation carried by an asynchronous command
type CommandType string

const (
	CommandPostEntry    CommandType = "POST_ENTRY"
	CommandReverseEntry CommandType = "REVERSE_ENTRY"
)

// Command is the Kafka message consumed by the ledger processor. Exactly one of Posting
// or Reversal is set, matching Type.
type Command struct {
	CommandID     uuid.UUID       `json:"command_id"`
	Type          CommandType     `json:"type"`
	Posting       *PostingRequest `json:"posting,omitempty"`
	EntryID       uuid.UUID       `json:"entry_id,omitempty"`
	Reversal      *ReverseRequest `json:"reversal,omitempty"`
	CorrelationID string          `json:"correlation_id"`
	Timestamp     time.Time       `json:"timestamp"`
}

// IdempotencyKey returns the key of the wrapped request
func (c *Command) IdempotencyKey() string {
	switch {
	case c.Posting != nil:
		return c.Posting.IdempotencyKey
	case c.Reversal != nil:
		return c.Reversal.IdempotencyKey
	}
	return ""
}
