// Package pagination implements opaque keyset cursors for statement and audit listings.
package pagination

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidCursor = errors.New("invalid cursor")

// Limits holds the page size policy of one listing.
type Limits struct {
	Default int
	Max     int
}

// Normalize applies the default for non-positive limits and caps at Max.
func (l Limits) Normalize(limit int) int {
	if limit <= 0 {
		return l.Default
	}
	if limit > l.Max {
		return l.Max
	}
	return limit
}

// WithBuffer returns the normalized limit plus one row used to detect a next page.
func (l Limits) WithBuffer(limit int) int {
	return l.Normalize(limit) + 1
}

// Params holds cursor pagination inputs from handlers or services.
type Params struct {
	Limit  int
	Cursor string
}

// Cursor identifies the last row of a page ordered by (created_at, id) descending.
type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

func EncodeCursor(cursor Cursor) string {
	payload := fmt.Sprintf("%s|%s", cursor.CreatedAt.UTC().Format(time.RFC3339Nano), cursor.ID.String())
	return base64.RawURLEncoding.EncodeToString([]byte(payload))
}

// ParseCursor decodes a cursor produced by EncodeCursor. An empty value yields nil.
func ParseCursor(value string) (*Cursor, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	parts := strings.SplitN(string(decoded), "|", 2)
	if len(parts) != 2 {
		return nil, ErrInvalidCursor
	}
	t, err := time.Parse(time.RFC3339Nano, parts[0])
	if err != nil {
		return nil, fmt.Errorf("%w: timestamp: %v", ErrInvalidCursor, err)
	}
	id, err := uuid.Parse(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: id: %v", ErrInvalidCursor, err)
	}
	return &Cursor{CreatedAt: t, ID: id}, nil
}

// EncodeSequenceCursor wraps an audit sequence number.
func EncodeSequenceCursor(sequence int64) string {
	return base64.RawURLEncoding.EncodeToString([]byte("seq|" + strconv.FormatInt(sequence, 10)))
}

// ParseSequenceCursor returns 0 for an empty cursor.
func ParseSequenceCursor(value string) (int64, error) {
	if strings.TrimSpace(value) == "" {
		return 0, nil
	}
	decoded, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	raw, ok := strings.CutPrefix(string(decoded), "seq|")
	if !ok {
		return 0, ErrInvalidCursor
	}
	sequence, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || sequence <= 0 {
		return 0, ErrInvalidCursor
	}
	return sequence, nil
}
