package pagination

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimits_Normalize(t *testing.T) {
	limits := Limits{Default: 50, Max: 100}

	assert.Equal(t, 50, limits.Normalize(0))
	assert.Equal(t, 50, limits.Normalize(-3))
	assert.Equal(t, 20, limits.Normalize(20))
	assert.Equal(t, 100, limits.Normalize(500))
	assert.Equal(t, 101, limits.WithBuffer(1000))
}

func TestCursor_RoundTrip(t *testing.T) {
	original := Cursor{
		CreatedAt: time.Date(2026, 3, 4, 10, 11, 12, 123456000, time.UTC),
		ID:        uuid.New(),
	}

	parsed, err := ParseCursor(EncodeCursor(original))
	require.NoError(t, err)
	require.NotNil(t, parsed)
	assert.True(t, original.CreatedAt.Equal(parsed.CreatedAt))
	assert.Equal(t, original.ID, parsed.ID)
}

func TestParseCursor_Invalid(t *testing.T) {
	empty, err := ParseCursor("  ")
	assert.NoError(t, err)
	assert.Nil(t, empty)

	for _, value := range []string{"!!!", "bm8tc2VwYXJhdG9y", EncodeSequenceCursor(4)} {
		_, err := ParseCursor(value)
		assert.ErrorIs(t, err, ErrInvalidCursor, value)
	}
}

func TestSequenceCursor(t *testing.T) {
	seq, err := ParseSequenceCursor(EncodeSequenceCursor(42))
	require.NoError(t, err)
	assert.Equal(t, int64(42), seq)

	seq, err = ParseSequenceCursor("")
	require.NoError(t, err)
	assert.Zero(t, seq)

	_, err = ParseSequenceCursor(EncodeCursor(Cursor{CreatedAt: time.Now(), ID: uuid.New()}))
	assert.ErrorIs(t, err, ErrInvalidCursor)
}
