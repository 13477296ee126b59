package apperror

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataFor(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		retryable bool
	}{
		{CodeValidation, http.StatusBadRequest, false},
		{CodeConflict, http.StatusConflict, false},
		{CodeIdempotencyKeyReused, http.StatusConflict, false},
		{CodeNotFound, http.StatusNotFound, false},
		{CodeForbidden, http.StatusForbidden, false},
		{CodePolicyDenied, http.StatusForbidden, false},
		{CodeObligationNotSatisfied, http.StatusForbidden, false},
		{CodeTransientStorage, http.StatusServiceUnavailable, true},
		{CodeInternal, http.StatusInternalServerError, false},
		{"SOMETHING_UNKNOWN", http.StatusInternalServerError, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			meta := MetadataFor(tt.code)
			assert.Equal(t, tt.status, meta.HTTPStatus)
			assert.Equal(t, tt.retryable, meta.Retryable)
		})
	}
}

func TestErrorWrappingAndDetails(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(CodeInternal, cause, "failed").WithDetail("k", "v")

	assert.Equal(t, CodeInternal, err.Code())
	assert.Equal(t, "failed", err.Message())
	assert.Equal(t, "v", err.Details()["k"])
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "INTERNAL_ERROR: failed: boom")

	wrapped := fmt.Errorf("outer: %w", err)
	require.NotNil(t, As(wrapped))
	assert.Equal(t, CodeInternal, CodeOf(wrapped))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))
	assert.Nil(t, As(nil))
}

func TestPolicyErrorsCarryDetails(t *testing.T) {
	denied := PolicyDenied([]string{"NO_MATCH"})
	assert.Equal(t, CodePolicyDenied, denied.Code())
	assert.Equal(t, []string{"NO_MATCH"}, denied.Details()["reasonCodes"])

	unmet := ObligationNotSatisfied([]string{"mfa"})
	assert.Equal(t, CodeObligationNotSatisfied, unmet.Code())
	assert.Equal(t, []string{"mfa"}, unmet.Details()["obligations"])
}

func TestFromStorage(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		expected Code
	}{
		{"SerializationFailure", &pgconn.PgError{Code: "40001"}, CodeTransientStorage},
		{"Deadlock", &pgconn.PgError{Code: "40P01"}, CodeTransientStorage},
		{"ConnectionException", &pgconn.PgError{Code: "08006"}, CodeTransientStorage},
		{"IdempotencyRace", &pgconn.PgError{Code: "23505", ConstraintName: ConstraintIdempotencyKey}, CodeTransientStorage},
		{"AuditSequenceCollision", &pgconn.PgError{Code: "23505", ConstraintName: ConstraintAuditSequence}, CodeInternal},
		{"DuplicateReversal", &pgconn.PgError{Code: "23505", ConstraintName: ConstraintReversedEntryID}, CodeConflict},
		{"OtherUnique", &pgconn.PgError{Code: "23505", ConstraintName: "other"}, CodeConflict},
		{"OtherPgError", &pgconn.PgError{Code: "22001"}, CodeInternal},
		{"Deadline", context.DeadlineExceeded, CodeTransientStorage},
		{"WrappedPgError", fmt.Errorf("failed to insert: %w", &pgconn.PgError{Code: "40001"}), CodeTransientStorage},
		{"Plain", errors.New("unknown"), CodeInternal},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			out := FromStorage(tc.err)
			assert.Equal(t, tc.expected, CodeOf(out))
			assert.ErrorIs(t, out, tc.err)
		})
	}

	assert.NoError(t, FromStorage(nil))

	coded := Validation("bad")
	assert.Same(t, coded, FromStorage(coded))
	assert.True(t, IsRetryable(FromStorage(&pgconn.PgError{Code: "40001"})))
}
