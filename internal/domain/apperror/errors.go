// Package apperror defines the stable, machine-readable error taxonomy shared by the ledger,
// audit and policy components and mapped to HTTP status by the API gateway.
package apperror

import (
	"context"
	stdErrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

type Code string

const (
	CodeValidation             Code = "VALIDATION_ERROR"
	CodeConflict               Code = "CONFLICT"
	CodeIdempotencyKeyReused   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeNotFound               Code = "NOT_FOUND"
	CodeForbidden              Code = "FORBIDDEN"
	CodePolicyDenied           Code = "POLICY_DENIED"
	CodeObligationNotSatisfied Code = "OBLIGATION_NOT_SATISFIED"
	CodeTransientStorage       Code = "TRANSIENT_STORAGE_ERROR"
	CodeInternal               Code = "INTERNAL_ERROR"
)

// Metadata describes how a code surfaces to callers.
type Metadata struct {
	HTTPStatus int
	Retryable  bool
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:             {HTTPStatus: http.StatusBadRequest},
	CodeConflict:               {HTTPStatus: http.StatusConflict},
	CodeIdempotencyKeyReused:   {HTTPStatus: http.StatusConflict},
	CodeNotFound:               {HTTPStatus: http.StatusNotFound},
	CodeForbidden:              {HTTPStatus: http.StatusForbidden},
	CodePolicyDenied:           {HTTPStatus: http.StatusForbidden},
	CodeObligationNotSatisfied: {HTTPStatus: http.StatusForbidden},
	CodeTransientStorage:       {HTTPStatus: http.StatusServiceUnavailable, Retryable: true},
	CodeInternal:               {HTTPStatus: http.StatusInternalServerError},
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// Error is a coded error. Details carry structured context such as policy reason codes
// or unmet obligation tokens.
type Error struct {
	code    Code
	message string
	details map[string]interface{}
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Newf(code Code, format string, args ...interface{}) *Error {
	return &Error{code: code, message: fmt.Sprintf(format, args...)}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() map[string]interface{} {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e == nil {
		return nil
	}
	if e.details == nil {
		e.details = make(map[string]interface{})
	}
	e.details[key] = value
	return e
}

func (e *Error) Retryable() bool {
	return MetadataFor(e.Code()).Retryable
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As extracts the first *Error in err's chain.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// CodeOf returns the code of err, or CodeInternal when err carries none.
func CodeOf(err error) Code {
	if typed := As(err); typed != nil {
		return typed.Code()
	}
	return CodeInternal
}

func IsRetryable(err error) bool {
	return MetadataFor(CodeOf(err)).Retryable
}

// Convenience constructors for the common cases.

func Validation(message string) *Error { return New(CodeValidation, message) }
func Conflict(message string) *Error   { return New(CodeConflict, message) }
func NotFound(message string) *Error   { return New(CodeNotFound, message) }

func PolicyDenied(reasonCodes []string) *Error {
	return New(CodePolicyDenied, "policy denied: "+strings.Join(reasonCodes, ",")).
		WithDetail("reasonCodes", reasonCodes)
}

func ObligationNotSatisfied(obligations []string) *Error {
	return New(CodeObligationNotSatisfied, "obligations not satisfied: "+strings.Join(obligations, ",")).
		WithDetail("obligations", obligations)
}

const (
	sqlStateUniqueViolation      = "23505"
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
)

// Unique constraint names declared in migrations/postgres.
const (
	ConstraintIdempotencyKey  = "journal_entries_idempotency_key_key"
	ConstraintReversedEntryID = "journal_entries_reversed_entry_id_key"
	ConstraintAuditSequence   = "audit_events_pkey"
)

// FromStorage classifies a storage-layer error. Serialization failures, deadlocks, lost
// connections and an idempotency-key race are transient: the caller retries and the retry
// observes the winner's result. A duplicate reversal is a Conflict. A duplicate audit
// sequence number is internal: appends hold the chain lock, so it means a writer bypassed
// the lock. Errors that already carry a code pass through unchanged.
func FromStorage(err error) error {
	if err == nil {
		return nil
	}
	if As(err) != nil {
		return err
	}
	if stdErrors.Is(err, context.DeadlineExceeded) || stdErrors.Is(err, context.Canceled) {
		return Wrap(CodeTransientStorage, err, "storage operation interrupted")
	}

	var pgErr *pgconn.PgError
	if stdErrors.As(err, &pgErr) {
		switch pgErr.Code {
		case sqlStateSerializationFailure, sqlStateDeadlockDetected:
			return Wrap(CodeTransientStorage, err, "transaction conflict, retry the request")
		case sqlStateUniqueViolation:
			switch pgErr.ConstraintName {
			case ConstraintReversedEntryID:
				return Wrap(CodeConflict, err, "entry has already been reversed")
			case ConstraintIdempotencyKey:
				return Wrap(CodeTransientStorage, err, "concurrent request with the same idempotency key, retry the request")
			case ConstraintAuditSequence:
				return Wrap(CodeInternal, err, "audit chain sequence collision")
			}
			return Wrap(CodeConflict, err, "unique constraint violated")
		}
		if strings.HasPrefix(pgErr.Code, "08") {
			return Wrap(CodeTransientStorage, err, "storage connection failure")
		}
		return Wrap(CodeInternal, err, "storage error")
	}

	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return Wrap(CodeTransientStorage, err, "storage connection failure")
	}
	return Wrap(CodeInternal, err, "storage error")
}
