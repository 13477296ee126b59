package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/tamper-evident-ledger/internal/domain/apperror"
)

const internalErrorMessage = "An internal server error occurred"

// ErrorBody is the error member of every failed API response
type ErrorBody struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// ErrorBodyFor maps err onto its stable code and HTTP status. Internal errors never
// leak their message.
func ErrorBodyFor(err error) (int, ErrorBody) {
	code := apperror.CodeOf(err)
	status := apperror.MetadataFor(code).HTTPStatus

	if code == apperror.CodeInternal {
		return status, ErrorBody{Code: string(code), Message: internalErrorMessage}
	}
	typed := apperror.As(err)
	return status, ErrorBody{Code: string(code), Message: typed.Message(), Details: typed.Details()}
}

// AbortWithError writes the error envelope and stops the handler chain
func AbortWithError(c *gin.Context, err error) {
	status, body := ErrorBodyFor(err)
	response := gin.H{"error": body}
	if correlationID := GetCorrelationID(c); correlationID != "" {
		response["correlation_id"] = correlationID
	}
	c.AbortWithStatusJSON(status, response)
}
