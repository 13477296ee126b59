package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	CorrelationIDHeader = "X-Correlation-ID"
	RequestIDHeader     = "X-Request-ID"

	// Keys used to store the ids in the gin context
	CorrelationIDKey = "correlation_id"
	RequestIDKey     = "request_id"
)

// CorrelationID ensures every request carries a correlation id, which follows the
// request into the journal entry and its audit event, and a request id unique to this
// HTTP call. Both are echoed in the response headers.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationID := c.GetHeader(CorrelationIDHeader)
		if correlationID == "" {
			correlationID = uuid.New().String()
		}
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		c.Header(CorrelationIDHeader, correlationID)
		c.Header(RequestIDHeader, requestID)
		c.Set(CorrelationIDKey, correlationID)
		c.Set(RequestIDKey, requestID)

		c.Next()
	}
}

// GetCorrelationID retrieves the correlation ID from the gin context if present
func GetCorrelationID(c *gin.Context) string {
	return contextString(c, CorrelationIDKey)
}

func GetRequestID(c *gin.Context) string {
	return contextString(c, RequestIDKey)
}

func contextString(c *gin.Context, key string) string {
	if v, exists := c.Get(key); exists {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
