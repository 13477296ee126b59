package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tamper-evident-ledger/internal/api_gateway/middleware"
	"github.com/tamper-evident-ledger/internal/domain/apperror"
)

// Response represents a standard API response
type Response struct {
	Data          interface{}           `json:"data,omitempty"`
	Error         *middleware.ErrorBody `json:"error,omitempty"`
	CorrelationID string                `json:"correlation_id,omitempty"`
	Meta          *MetaInfo             `json:"meta,omitempty"`
}

// MetaInfo represents metadata in a response. Offset listings fill the page fields,
// keyset listings fill the cursor fields.
type MetaInfo struct {
	Page       int    `json:"page,omitempty"`
	PerPage    int    `json:"per_page,omitempty"`
	TotalPages int    `json:"total_pages,omitempty"`
	TotalItems int    `json:"total_items,omitempty"`
	NextCursor string `json:"next_cursor,omitempty"`
	HasMore    bool   `json:"has_more,omitempty"`
}

// NewResponse creates a new response with data
func NewResponse(data interface{}) *Response {
	return &Response{
		Data: data,
	}
}

// NewPaginatedResponse creates a new paginated response
func NewPaginatedResponse(data interface{}, page, perPage, totalItems int) *Response {
	totalPages := totalItems / perPage
	if totalItems%perPage > 0 {
		totalPages++
	}

	return &Response{
		Data: data,
		Meta: &MetaInfo{
			Page:       page,
			PerPage:    perPage,
			TotalPages: totalPages,
			TotalItems: totalItems,
		},
	}
}

// RespondWithData sends a JSON response with data
func RespondWithData(c *gin.Context, statusCode int, data interface{}) {
	response := NewResponse(data)
	response.CorrelationID = middleware.GetCorrelationID(c)
	c.JSON(statusCode, response)
}

// RespondWithAppError maps err onto its status and stable code
func RespondWithAppError(c *gin.Context, err error) {
	status, body := middleware.ErrorBodyFor(err)
	response := &Response{Error: &body, CorrelationID: middleware.GetCorrelationID(c)}
	c.JSON(status, response)
}

// RespondWithPaginatedData sends a JSON response with paginated data
func RespondWithPaginatedData(c *gin.Context, statusCode int, data interface{}, page, perPage, totalItems int) {
	response := NewPaginatedResponse(data, page, perPage, totalItems)
	response.CorrelationID = middleware.GetCorrelationID(c)
	c.JSON(statusCode, response)
}

// RespondWithCursor sends one keyset page with its continuation cursor
func RespondWithCursor(c *gin.Context, data interface{}, nextCursor string, hasMore bool) {
	response := NewResponse(data)
	response.Meta = &MetaInfo{NextCursor: nextCursor, HasMore: hasMore}
	response.CorrelationID = middleware.GetCorrelationID(c)
	c.JSON(http.StatusOK, response)
}

// RespondOK sends a 200 OK response with data
func RespondOK(c *gin.Context, data interface{}) {
	RespondWithData(c, http.StatusOK, data)
}

// RespondCreated sends a 201 Created response with data
func RespondCreated(c *gin.Context, data interface{}) {
	RespondWithData(c, http.StatusCreated, data)
}

// RespondAccepted sends a 202 Accepted response with data.
func RespondAccepted(c *gin.Context, data interface{}) {
	RespondWithData(c, http.StatusAccepted, data)
}

// RespondBadRequest sends a 400 response carrying VALIDATION_ERROR
func RespondBadRequest(c *gin.Context, message string) {
	RespondWithAppError(c, apperror.Validation(message))
}
