package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tamper-evident-ledger/internal/api_gateway/middleware"
	"github.com/tamper-evident-ledger/internal/api_gateway/service"
)

// AuditHandler handles HTTP requests for the audit chain
type AuditHandler struct {
	auditService service.AuditService
	logger       *slog.Logger
}

// NewAuditHandler creates a new audit handler
func NewAuditHandler(logger *slog.Logger, auditService service.AuditService) *AuditHandler {
	return &AuditHandler{
		auditService: auditService,
		logger:       logger,
	}
}

// Verify walks the whole chain. A broken chain is still a 200: the result is the answer.
func (h *AuditHandler) Verify(c *gin.Context) {
	result, err := h.auditService.VerifyChain(c.Request.Context())
	if err != nil {
		if status, _ := middleware.ErrorBodyFor(err); status >= http.StatusInternalServerError {
			h.logger.Error("Failed to verify audit chain", "correlation_id", middleware.GetCorrelationID(c), "error", err)
		}
		RespondWithAppError(c, err)
		return
	}
	RespondOK(c, result)
}

// SearchEvents filters the audit projection, newest first
func (h *AuditHandler) SearchEvents(c *gin.Context) {
	var params AuditSearchParams
	if err := c.ShouldBindQuery(&params); err != nil {
		RespondBadRequest(c, "Invalid search parameters")
		return
	}

	page, err := h.auditService.SearchEvents(c.Request.Context(), service.EventFilter{
		Action:       params.Action,
		ResourceType: params.ResourceType,
		ResourceID:   params.ResourceID,
		ActorID:      params.ActorID,
		Limit:        params.Limit,
		Cursor:       params.Cursor,
	})
	if err != nil {
		if status, _ := middleware.ErrorBodyFor(err); status >= http.StatusInternalServerError {
			h.logger.Error("Failed to search audit events", "correlation_id", middleware.GetCorrelationID(c), "error", err)
		}
		RespondWithAppError(c, err)
		return
	}

	events := make([]AuditEventResponse, 0, len(page.Events))
	for _, event := range page.Events {
		events = append(events, mapAuditEventToResponse(event))
	}
	RespondWithCursor(c, events, page.NextCursor, page.HasMore)
}
