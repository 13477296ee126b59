package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tamper-evident-ledger/internal/api_gateway/middleware"
	"github.com/tamper-evident-ledger/internal/api_gateway/service"
	"github.com/tamper-evident-ledger/internal/domain/ledger"
	"github.com/tamper-evident-ledger/internal/platform/pagination"
)

// LedgerHandler handles HTTP requests for journal entries and statements
type LedgerHandler struct {
	ledgerService service.LedgerService
	logger        *slog.Logger
}

// NewLedgerHandler creates a new ledger handler
func NewLedgerHandler(logger *slog.Logger, ledgerService service.LedgerService) *LedgerHandler {
	return &LedgerHandler{
		ledgerService: ledgerService,
		logger:        logger,
	}
}

// PostEntry posts a balanced journal entry. A new entry is 201, a replay of the same
// idempotency key is 200, and an asynchronous submission is 202.
func (h *LedgerHandler) PostEntry(c *gin.Context) {
	idempotencyKey := strings.TrimSpace(c.GetHeader(IdempotencyKeyHeader))
	if idempotencyKey == "" {
		RespondBadRequest(c, IdempotencyKeyHeader+" header is required")
		return
	}

	var req PostEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	request := toPostingRequest(&req)
	request.IdempotencyKey = idempotencyKey
	request.CorrelationID = middleware.GetCorrelationID(c)
	request.RequestID = middleware.GetRequestID(c)
	request.Actor = actorFromContext(c)

	ctx := c.Request.Context()
	if wantsAsync(c) {
		command, result, err := h.ledgerService.SubmitPosting(ctx, request)
		if err != nil {
			h.respondError(c, "Failed to submit journal entry", err)
			return
		}
		if command != nil {
			RespondAccepted(c, mapCommandToResponse(command))
			return
		}
		respondPosting(c, result)
		return
	}

	result, err := h.ledgerService.PostEntry(ctx, request)
	if err != nil {
		h.respondError(c, "Failed to post journal entry", err)
		return
	}
	respondPosting(c, result)
}

// ReverseEntry posts the negation of an entry
func (h *LedgerHandler) ReverseEntry(c *gin.Context) {
	entryID, ok := h.entryID(c)
	if !ok {
		return
	}

	idempotencyKey := strings.TrimSpace(c.GetHeader(IdempotencyKeyHeader))
	if idempotencyKey == "" {
		RespondBadRequest(c, IdempotencyKeyHeader+" header is required")
		return
	}

	var req ReverseEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	request := &ledger.ReverseRequest{
		IdempotencyKey: idempotencyKey,
		CorrelationID:  middleware.GetCorrelationID(c),
		Description:    req.Description,
		Reference:      req.Reference,
		BusinessDay:    req.BusinessDay,
		Actor:          actorFromContext(c),
		RequestID:      middleware.GetRequestID(c),
	}

	ctx := c.Request.Context()
	if wantsAsync(c) {
		command, result, err := h.ledgerService.SubmitReversal(ctx, entryID, request)
		if err != nil {
			h.respondError(c, "Failed to submit reversal", err)
			return
		}
		if command != nil {
			RespondAccepted(c, mapCommandToResponse(command))
			return
		}
		respondPosting(c, result)
		return
	}

	result, err := h.ledgerService.ReverseEntry(ctx, entryID, request)
	if err != nil {
		h.respondError(c, "Failed to reverse journal entry", err)
		return
	}
	respondPosting(c, result)
}

// GetEntry retrieves one journal entry with its lines
func (h *LedgerHandler) GetEntry(c *gin.Context) {
	entryID, ok := h.entryID(c)
	if !ok {
		return
	}

	entry, err := h.ledgerService.GetEntry(c.Request.Context(), entryID)
	if err != nil {
		h.respondError(c, "Failed to get journal entry", err)
		return
	}
	RespondOK(c, mapEntryToResponse(entry))
}

// GetStatement retrieves one keyset page of an account statement
func (h *LedgerHandler) GetStatement(c *gin.Context) {
	var params StatementParams
	if err := c.ShouldBindQuery(&params); err != nil {
		RespondBadRequest(c, "Invalid pagination parameters")
		return
	}

	page, err := h.ledgerService.GetStatement(c.Request.Context(), c.Param("accountId"), pagination.Params{
		Limit:  params.Limit,
		Cursor: params.Cursor,
	})
	if err != nil {
		h.respondError(c, "Failed to get statement", err)
		return
	}
	RespondWithCursor(c, mapStatementToResponse(page), page.NextCursor, page.HasMore)
}

// ListBusinessDay retrieves the projected entries of one business day
func (h *LedgerHandler) ListBusinessDay(c *gin.Context) {
	var params PaginationParams
	if err := c.ShouldBindQuery(&params); err != nil {
		RespondBadRequest(c, "Invalid pagination parameters")
		return
	}

	entries, total, err := h.ledgerService.ListBusinessDay(c.Request.Context(), c.Param("day"), params.Page, params.PerPage)
	if err != nil {
		h.respondError(c, "Failed to list business day entries", err)
		return
	}

	response := make([]EntryResponse, 0, len(entries))
	for _, entry := range entries {
		response = append(response, mapEntryToResponse(entry))
	}
	RespondWithPaginatedData(c, http.StatusOK, response, params.Page, params.PerPage, int(total))
}

func (h *LedgerHandler) entryID(c *gin.Context) (uuid.UUID, bool) {
	idParam := c.Param("id")
	id, err := uuid.Parse(idParam)
	if err != nil {
		h.logger.Warn("Invalid entry ID", "id", idParam, "error", err)
		RespondBadRequest(c, "Invalid entry ID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *LedgerHandler) respondError(c *gin.Context, message string, err error) {
	status, _ := middleware.ErrorBodyFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(message, "correlation_id", middleware.GetCorrelationID(c), "error", err)
	}
	RespondWithAppError(c, err)
}

func respondPosting(c *gin.Context, result *ledger.PostingResult) {
	if result.Replayed {
		RespondOK(c, mapPostingResultToResponse(result))
		return
	}
	RespondCreated(c, mapPostingResultToResponse(result))
}

func wantsAsync(c *gin.Context) bool {
	for _, pref := range strings.Split(c.GetHeader(PreferHeader), ",") {
		if strings.EqualFold(strings.TrimSpace(pref), preferRespondAsync) {
			return true
		}
	}
	return false
}

func actorFromContext(c *gin.Context) ledger.Actor {
	subject, ok := middleware.GetSubject(c)
	if !ok {
		return ledger.Actor{}
	}
	return ledger.Actor{Type: subject.PrincipalType, ID: subject.PrincipalID}
}
