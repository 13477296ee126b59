package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tamper-evident-ledger/internal/api_gateway/middleware"
	"github.com/tamper-evident-ledger/internal/domain/apperror"
	"github.com/tamper-evident-ledger/internal/domain/ledger"
	"github.com/tamper-evident-ledger/internal/domain/shared"
	"github.com/tamper-evident-ledger/internal/platform/pagination"
)

// TypedResponse is a generic version of Response for decoding test bodies
type TypedResponse[T any] struct {
	Data          T                     `json:"data"`
	Error         *middleware.ErrorBody `json:"error,omitempty"`
	CorrelationID string                `json:"correlation_id,omitempty"`
	Meta          *MetaInfo             `json:"meta,omitempty"`
}

type MockLedgerService struct {
	mock.Mock
}

func (m *MockLedgerService) PostEntry(ctx context.Context, request *ledger.PostingRequest) (*ledger.PostingResult, error) {
	args := m.Called(ctx, request)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.PostingResult), args.Error(1)
}

func (m *MockLedgerService) SubmitPosting(ctx context.Context, request *ledger.PostingRequest) (*ledger.Command, *ledger.PostingResult, error) {
	args := m.Called(ctx, request)
	var command *ledger.Command
	if args.Get(0) != nil {
		command = args.Get(0).(*ledger.Command)
	}
	var result *ledger.PostingResult
	if args.Get(1) != nil {
		result = args.Get(1).(*ledger.PostingResult)
	}
	return command, result, args.Error(2)
}

func (m *MockLedgerService) ReverseEntry(ctx context.Context, entryID uuid.UUID, request *ledger.ReverseRequest) (*ledger.PostingResult, error) {
	args := m.Called(ctx, entryID, request)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.PostingResult), args.Error(1)
}

func (m *MockLedgerService) SubmitReversal(ctx context.Context, entryID uuid.UUID, request *ledger.ReverseRequest) (*ledger.Command, *ledger.PostingResult, error) {
	args := m.Called(ctx, entryID, request)
	var command *ledger.Command
	if args.Get(0) != nil {
		command = args.Get(0).(*ledger.Command)
	}
	var result *ledger.PostingResult
	if args.Get(1) != nil {
		result = args.Get(1).(*ledger.PostingResult)
	}
	return command, result, args.Error(2)
}

func (m *MockLedgerService) GetEntry(ctx context.Context, entryID uuid.UUID) (*ledger.Entry, error) {
	args := m.Called(ctx, entryID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Entry), args.Error(1)
}

func (m *MockLedgerService) GetStatement(ctx context.Context, accountID string, params pagination.Params) (*ledger.StatementPage, error) {
	args := m.Called(ctx, accountID, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.StatementPage), args.Error(1)
}

func (m *MockLedgerService) ListBusinessDay(ctx context.Context, businessDay string, page, perPage int) ([]*ledger.Entry, int64, error) {
	args := m.Called(ctx, businessDay, page, perPage)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*ledger.Entry), args.Get(1).(int64), args.Error(2)
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}

func newLedgerRouter(svc *MockLedgerService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewLedgerHandler(newTestLogger(), svc)
	router := gin.New()
	router.Use(middleware.CorrelationID(), middleware.Principal())
	router.POST("/entries", h.PostEntry)
	router.POST("/entries/:id/reverse", h.ReverseEntry)
	router.GET("/entries/:id", h.GetEntry)
	router.GET("/accounts/:accountId/statement", h.GetStatement)
	router.GET("/business-days/:day/entries", h.ListBusinessDay)
	return router
}

func sampleEntry() *ledger.Entry {
	id := uuid.New()
	return &ledger.Entry{
		ID:             id,
		EntryNumber:    12,
		Subledger:      shared.SubledgerCustomer,
		Description:    "Cash deposit",
		Reference:      "DEP-1",
		IdempotencyKey: "key-1",
		BusinessDay:    "2026-10-19",
		Status:         shared.EntryStatusPosted,
		EntryHash:      "entry-hash",
		CreatedAt:      time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC),
		Lines: []ledger.Line{
			{ID: uuid.New(), EntryID: id, AccountID: "cash", DebitCredit: shared.Debit, Amount: decimal.RequireFromString("100.50"), CurrencyCode: "BBD", LineNumber: 1},
			{ID: uuid.New(), EntryID: id, AccountID: "customer-1", DebitCredit: shared.Credit, Amount: decimal.RequireFromString("100.50"), CurrencyCode: "BBD", LineNumber: 2},
		},
	}
}

func sampleResult(replayed bool) *ledger.PostingResult {
	entry := sampleEntry()
	return &ledger.PostingResult{
		Entry:    entry,
		Receipt:  ledger.Receipt{EntryID: entry.ID, EntryHash: entry.EntryHash, AuditEventHash: "audit-hash"},
		Replayed: replayed,
	}
}

const postBody = `{
	"subledger": "CUSTOMER",
	"description": "Cash deposit",
	"reference": "DEP-1",
	"business_day": "2026-10-19",
	"lines": [
		{"account_id": "cash", "debit_credit": "DEBIT", "amount": "100.50", "currency_code": "BBD"},
		{"account_id": "customer-1", "debit_credit": "CREDIT", "amount": "100.50", "currency_code": "BBD"}
	]
}`

func doRequest(router *gin.Engine, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestLedgerHandler_PostEntry(t *testing.T) {
	t.Run("Created", func(t *testing.T) {
		svc := new(MockLedgerService)
		router := newLedgerRouter(svc)

		svc.On("PostEntry", mock.Anything, mock.MatchedBy(func(r *ledger.PostingRequest) bool {
			return r.IdempotencyKey == "key-1" &&
				r.CorrelationID == "corr-1" &&
				r.Actor == ledger.Actor{Type: "STAFF", ID: "staff-9"} &&
				len(r.Lines) == 2 &&
				r.Lines[0].DebitCredit == shared.Debit &&
				r.Lines[1].Amount == "100.50"
		})).Return(sampleResult(false), nil).Once()

		rr := doRequest(router, http.MethodPost, "/entries", postBody, map[string]string{
			IdempotencyKeyHeader:           "key-1",
			middleware.CorrelationIDHeader: "corr-1",
			middleware.PrincipalTypeHeader: "staff",
			middleware.PrincipalIDHeader:   "staff-9",
		})

		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
		var response TypedResponse[PostingResponse]
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
		assert.Equal(t, "corr-1", response.CorrelationID)
		assert.False(t, response.Data.Replayed)
		assert.Equal(t, "audit-hash", response.Data.Receipt.AuditEventHash)
		assert.Equal(t, "100.5", response.Data.Entry.Lines[0].Amount)
		assert.Equal(t, "POSTED", response.Data.Entry.Status)
		svc.AssertExpectations(t)
	})

	t.Run("ReplayIsOK", func(t *testing.T) {
		svc := new(MockLedgerService)
		router := newLedgerRouter(svc)
		svc.On("PostEntry", mock.Anything, mock.Anything).Return(sampleResult(true), nil).Once()

		rr := doRequest(router, http.MethodPost, "/entries", postBody, map[string]string{IdempotencyKeyHeader: "key-1"})

		assert.Equal(t, http.StatusOK, rr.Code)
		var response TypedResponse[PostingResponse]
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
		assert.True(t, response.Data.Replayed)
	})

	t.Run("MissingIdempotencyKey", func(t *testing.T) {
		svc := new(MockLedgerService)
		router := newLedgerRouter(svc)

		rr := doRequest(router, http.MethodPost, "/entries", postBody, nil)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		var response TypedResponse[any]
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
		assert.Equal(t, "VALIDATION_ERROR", response.Error.Code)
		svc.AssertNotCalled(t, "PostEntry", mock.Anything, mock.Anything)
	})

	t.Run("MalformedBody", func(t *testing.T) {
		svc := new(MockLedgerService)
		router := newLedgerRouter(svc)

		rr := doRequest(router, http.MethodPost, "/entries", `{"lines": "nope"}`, map[string]string{IdempotencyKeyHeader: "key-1"})

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		svc.AssertNotCalled(t, "PostEntry", mock.Anything, mock.Anything)
	})

	t.Run("DomainErrors", func(t *testing.T) {
		testCases := []struct {
			name    string
			err     error
			status  int
			code    string
			message string
		}{
			{"Unbalanced", apperror.Validation("Debits (100) must equal credits (90) for currency BBD"), http.StatusBadRequest, "VALIDATION_ERROR", "Debits (100) must equal credits (90) for currency BBD"},
			{"KeyReused", apperror.New(apperror.CodeIdempotencyKeyReused, "idempotency key reused"), http.StatusConflict, "IDEMPOTENCY_KEY_REUSED", "idempotency key reused"},
			{"Transient", apperror.New(apperror.CodeTransientStorage, "serialization failure"), http.StatusServiceUnavailable, "TRANSIENT_STORAGE_ERROR", "serialization failure"},
			{"Internal", errors.New("relation journal_entries does not exist"), http.StatusInternalServerError, "INTERNAL_ERROR", "An internal server error occurred"},
		}

		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				svc := new(MockLedgerService)
				router := newLedgerRouter(svc)
				svc.On("PostEntry", mock.Anything, mock.Anything).Return(nil, tc.err).Once()

				rr := doRequest(router, http.MethodPost, "/entries", postBody, map[string]string{IdempotencyKeyHeader: "key-1"})

				assert.Equal(t, tc.status, rr.Code)
				var response TypedResponse[any]
				require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
				require.NotNil(t, response.Error)
				assert.Equal(t, tc.code, response.Error.Code)
				assert.Equal(t, tc.message, response.Error.Message)
				assert.NotEmpty(t, response.CorrelationID)
			})
		}
	})

	t.Run("AsyncAccepted", func(t *testing.T) {
		svc := new(MockLedgerService)
		router := newLedgerRouter(svc)
		command := &ledger.Command{CommandID: uuid.New(), Type: ledger.CommandPostEntry, Posting: &ledger.PostingRequest{IdempotencyKey: "key-1"}}
		svc.On("SubmitPosting", mock.Anything, mock.Anything).Return(command, nil, nil).Once()

		rr := doRequest(router, http.MethodPost, "/entries", postBody, map[string]string{
			IdempotencyKeyHeader: "key-1",
			PreferHeader:         "respond-async",
		})

		assert.Equal(t, http.StatusAccepted, rr.Code)
		var response TypedResponse[CommandAcceptedResponse]
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
		assert.Equal(t, command.CommandID.String(), response.Data.CommandID)
		assert.Equal(t, "POST_ENTRY", response.Data.CommandType)
		assert.Equal(t, "key-1", response.Data.IdempotencyKey)
		assert.Equal(t, "PENDING", response.Data.Status)
		svc.AssertNotCalled(t, "PostEntry", mock.Anything, mock.Anything)
	})

	t.Run("AsyncReplayAnsweredInline", func(t *testing.T) {
		svc := new(MockLedgerService)
		router := newLedgerRouter(svc)
		svc.On("SubmitPosting", mock.Anything, mock.Anything).Return(nil, sampleResult(true), nil).Once()

		rr := doRequest(router, http.MethodPost, "/entries", postBody, map[string]string{
			IdempotencyKeyHeader: "key-1",
			PreferHeader:         "return=minimal, Respond-Async",
		})

		assert.Equal(t, http.StatusOK, rr.Code)
	})
}

func TestLedgerHandler_ReverseEntry(t *testing.T) {
	entryID := uuid.New()
	body := `{"description": "Customer dispute", "business_day": "2026-10-19"}`

	t.Run("Created", func(t *testing.T) {
		svc := new(MockLedgerService)
		router := newLedgerRouter(svc)
		result := sampleResult(false)
		result.Entry.ReversedEntryID = &entryID

		svc.On("ReverseEntry", mock.Anything, entryID, mock.MatchedBy(func(r *ledger.ReverseRequest) bool {
			return r.IdempotencyKey == "rev-1" && r.Description == "Customer dispute" && r.Actor.Type == "ANONYMOUS"
		})).Return(result, nil).Once()

		rr := doRequest(router, http.MethodPost, "/entries/"+entryID.String()+"/reverse", body, map[string]string{IdempotencyKeyHeader: "rev-1"})

		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
		var response TypedResponse[PostingResponse]
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
		assert.Equal(t, entryID.String(), response.Data.Entry.ReversedEntryID)
	})

	t.Run("AlreadyReversed", func(t *testing.T) {
		svc := new(MockLedgerService)
		router := newLedgerRouter(svc)
		svc.On("ReverseEntry", mock.Anything, entryID, mock.Anything).Return(nil, apperror.Conflict("entry has already been reversed")).Once()

		rr := doRequest(router, http.MethodPost, "/entries/"+entryID.String()+"/reverse", body, map[string]string{IdempotencyKeyHeader: "rev-2"})

		assert.Equal(t, http.StatusConflict, rr.Code)
	})

	t.Run("InvalidID", func(t *testing.T) {
		svc := new(MockLedgerService)
		router := newLedgerRouter(svc)

		rr := doRequest(router, http.MethodPost, "/entries/not-a-uuid/reverse", body, map[string]string{IdempotencyKeyHeader: "rev-1"})

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		svc.AssertNotCalled(t, "ReverseEntry", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("AsyncAccepted", func(t *testing.T) {
		svc := new(MockLedgerService)
		router := newLedgerRouter(svc)
		command := &ledger.Command{CommandID: uuid.New(), Type: ledger.CommandReverseEntry, EntryID: entryID, Reversal: &ledger.ReverseRequest{IdempotencyKey: "rev-1"}}
		svc.On("SubmitReversal", mock.Anything, entryID, mock.Anything).Return(command, nil, nil).Once()

		rr := doRequest(router, http.MethodPost, "/entries/"+entryID.String()+"/reverse", body, map[string]string{
			IdempotencyKeyHeader: "rev-1",
			PreferHeader:         "respond-async",
		})

		assert.Equal(t, http.StatusAccepted, rr.Code)
	})
}

func TestLedgerHandler_GetEntry(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		svc := new(MockLedgerService)
		router := newLedgerRouter(svc)
		entry := sampleEntry()
		svc.On("GetEntry", mock.Anything, entry.ID).Return(entry, nil).Once()

		rr := doRequest(router, http.MethodGet, "/entries/"+entry.ID.String(), "", nil)

		assert.Equal(t, http.StatusOK, rr.Code)
		var response TypedResponse[EntryResponse]
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
		assert.Equal(t, entry.ID.String(), response.Data.ID)
		assert.Equal(t, int64(12), response.Data.EntryNumber)
		assert.Len(t, response.Data.Lines, 2)
	})

	t.Run("NotFound", func(t *testing.T) {
		svc := new(MockLedgerService)
		router := newLedgerRouter(svc)
		id := uuid.New()
		svc.On("GetEntry", mock.Anything, id).Return(nil, apperror.NotFound("Journal entry not found")).Once()

		rr := doRequest(router, http.MethodGet, "/entries/"+id.String(), "", nil)

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})
}

func TestLedgerHandler_GetStatement(t *testing.T) {
	t.Run("PageWithCursor", func(t *testing.T) {
		svc := new(MockLedgerService)
		router := newLedgerRouter(svc)
		line := ledger.StatementLine{
			LineID:      uuid.New(),
			EntryID:     uuid.New(),
			AccountID:   "acc-1",
			DebitCredit: shared.Credit,
			Amount:      decimal.RequireFromString("25"),
			EntryStatus: shared.EntryStatusReversed,
		}
		svc.On("GetStatement", mock.Anything, "acc-1", pagination.Params{Limit: 1, Cursor: "abc"}).
			Return(&ledger.StatementPage{AccountID: "acc-1", Lines: []ledger.StatementLine{line}, NextCursor: "next", HasMore: true}, nil).Once()

		rr := doRequest(router, http.MethodGet, "/accounts/acc-1/statement?limit=1&cursor=abc", "", nil)

		require.Equal(t, http.StatusOK, rr.Code)
		var response TypedResponse[StatementResponse]
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
		require.Len(t, response.Data.Lines, 1)
		assert.Equal(t, "REVERSED", response.Data.Lines[0].EntryStatus)
		assert.Equal(t, "next", response.Meta.NextCursor)
		assert.True(t, response.Meta.HasMore)
	})

	t.Run("NegativeLimit", func(t *testing.T) {
		svc := new(MockLedgerService)
		router := newLedgerRouter(svc)

		rr := doRequest(router, http.MethodGet, "/accounts/acc-1/statement?limit=-1", "", nil)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("InvalidCursor", func(t *testing.T) {
		svc := new(MockLedgerService)
		router := newLedgerRouter(svc)
		svc.On("GetStatement", mock.Anything, "acc-1", mock.Anything).Return(nil, apperror.Validation("invalid cursor")).Once()

		rr := doRequest(router, http.MethodGet, "/accounts/acc-1/statement?cursor=bogus", "", nil)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestLedgerHandler_ListBusinessDay(t *testing.T) {
	t.Run("Paginated", func(t *testing.T) {
		svc := new(MockLedgerService)
		router := newLedgerRouter(svc)
		svc.On("ListBusinessDay", mock.Anything, "2026-10-19", 2, 5).Return([]*ledger.Entry{sampleEntry()}, int64(6), nil).Once()

		rr := doRequest(router, http.MethodGet, "/business-days/2026-10-19/entries?page=2&per_page=5", "", nil)

		require.Equal(t, http.StatusOK, rr.Code)
		var response TypedResponse[[]EntryResponse]
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
		assert.Len(t, response.Data, 1)
		assert.Equal(t, 2, response.Meta.Page)
		assert.Equal(t, 2, response.Meta.TotalPages)
		assert.Equal(t, 6, response.Meta.TotalItems)
	})

	t.Run("Defaults", func(t *testing.T) {
		svc := new(MockLedgerService)
		router := newLedgerRouter(svc)
		svc.On("ListBusinessDay", mock.Anything, "2026-10-19", 1, 10).Return([]*ledger.Entry{}, int64(0), nil).Once()

		rr := doRequest(router, http.MethodGet, "/business-days/2026-10-19/entries", "", nil)

		assert.Equal(t, http.StatusOK, rr.Code)
		svc.AssertExpectations(t)
	})

	t.Run("PerPageTooLarge", func(t *testing.T) {
		svc := new(MockLedgerService)
		router := newLedgerRouter(svc)

		rr := doRequest(router, http.MethodGet, "/business-days/2026-10-19/entries?per_page=500", "", nil)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}
