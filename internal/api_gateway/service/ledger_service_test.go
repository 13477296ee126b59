package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tamper-evident-ledger/internal/domain/apperror"
	"github.com/tamper-evident-ledger/internal/domain/ledger"
	"github.com/tamper-evident-ledger/internal/domain/shared"
	"github.com/tamper-evident-ledger/internal/platform/pagination"
)

type MockLedgerEngine struct {
	mock.Mock
}

func (m *MockLedgerEngine) PostEntry(ctx context.Context, request *ledger.PostingRequest) (*ledger.PostingResult, error) {
	args := m.Called(ctx, request)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.PostingResult), args.Error(1)
}

func (m *MockLedgerEngine) ReverseEntry(ctx context.Context, entryID uuid.UUID, request *ledger.ReverseRequest) (*ledger.PostingResult, error) {
	args := m.Called(ctx, entryID, request)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.PostingResult), args.Error(1)
}

func (m *MockLedgerEngine) GetEntry(ctx context.Context, entryID uuid.UUID) (*ledger.Entry, error) {
	args := m.Called(ctx, entryID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Entry), args.Error(1)
}

func (m *MockLedgerEngine) GetStatement(ctx context.Context, accountID string, params pagination.Params) (*ledger.StatementPage, error) {
	args := m.Called(ctx, accountID, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.StatementPage), args.Error(1)
}

type MockLedgerRepository struct {
	mock.Mock
}

func (m *MockLedgerRepository) CreateEntry(ctx context.Context, entry *ledger.Entry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockLedgerRepository) GetByID(ctx context.Context, id uuid.UUID) (*ledger.Entry, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Entry), args.Error(1)
}

func (m *MockLedgerRepository) GetByIdempotencyKey(ctx context.Context, key string) (*ledger.Entry, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Entry), args.Error(1)
}

func (m *MockLedgerRepository) FindReversalOf(ctx context.Context, id uuid.UUID) (*ledger.Entry, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Entry), args.Error(1)
}

func (m *MockLedgerRepository) GetStatement(ctx context.Context, query ledger.StatementQuery) ([]ledger.StatementLine, error) {
	args := m.Called(ctx, query)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]ledger.StatementLine), args.Error(1)
}

func (m *MockLedgerRepository) WithTx(tx pgx.Tx) ledger.Repository {
	return m
}

type MockLedgerProjection struct {
	mock.Mock
}

func (m *MockLedgerProjection) Upsert(ctx context.Context, entry *ledger.Entry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockLedgerProjection) MarkReversed(ctx context.Context, originalID uuid.UUID, reversalID uuid.UUID) error {
	args := m.Called(ctx, originalID, reversalID)
	return args.Error(0)
}

func (m *MockLedgerProjection) ListByBusinessDay(ctx context.Context, businessDay string, limit, offset int) ([]*ledger.Entry, error) {
	args := m.Called(ctx, businessDay, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*ledger.Entry), args.Error(1)
}

func (m *MockLedgerProjection) CountByBusinessDay(ctx context.Context, businessDay string) (int64, error) {
	args := m.Called(ctx, businessDay)
	return args.Get(0).(int64), args.Error(1)
}

type MockCommandPublisher struct {
	mock.Mock
}

func (m *MockCommandPublisher) PublishCommand(ctx context.Context, command *ledger.Command) error {
	args := m.Called(ctx, command)
	return args.Error(0)
}

func (m *MockCommandPublisher) Close() error {
	args := m.Called()
	return args.Error(0)
}

var fixedNow = time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)

type ledgerMocks struct {
	engine     *MockLedgerEngine
	repo       *MockLedgerRepository
	projection *MockLedgerProjection
	producer   *MockCommandPublisher
}

func newTestLedgerService() (*LedgerServiceImpl, ledgerMocks) {
	mocks := ledgerMocks{
		engine:     new(MockLedgerEngine),
		repo:       new(MockLedgerRepository),
		projection: new(MockLedgerProjection),
		producer:   new(MockCommandPublisher),
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	s := NewLedgerService(logger, mocks.engine, mocks.repo, mocks.projection, mocks.producer)
	s.now = func() time.Time { return fixedNow }
	return s, mocks
}

func validPosting() *ledger.PostingRequest {
	return &ledger.PostingRequest{
		IdempotencyKey: "key-1",
		Subledger:      shared.SubledgerCustomer,
		Description:    "Cash deposit",
		Reference:      "DEP-1",
		CorrelationID:  "corr-1",
		BusinessDay:    "2026-10-19",
		Lines: []ledger.PostingLine{
			{AccountID: "cash", DebitCredit: shared.Debit, Amount: "100.00", CurrencyCode: "BBD"},
			{AccountID: "customer-1", DebitCredit: shared.Credit, Amount: "100.00", CurrencyCode: "BBD"},
		},
		Actor: ledger.Actor{Type: "STAFF", ID: "staff-1"},
	}
}

func validReversal() *ledger.ReverseRequest {
	return &ledger.ReverseRequest{
		IdempotencyKey: "rev-key-1",
		CorrelationID:  "corr-2",
		Description:    "Customer dispute",
		BusinessDay:    "2026-10-19",
		Actor:          ledger.Actor{Type: "STAFF", ID: "staff-2"},
	}
}

func TestLedgerServiceImpl_SubmitPosting(t *testing.T) {
	ctx := context.Background()

	t.Run("PublishesCommand", func(t *testing.T) {
		s, m := newTestLedgerService()
		request := validPosting()

		m.repo.On("GetByIdempotencyKey", ctx, "key-1").Return(nil, ledger.ErrEntryNotFound{IdempotencyKey: "key-1"}).Once()
		m.producer.On("PublishCommand", ctx, mock.MatchedBy(func(c *ledger.Command) bool {
			return c.Type == ledger.CommandPostEntry && c.Posting == request && c.CorrelationID == "corr-1"
		})).Return(nil).Once()

		command, result, err := s.SubmitPosting(ctx, request)
		require.NoError(t, err)

		assert.Nil(t, result)
		require.NotNil(t, command)
		assert.NotEqual(t, uuid.Nil, command.CommandID)
		assert.Equal(t, fixedNow, command.Timestamp)
		m.engine.AssertNotCalled(t, "PostEntry", mock.Anything, mock.Anything)
		m.producer.AssertExpectations(t)
	})

	t.Run("InvalidRequestIsNotPublished", func(t *testing.T) {
		s, m := newTestLedgerService()
		request := validPosting()
		request.Lines[1].Amount = "90.00"

		command, result, err := s.SubmitPosting(ctx, request)

		assert.Nil(t, command)
		assert.Nil(t, result)
		assert.Equal(t, apperror.CodeValidation, apperror.CodeOf(err))
		m.repo.AssertNotCalled(t, "GetByIdempotencyKey", mock.Anything, mock.Anything)
		m.producer.AssertNotCalled(t, "PublishCommand", mock.Anything, mock.Anything)
	})

	t.Run("UsedKeyAnsweredSynchronously", func(t *testing.T) {
		s, m := newTestLedgerService()
		request := validPosting()
		replay := &ledger.PostingResult{Entry: &ledger.Entry{ID: uuid.New()}, Replayed: true}

		m.repo.On("GetByIdempotencyKey", ctx, "key-1").Return(&ledger.Entry{ID: replay.Entry.ID}, nil).Once()
		m.engine.On("PostEntry", ctx, request).Return(replay, nil).Once()

		command, result, err := s.SubmitPosting(ctx, request)
		require.NoError(t, err)

		assert.Nil(t, command)
		assert.Same(t, replay, result)
		m.producer.AssertNotCalled(t, "PublishCommand", mock.Anything, mock.Anything)
	})

	t.Run("ReusedKeySurfacesEngineError", func(t *testing.T) {
		s, m := newTestLedgerService()
		request := validPosting()
		reused := apperror.New(apperror.CodeIdempotencyKeyReused, "idempotency key reused with a different request")

		m.repo.On("GetByIdempotencyKey", ctx, "key-1").Return(&ledger.Entry{ID: uuid.New()}, nil).Once()
		m.engine.On("PostEntry", ctx, request).Return(nil, reused).Once()

		_, _, err := s.SubmitPosting(ctx, request)
		assert.Equal(t, apperror.CodeIdempotencyKeyReused, apperror.CodeOf(err))
	})

	t.Run("LookupFailure", func(t *testing.T) {
		s, m := newTestLedgerService()

		m.repo.On("GetByIdempotencyKey", ctx, "key-1").Return(nil, errors.New("db down")).Once()

		_, _, err := s.SubmitPosting(ctx, validPosting())
		assert.Error(t, err)
		m.producer.AssertNotCalled(t, "PublishCommand", mock.Anything, mock.Anything)
	})

	t.Run("PublishFailureIsTransient", func(t *testing.T) {
		s, m := newTestLedgerService()

		m.repo.On("GetByIdempotencyKey", ctx, "key-1").Return(nil, ledger.ErrEntryNotFound{IdempotencyKey: "key-1"}).Once()
		m.producer.On("PublishCommand", ctx, mock.Anything).Return(errors.New("broker unavailable")).Once()

		command, _, err := s.SubmitPosting(ctx, validPosting())
		assert.Nil(t, command)
		assert.Equal(t, apperror.CodeTransientStorage, apperror.CodeOf(err))
		assert.True(t, apperror.IsRetryable(err))
	})

	t.Run("NoProducer", func(t *testing.T) {
		s, m := newTestLedgerService()
		s.producer = nil

		m.repo.On("GetByIdempotencyKey", ctx, "key-1").Return(nil, ledger.ErrEntryNotFound{IdempotencyKey: "key-1"}).Once()

		_, _, err := s.SubmitPosting(ctx, validPosting())
		assert.Equal(t, apperror.CodeInternal, apperror.CodeOf(err))
	})
}

func TestLedgerServiceImpl_SubmitReversal(t *testing.T) {
	ctx := context.Background()
	entryID := uuid.New()

	t.Run("PublishesCommand", func(t *testing.T) {
		s, m := newTestLedgerService()
		request := validReversal()

		m.repo.On("GetByIdempotencyKey", ctx, "rev-key-1").Return(nil, ledger.ErrEntryNotFound{IdempotencyKey: "rev-key-1"}).Once()
		m.engine.On("GetEntry", ctx, entryID).Return(&ledger.Entry{ID: entryID}, nil).Once()
		m.producer.On("PublishCommand", ctx, mock.MatchedBy(func(c *ledger.Command) bool {
			return c.Type == ledger.CommandReverseEntry && c.EntryID == entryID && c.Reversal == request
		})).Return(nil).Once()

		command, result, err := s.SubmitReversal(ctx, entryID, request)
		require.NoError(t, err)

		assert.Nil(t, result)
		require.NotNil(t, command)
		assert.Equal(t, "rev-key-1", command.IdempotencyKey())
		m.producer.AssertExpectations(t)
	})

	t.Run("UnknownOriginal", func(t *testing.T) {
		s, m := newTestLedgerService()

		m.repo.On("GetByIdempotencyKey", ctx, "rev-key-1").Return(nil, ledger.ErrEntryNotFound{IdempotencyKey: "rev-key-1"}).Once()
		m.engine.On("GetEntry", ctx, entryID).Return(nil, apperror.NotFound("entry not found")).Once()

		command, _, err := s.SubmitReversal(ctx, entryID, validReversal())
		assert.Nil(t, command)
		assert.Equal(t, apperror.CodeNotFound, apperror.CodeOf(err))
		m.producer.AssertNotCalled(t, "PublishCommand", mock.Anything, mock.Anything)
	})

	t.Run("UsedKeyAnsweredSynchronously", func(t *testing.T) {
		s, m := newTestLedgerService()
		request := validReversal()
		replay := &ledger.PostingResult{Entry: &ledger.Entry{ID: uuid.New(), ReversedEntryID: &entryID}, Replayed: true}

		m.repo.On("GetByIdempotencyKey", ctx, "rev-key-1").Return(replay.Entry, nil).Once()
		m.engine.On("ReverseEntry", ctx, entryID, request).Return(replay, nil).Once()

		command, result, err := s.SubmitReversal(ctx, entryID, request)
		require.NoError(t, err)
		assert.Nil(t, command)
		assert.True(t, result.Replayed)
	})

	t.Run("MissingDescription", func(t *testing.T) {
		s, _ := newTestLedgerService()
		request := validReversal()
		request.Description = " "

		_, _, err := s.SubmitReversal(ctx, entryID, request)
		assert.Equal(t, apperror.CodeValidation, apperror.CodeOf(err))
	})
}

func TestLedgerServiceImpl_ListBusinessDay(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		s, m := newTestLedgerService()
		entries := []*ledger.Entry{{ID: uuid.New()}, {ID: uuid.New()}}

		m.projection.On("ListByBusinessDay", ctx, "2026-10-19", 10, 20).Return(entries, nil).Once()
		m.projection.On("CountByBusinessDay", ctx, "2026-10-19").Return(int64(22), nil).Once()

		result, total, err := s.ListBusinessDay(ctx, "2026-10-19", 3, 10)
		require.NoError(t, err)
		assert.Equal(t, entries, result)
		assert.Equal(t, int64(22), total)
	})

	t.Run("ClampsPaging", func(t *testing.T) {
		s, m := newTestLedgerService()

		m.projection.On("ListByBusinessDay", ctx, "2026-10-19", maxBusinessDayPageSize, 0).Return([]*ledger.Entry{}, nil).Once()
		m.projection.On("CountByBusinessDay", ctx, "2026-10-19").Return(int64(0), nil).Once()

		_, _, err := s.ListBusinessDay(ctx, "2026-10-19", 0, 1000)
		require.NoError(t, err)
		m.projection.AssertExpectations(t)
	})

	t.Run("InvalidDay", func(t *testing.T) {
		s, m := newTestLedgerService()

		_, _, err := s.ListBusinessDay(ctx, "19/10/2026", 1, 10)
		assert.Equal(t, apperror.CodeValidation, apperror.CodeOf(err))
		m.projection.AssertNotCalled(t, "ListByBusinessDay", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("CountFailure", func(t *testing.T) {
		s, m := newTestLedgerService()

		m.projection.On("ListByBusinessDay", ctx, "2026-10-19", 10, 0).Return([]*ledger.Entry{}, nil).Once()
		m.projection.On("CountByBusinessDay", ctx, "2026-10-19").Return(int64(0), errors.New("mongo down")).Once()

		_, _, err := s.ListBusinessDay(ctx, "2026-10-19", 1, 10)
		assert.EqualError(t, err, "mongo down")
	})
}

func TestLedgerServiceImpl_Delegates(t *testing.T) {
	ctx := context.Background()
	s, m := newTestLedgerService()
	entryID := uuid.New()
	params := pagination.Params{Limit: 5}

	m.engine.On("GetEntry", ctx, entryID).Return(&ledger.Entry{ID: entryID}, nil).Once()
	m.engine.On("GetStatement", ctx, "acc-1", params).Return(&ledger.StatementPage{AccountID: "acc-1"}, nil).Once()

	entry, err := s.GetEntry(ctx, entryID)
	require.NoError(t, err)
	assert.Equal(t, entryID, entry.ID)

	page, err := s.GetStatement(ctx, "acc-1", params)
	require.NoError(t, err)
	assert.Equal(t, "acc-1", page.AccountID)
	m.engine.AssertExpectations(t)
}
