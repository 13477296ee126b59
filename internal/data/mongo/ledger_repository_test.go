package mongo

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/tamper-evident-ledger/internal/domain/ledger"
	"github.com/tamper-evident-ledger/internal/domain/shared"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func toBSOND(t *testing.T, v interface{}) bson.D {
	t.Helper()
	raw, err := bson.Marshal(v)
	require.NoError(t, err)
	var doc bson.D
	require.NoError(t, bson.Unmarshal(raw, &doc))
	return doc
}

func sampleEntry() *ledger.Entry {
	id := uuid.New()
	return &ledger.Entry{
		ID:             id,
		EntryNumber:    12,
		Subledger:      shared.SubledgerAgent,
		Description:    "Agent cash-in",
		Reference:      "REF-9",
		CorrelationID:  "corr-9",
		IdempotencyKey: "idem-9",
		BusinessDay:    "2026-10-19",
		Status:         shared.EntryStatusPosted,
		Metadata:       map[string]interface{}{"channel": "USSD"},
		EntryHash:      "hash-9",
		CreatedAt:      time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC),
		Lines: []ledger.Line{
			{ID: uuid.New(), EntryID: id, AccountID: "agent-float", DebitCredit: shared.Debit, Amount: decimal.RequireFromString("1234567890.12345678"), CurrencyCode: "BBD", LineNumber: 1},
			{ID: uuid.New(), EntryID: id, AccountID: "wallet", DebitCredit: shared.Credit, Amount: decimal.RequireFromString("1234567890.12345678"), CurrencyCode: "BBD", LineNumber: 2},
		},
	}
}

func TestEntryDocument_PreservesAmounts(t *testing.T) {
	entry := sampleEntry()
	reversed := uuid.New()
	entry.ReversedEntryID = &reversed

	doc := toEntryDocument(entry)
	assert.Equal(t, "1234567890.12345678", doc.Lines[0].Amount)
	assert.Equal(t, reversed.String(), doc.ReversedEntryID)

	back, err := doc.toEntry()
	require.NoError(t, err)
	assert.True(t, entry.Lines[0].Amount.Equal(back.Lines[0].Amount))
	assert.Equal(t, entry.ID, back.Lines[1].EntryID)
	assert.Equal(t, entry.CreatedAt, back.Lines[1].CreatedAt)
	assert.Equal(t, reversed, *back.ReversedEntryID)

	doc.Lines[0].Amount = "not-a-number"
	_, err = doc.toEntry()
	assert.Error(t, err)
}

func TestLedgerRepository_Upsert(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("success", func(mt *mtest.T) {
		repo := &LedgerRepository{db: mt.DB, logger: newTestLogger()}
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}))

		assert.NoError(t, repo.Upsert(context.Background(), sampleEntry()))
	})

	mt.Run("write error", func(mt *mtest.T) {
		repo := &LedgerRepository{db: mt.DB, logger: newTestLogger()}
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{Index: 0, Code: 11000, Message: "duplicate key"}))

		err := repo.Upsert(context.Background(), sampleEntry())
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "failed to project ledger entry")
	})
}

func TestLedgerRepository_MarkReversed(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	originalID := uuid.New()

	mt.Run("matched", func(mt *mtest.T) {
		repo := &LedgerRepository{db: mt.DB, logger: newTestLogger()}
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}, bson.E{Key: "nModified", Value: 1}))

		assert.NoError(t, repo.MarkReversed(context.Background(), originalID, uuid.New()))
	})

	mt.Run("original not projected", func(mt *mtest.T) {
		repo := &LedgerRepository{db: mt.DB, logger: newTestLogger()}
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}))

		err := repo.MarkReversed(context.Background(), originalID, uuid.New())
		assert.ErrorIs(t, err, ledger.ErrEntryNotFound{ID: originalID})
	})
}

func TestLedgerRepository_ListAndCountByBusinessDay(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("list", func(mt *mtest.T) {
		repo := &LedgerRepository{db: mt.DB, logger: newTestLogger()}
		entry := sampleEntry()
		ns := mt.DB.Name() + "." + LedgerCollectionName
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, toBSOND(t, toEntryDocument(entry))))

		entries, err := repo.ListByBusinessDay(context.Background(), "2026-10-19", 20, 0)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, entry.ID, entries[0].ID)
		assert.Equal(t, shared.SubledgerAgent, entries[0].Subledger)
		assert.Len(t, entries[0].Lines, 2)
	})

	mt.Run("count", func(mt *mtest.T) {
		repo := &LedgerRepository{db: mt.DB, logger: newTestLogger()}
		ns := mt.DB.Name() + "." + LedgerCollectionName
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{{Key: "n", Value: int32(3)}}))

		count, err := repo.CountByBusinessDay(context.Background(), "2026-10-19")
		require.NoError(t, err)
		assert.Equal(t, int64(3), count)
	})

	mt.Run("list command error", func(mt *mtest.T) {
		repo := &LedgerRepository{db: mt.DB, logger: newTestLogger()}
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{Code: 2, Message: "bad query"}))

		_, err := repo.ListByBusinessDay(context.Background(), "2026-10-19", 20, 0)
		assert.ErrorContains(t, err, "failed to list ledger entries")
	})
}

func TestLedgerIndexes(t *testing.T) {
	indexes := LedgerIndexes()
	require.Len(t, indexes, 3)
	assert.True(t, *indexes[1].Options.Unique)
}

func TestProjectionIndexes(t *testing.T) {
	indexes := ProjectionIndexes()
	assert.Len(t, indexes[LedgerCollectionName], len(LedgerIndexes()))
	assert.Len(t, indexes[AuditCollectionName], len(AuditIndexes()))
}
