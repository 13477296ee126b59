package mongo

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/tamper-evident-ledger/internal/domain/audit"
)

func sampleAuditEvent(seq int64) *audit.Event {
	prev := "prev-hash"
	return &audit.Event{
		SequenceNumber: seq,
		ID:             uuid.New(),
		ActorType:      "STAFF",
		ActorID:        "staff-1",
		Action:         "ledger.post",
		ResourceType:   "journal_entry",
		ResourceID:     "e-1",
		Payload:        json.RawMessage(`{"entryId":"e-1","phone":"[REDACTED]"}`),
		CorrelationID:  "corr-1",
		PrevHash:       &prev,
		Hash:           "hash",
		CreatedAt:      time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC),
	}
}

func TestSearchFilter(t *testing.T) {
	assert.Equal(t, bson.M{}, searchFilter(audit.SearchQuery{Limit: 10}))

	filter := searchFilter(audit.SearchQuery{Action: "ledger.post", ResourceType: "journal_entry", ResourceID: "e-1", ActorID: "staff-1", Before: 40})
	assert.Equal(t, "ledger.post", filter["action"])
	assert.Equal(t, "journal_entry", filter["resource_type"])
	assert.Equal(t, "e-1", filter["resource_id"])
	assert.Equal(t, "staff-1", filter["actor_id"])
	assert.Equal(t, bson.M{"$lt": int64(40)}, filter["_id"])
}

func TestAuditRepository_Upsert(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("success", func(mt *mtest.T) {
		repo := &AuditRepository{db: mt.DB, logger: newTestLogger()}
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}))

		assert.NoError(t, repo.Upsert(context.Background(), sampleAuditEvent(1)))
	})

	mt.Run("failure", func(mt *mtest.T) {
		repo := &AuditRepository{db: mt.DB, logger: newTestLogger()}
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{Code: 13, Message: "unauthorized"}))

		err := repo.Upsert(context.Background(), sampleAuditEvent(1))
		assert.ErrorContains(t, err, "failed to index audit event")
	})
}

func TestAuditRepository_Search(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("decodes newest first", func(mt *mtest.T) {
		repo := &AuditRepository{db: mt.DB, logger: newTestLogger()}
		ns := mt.DB.Name() + "." + AuditCollectionName
		second, first := sampleAuditEvent(2), sampleAuditEvent(1)
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
			toBSOND(t, toAuditDocument(second)),
			toBSOND(t, toAuditDocument(first)),
		))

		events, err := repo.Search(context.Background(), audit.SearchQuery{Action: "ledger.post", Limit: 2})
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, int64(2), events[0].SequenceNumber)
		assert.Equal(t, second.ID, events[0].ID)
		assert.JSONEq(t, string(second.Payload), string(events[0].Payload))
		assert.Equal(t, "prev-hash", *events[1].PrevHash)
	})
}
