package mongo

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tamper-evident-ledger/internal/domain/audit"
)

const (
	AuditCollectionName = "audit_events"
)

// The sequence number is the document id, so replays of Audit.Recorded are idempotent.
type auditDocument struct {
	SequenceNumber int64     `bson:"_id"`
	ID             string    `bson:"event_id"`
	ActorType      string    `bson:"actor_type"`
	ActorID        string    `bson:"actor_id,omitempty"`
	Action         string    `bson:"action"`
	ResourceType   string    `bson:"resource_type"`
	ResourceID     string    `bson:"resource_id,omitempty"`
	Payload        string    `bson:"payload"`
	CorrelationID  string    `bson:"correlation_id,omitempty"`
	RequestID      string    `bson:"request_id,omitempty"`
	PrevHash       *string   `bson:"prev_hash"`
	Hash           string    `bson:"hash"`
	CreatedAt      time.Time `bson:"created_at"`
}

func toAuditDocument(event *audit.Event) auditDocument {
	return auditDocument{
		SequenceNumber: event.SequenceNumber,
		ID:             event.ID.String(),
		ActorType:      event.ActorType,
		ActorID:        event.ActorID,
		Action:         event.Action,
		ResourceType:   event.ResourceType,
		ResourceID:     event.ResourceID,
		Payload:        string(event.Payload),
		CorrelationID:  event.CorrelationID,
		RequestID:      event.RequestID,
		PrevHash:       event.PrevHash,
		Hash:           event.Hash,
		CreatedAt:      event.CreatedAt.UTC(),
	}
}

func (d auditDocument) toEvent() (*audit.Event, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid audit event id %q: %w", d.ID, err)
	}
	return &audit.Event{
		SequenceNumber: d.SequenceNumber,
		ID:             id,
		ActorType:      d.ActorType,
		ActorID:        d.ActorID,
		Action:         d.Action,
		ResourceType:   d.ResourceType,
		ResourceID:     d.ResourceID,
		Payload:        json.RawMessage(d.Payload),
		CorrelationID:  d.CorrelationID,
		RequestID:      d.RequestID,
		PrevHash:       d.PrevHash,
		Hash:           d.Hash,
		CreatedAt:      d.CreatedAt,
	}, nil
}

// AuditIndexes backs the search filters
func AuditIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{Keys: bson.D{{Key: "action", Value: 1}, {Key: "_id", Value: -1}}},
		{Keys: bson.D{{Key: "resource_type", Value: 1}, {Key: "resource_id", Value: 1}, {Key: "_id", Value: -1}}},
		{Keys: bson.D{{Key: "actor_id", Value: 1}, {Key: "_id", Value: -1}}},
	}
}

// AuditRepository implements audit.ProjectionRepository for MongoDB
type AuditRepository struct {
	db     *mongo.Database
	logger *slog.Logger
}

func NewAuditRepository(logger *slog.Logger, db *mongo.Database) audit.ProjectionRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

func (r *AuditRepository) Upsert(ctx context.Context, event *audit.Event) error {
	collection := r.db.Collection(AuditCollectionName)

	doc := toAuditDocument(event)
	_, err := collection.ReplaceOne(ctx, bson.M{"_id": doc.SequenceNumber}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		r.logger.Error("Failed to index audit event",
			"sequence_number", doc.SequenceNumber,
			"error", err)
		return fmt.Errorf("failed to index audit event: %w", err)
	}
	return nil
}

// Search returns matching events newest first. Before, when set, excludes events with a
// sequence number at or above it.
func (r *AuditRepository) Search(ctx context.Context, query audit.SearchQuery) ([]*audit.Event, error) {
	collection := r.db.Collection(AuditCollectionName)

	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: -1}}).
		SetLimit(int64(query.Limit))

	cursor, err := collection.Find(ctx, searchFilter(query), opts)
	if err != nil {
		r.logger.Error("Failed to search audit events", "action", query.Action, "error", err)
		return nil, fmt.Errorf("failed to search audit events: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []auditDocument
	if err := cursor.All(ctx, &docs); err != nil {
		r.logger.Error("Failed to decode audit events", "error", err)
		return nil, fmt.Errorf("failed to decode audit events: %w", err)
	}

	events := make([]*audit.Event, 0, len(docs))
	for _, doc := range docs {
		event, err := doc.toEvent()
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}

func searchFilter(query audit.SearchQuery) bson.M {
	filter := bson.M{}
	if query.Action != "" {
		filter["action"] = query.Action
	}
	if query.ResourceType != "" {
		filter["resource_type"] = query.ResourceType
	}
	if query.ResourceID != "" {
		filter["resource_id"] = query.ResourceID
	}
	if query.ActorID != "" {
		filter["actor_id"] = query.ActorID
	}
	if query.Before > 0 {
		filter["_id"] = bson.M{"$lt": query.Before}
	}
	return filter
}
