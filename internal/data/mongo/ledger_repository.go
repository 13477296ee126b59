// Package mongo holds the MongoDB read models fed by the outbox publisher.
package mongo

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tamper-evident-ledger/internal/domain/ledger"
	"github.com/tamper-evident-ledger/internal/domain/shared"
)

const (
	// LedgerCollectionName is the name of the ledger projection collection in MongoDB
	LedgerCollectionName = "ledger_entries"
)

type entryDocument struct {
	ID              string                 `bson:"_id"`
	EntryNumber     int64                  `bson:"entry_number"`
	Subledger       string                 `bson:"subledger"`
	Description     string                 `bson:"description"`
	Reference       string                 `bson:"reference"`
	CorrelationID   string                 `bson:"correlation_id,omitempty"`
	IdempotencyKey  string                 `bson:"idempotency_key"`
	BusinessDay     string                 `bson:"business_day"`
	Status          string                 `bson:"status"`
	ReversedEntryID string                 `bson:"reversed_entry_id,omitempty"`
	ReversedBy      string                 `bson:"reversed_by,omitempty"`
	Metadata        map[string]interface{} `bson:"metadata,omitempty"`
	EntryHash       string                 `bson:"entry_hash"`
	CreatedAt       time.Time              `bson:"created_at"`
	Lines           []lineDocument         `bson:"lines"`
}

// Amounts are kept as decimal strings; BSON doubles would lose precision.
type lineDocument struct {
	ID           string `bson:"id"`
	AccountID    string `bson:"account_id"`
	DebitCredit  string `bson:"debit_credit"`
	Amount       string `bson:"amount"`
	CurrencyCode string `bson:"currency_code"`
	LineNumber   int    `bson:"line_number"`
}

func toEntryDocument(entry *ledger.Entry) entryDocument {
	doc := entryDocument{
		ID:             entry.ID.String(),
		EntryNumber:    entry.EntryNumber,
		Subledger:      string(entry.Subledger),
		Description:    entry.Description,
		Reference:      entry.Reference,
		CorrelationID:  entry.CorrelationID,
		IdempotencyKey: entry.IdempotencyKey,
		BusinessDay:    entry.BusinessDay,
		Status:         string(entry.Status),
		Metadata:       entry.Metadata,
		EntryHash:      entry.EntryHash,
		CreatedAt:      entry.CreatedAt.UTC(),
		Lines:          make([]lineDocument, len(entry.Lines)),
	}
	if entry.ReversedEntryID != nil {
		doc.ReversedEntryID = entry.ReversedEntryID.String()
	}
	for i, line := range entry.Lines {
		doc.Lines[i] = lineDocument{
			ID:           line.ID.String(),
			AccountID:    line.AccountID,
			DebitCredit:  string(line.DebitCredit),
			Amount:       line.Amount.String(),
			CurrencyCode: line.CurrencyCode,
			LineNumber:   line.LineNumber,
		}
	}
	return doc
}

func (d entryDocument) toEntry() (*ledger.Entry, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid entry id %q: %w", d.ID, err)
	}
	entry := &ledger.Entry{
		ID:             id,
		EntryNumber:    d.EntryNumber,
		Subledger:      shared.Subledger(d.Subledger),
		Description:    d.Description,
		Reference:      d.Reference,
		CorrelationID:  d.CorrelationID,
		IdempotencyKey: d.IdempotencyKey,
		BusinessDay:    d.BusinessDay,
		Status:         shared.EntryStatus(d.Status),
		Metadata:       d.Metadata,
		EntryHash:      d.EntryHash,
		CreatedAt:      d.CreatedAt,
		Lines:          make([]ledger.Line, len(d.Lines)),
	}
	if d.ReversedEntryID != "" {
		reversed, err := uuid.Parse(d.ReversedEntryID)
		if err != nil {
			return nil, fmt.Errorf("invalid reversed entry id %q: %w", d.ReversedEntryID, err)
		}
		entry.ReversedEntryID = &reversed
	}
	for i, l := range d.Lines {
		lineID, err := uuid.Parse(l.ID)
		if err != nil {
			return nil, fmt.Errorf("invalid line id %q: %w", l.ID, err)
		}
		amount, err := decimal.NewFromString(l.Amount)
		if err != nil {
			return nil, fmt.Errorf("invalid amount %q: %w", l.Amount, err)
		}
		entry.Lines[i] = ledger.Line{
			ID:           lineID,
			EntryID:      id,
			AccountID:    l.AccountID,
			DebitCredit:  shared.DebitCredit(l.DebitCredit),
			Amount:       amount,
			CurrencyCode: l.CurrencyCode,
			LineNumber:   l.LineNumber,
			CreatedAt:    d.CreatedAt,
		}
	}
	return entry, nil
}

// LedgerIndexes supports listing by business day and lookups by idempotency key
func LedgerIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{Keys: bson.D{{Key: "business_day", Value: 1}, {Key: "entry_number", Value: 1}}},
		{Keys: bson.D{{Key: "idempotency_key", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "lines.account_id", Value: 1}}},
	}
}

// LedgerRepository implements ledger.ProjectionRepository for MongoDB
type LedgerRepository struct {
	db     *mongo.Database
	logger *slog.Logger
}

func NewLedgerRepository(logger *slog.Logger, db *mongo.Database) ledger.ProjectionRepository {
	return &LedgerRepository{
		db:     db,
		logger: logger,
	}
}

// Upsert replaces the projected entry. Replaying the same event is a no-op.
func (r *LedgerRepository) Upsert(ctx context.Context, entry *ledger.Entry) error {
	collection := r.db.Collection(LedgerCollectionName)

	doc := toEntryDocument(entry)
	_, err := collection.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		r.logger.Error("Failed to project ledger entry",
			"entry_id", doc.ID,
			"error", err)
		return fmt.Errorf("failed to project ledger entry: %w", err)
	}

	return nil
}

// MarkReversed flags the original entry of a reversal.
// Returns ErrEntryNotFound if the original was never projected.
func (r *LedgerRepository) MarkReversed(ctx context.Context, originalID uuid.UUID, reversalID uuid.UUID) error {
	collection := r.db.Collection(LedgerCollectionName)

	filter := bson.M{"_id": originalID.String()}
	update := bson.M{
		"$set": bson.M{
			"status":      string(shared.EntryStatusReversed),
			"reversed_by": reversalID.String(),
		},
	}

	result, err := collection.UpdateOne(ctx, filter, update)
	if err != nil {
		r.logger.Error("Failed to mark ledger entry reversed",
			"entry_id", originalID.String(),
			"error", err)
		return fmt.Errorf("failed to mark ledger entry reversed: %w", err)
	}

	if result.MatchedCount == 0 {
		return ledger.ErrEntryNotFound{ID: originalID}
	}

	return nil
}

// ListByBusinessDay returns entries of one business day in posting order
func (r *LedgerRepository) ListByBusinessDay(ctx context.Context, businessDay string, limit, offset int) ([]*ledger.Entry, error) {
	collection := r.db.Collection(LedgerCollectionName)

	filter := bson.M{"business_day": businessDay}
	opts := options.Find().
		SetSort(bson.D{{Key: "entry_number", Value: 1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))

	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		r.logger.Error("Failed to list ledger entries",
			"business_day", businessDay,
			"error", err)
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []entryDocument
	if err := cursor.All(ctx, &docs); err != nil {
		r.logger.Error("Failed to decode ledger entries",
			"business_day", businessDay,
			"error", err)
		return nil, fmt.Errorf("failed to decode ledger entries: %w", err)
	}

	entries := make([]*ledger.Entry, 0, len(docs))
	for _, doc := range docs {
		entry, err := doc.toEntry()
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (r *LedgerRepository) CountByBusinessDay(ctx context.Context, businessDay string) (int64, error) {
	collection := r.db.Collection(LedgerCollectionName)

	count, err := collection.CountDocuments(ctx, bson.M{"business_day": businessDay})
	if err != nil {
		r.logger.Error("Failed to count ledger entries",
			"business_day", businessDay,
			"error", err)
		return 0, fmt.Errorf("failed to count ledger entries: %w", err)
	}

	return count, nil
}
