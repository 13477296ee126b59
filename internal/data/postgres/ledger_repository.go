// Package postgres provides PostgreSQL implementations of the domain repositories.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/tamper-evident-ledger/internal/domain/ledger"
	"github.com/tamper-evident-ledger/internal/platform/persistence"
)

const entryColumns = `
	je.id, je.entry_number, je.subledger, je.description, je.reference,
	COALESCE(je.correlation_id, ''), je.idempotency_key, je.request_hash,
	to_char(je.business_day, 'YYYY-MM-DD'), je.reversed_entry_id, je.metadata,
	je.entry_hash, je.created_at,
	EXISTS (SELECT 1 FROM journal_entries r WHERE r.reversed_entry_id = je.id)`

// LedgerRepository implements ledger.Repository for PostgreSQL
type LedgerRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

func NewLedgerRepository(logger *slog.Logger, db *persistence.PostgresDB) ledger.Repository {
	return &LedgerRepository{
		querier: db.Querier(),
		logger:  logger,
	}
}

// WithTx binds the repository to tx so entry, lines, outbox and audit rows commit together.
func (r *LedgerRepository) WithTx(tx pgx.Tx) ledger.Repository {
	return &LedgerRepository{
		querier: tx,
		logger:  r.logger,
	}
}

// CreateEntry inserts the entry and then its lines. Lines share the entry's created_at so
// statement ordering follows posting order.
func (r *LedgerRepository) CreateEntry(ctx context.Context, entry *ledger.Entry) error {
	metadata, err := encodeMetadata(entry.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO journal_entries (
			id, subledger, description, reference, correlation_id, idempotency_key,
			request_hash, business_day, reversed_entry_id, metadata, entry_hash
		)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9, $10, $11)
		RETURNING entry_number, created_at
	`

	err = r.querier.QueryRow(ctx, query,
		entry.ID,
		entry.Subledger,
		entry.Description,
		entry.Reference,
		entry.CorrelationID,
		entry.IdempotencyKey,
		entry.RequestHash,
		entry.BusinessDay,
		entry.ReversedEntryID,
		metadata,
		entry.EntryHash,
	).Scan(&entry.EntryNumber, &entry.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to insert journal entry",
			"entry_id", entry.ID.String(),
			"idempotency_key", entry.IdempotencyKey,
			"error", err,
		)
		return fmt.Errorf("failed to insert journal entry: %w", err)
	}

	lineQuery := `
		INSERT INTO journal_lines (id, entry_id, account_id, debit_credit, amount, currency_code, line_number, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	for i := range entry.Lines {
		line := &entry.Lines[i]
		line.EntryID = entry.ID
		line.CreatedAt = entry.CreatedAt
		_, err := r.querier.Exec(ctx, lineQuery,
			line.ID,
			line.EntryID,
			line.AccountID,
			line.DebitCredit,
			line.Amount,
			line.CurrencyCode,
			line.LineNumber,
			line.CreatedAt,
		)
		if err != nil {
			r.logger.Error("Failed to insert journal line",
				"entry_id", entry.ID.String(),
				"line_number", line.LineNumber,
				"error", err,
			)
			return fmt.Errorf("failed to insert journal line %d: %w", line.LineNumber, err)
		}
	}

	return nil
}

func (r *LedgerRepository) GetByID(ctx context.Context, id uuid.UUID) (*ledger.Entry, error) {
	query := `SELECT` + entryColumns + `
		FROM journal_entries je
		WHERE je.id = $1
	`
	entry, err := r.getOne(ctx, query, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ledger.ErrEntryNotFound{ID: id}
	}
	if err != nil {
		r.logger.Error("Failed to get journal entry", "entry_id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get journal entry: %w", err)
	}
	return entry, nil
}

func (r *LedgerRepository) GetByIdempotencyKey(ctx context.Context, key string) (*ledger.Entry, error) {
	query := `SELECT` + entryColumns + `
		FROM journal_entries je
		WHERE je.idempotency_key = $1
	`
	entry, err := r.getOne(ctx, query, key)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ledger.ErrEntryNotFound{IdempotencyKey: key}
	}
	if err != nil {
		r.logger.Error("Failed to get journal entry by idempotency key", "idempotency_key", key, "error", err)
		return nil, fmt.Errorf("failed to get journal entry by idempotency key: %w", err)
	}
	return entry, nil
}

func (r *LedgerRepository) FindReversalOf(ctx context.Context, id uuid.UUID) (*ledger.Entry, error) {
	query := `SELECT` + entryColumns + `
		FROM journal_entries je
		WHERE je.reversed_entry_id = $1
	`
	entry, err := r.getOne(ctx, query, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ledger.ErrEntryNotFound{ID: id}
	}
	if err != nil {
		r.logger.Error("Failed to find reversal", "entry_id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to find reversal: %w", err)
	}
	return entry, nil
}

// GetStatement returns up to query.Limit lines of one account, newest first. Keyset
// pagination on (created_at, id) keeps pages stable while new entries are posted.
func (r *LedgerRepository) GetStatement(ctx context.Context, query ledger.StatementQuery) ([]ledger.StatementLine, error) {
	var sb strings.Builder
	sb.WriteString(`
		SELECT jl.id, jl.entry_id, je.entry_number, jl.account_id, jl.debit_credit,
			jl.amount::text, jl.currency_code, jl.line_number, je.description, je.reference,
			COALESCE(je.correlation_id, ''), to_char(je.business_day, 'YYYY-MM-DD'),
			EXISTS (SELECT 1 FROM journal_entries r WHERE r.reversed_entry_id = je.id),
			jl.created_at
		FROM journal_lines jl
		JOIN journal_entries je ON je.id = jl.entry_id
		WHERE jl.account_id = $1`)

	args := []interface{}{query.AccountID}
	if query.AfterTime != nil {
		sb.WriteString(`
			AND (jl.created_at, jl.id) < ($2, $3)`)
		args = append(args, *query.AfterTime, query.AfterID)
	}
	args = append(args, query.Limit)
	sb.WriteString(fmt.Sprintf(`
		ORDER BY jl.created_at DESC, jl.id DESC
		LIMIT $%d`, len(args)))

	rows, err := r.querier.Query(ctx, sb.String(), args...)
	if err != nil {
		r.logger.Error("Failed to query statement", "account_id", query.AccountID, "error", err)
		return nil, fmt.Errorf("failed to query statement: %w", err)
	}
	defer rows.Close()

	lines := make([]ledger.StatementLine, 0, query.Limit)
	for rows.Next() {
		var (
			line     ledger.StatementLine
			amount   string
			reversed bool
		)
		if err := rows.Scan(
			&line.LineID,
			&line.EntryID,
			&line.EntryNumber,
			&line.AccountID,
			&line.DebitCredit,
			&amount,
			&line.CurrencyCode,
			&line.LineNumber,
			&line.Description,
			&line.Reference,
			&line.CorrelationID,
			&line.BusinessDay,
			&reversed,
			&line.CreatedAt,
		); err != nil {
			r.logger.Error("Failed to scan statement line", "error", err)
			return nil, fmt.Errorf("failed to scan statement line: %w", err)
		}
		if line.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("failed to parse amount %q: %w", amount, err)
		}
		line.EntryStatus = ledger.DeriveStatus(reversed)
		lines = append(lines, line)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("Error iterating over statement lines", "error", err)
		return nil, fmt.Errorf("error iterating over statement lines: %w", err)
	}

	return lines, nil
}

func (r *LedgerRepository) getOne(ctx context.Context, query string, arg interface{}) (*ledger.Entry, error) {
	var (
		entry    ledger.Entry
		metadata []byte
		reversed bool
	)
	err := r.querier.QueryRow(ctx, query, arg).Scan(
		&entry.ID,
		&entry.EntryNumber,
		&entry.Subledger,
		&entry.Description,
		&entry.Reference,
		&entry.CorrelationID,
		&entry.IdempotencyKey,
		&entry.RequestHash,
		&entry.BusinessDay,
		&entry.ReversedEntryID,
		&metadata,
		&entry.EntryHash,
		&entry.CreatedAt,
		&reversed,
	)
	if err != nil {
		return nil, err
	}
	entry.Status = ledger.DeriveStatus(reversed)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &entry.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode entry metadata: %w", err)
		}
	}

	lines, err := r.getLines(ctx, entry.ID)
	if err != nil {
		return nil, err
	}
	entry.Lines = lines
	return &entry, nil
}

func (r *LedgerRepository) getLines(ctx context.Context, entryID uuid.UUID) ([]ledger.Line, error) {
	query := `
		SELECT id, entry_id, account_id, debit_credit, amount::text, currency_code, line_number, created_at
		FROM journal_lines
		WHERE entry_id = $1
		ORDER BY line_number ASC
	`

	rows, err := r.querier.Query(ctx, query, entryID)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal lines: %w", err)
	}
	defer rows.Close()

	var lines []ledger.Line
	for rows.Next() {
		var (
			line   ledger.Line
			amount string
		)
		if err := rows.Scan(
			&line.ID,
			&line.EntryID,
			&line.AccountID,
			&line.DebitCredit,
			&amount,
			&line.CurrencyCode,
			&line.LineNumber,
			&line.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan journal line: %w", err)
		}
		if line.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("failed to parse amount %q: %w", amount, err)
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over journal lines: %w", err)
	}
	return lines, nil
}

func encodeMetadata(metadata map[string]interface{}) ([]byte, error) {
	if metadata == nil {
		return nil, nil
	}
	encoded, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to encode entry metadata: %w", err)
	}
	return encoded, nil
}
