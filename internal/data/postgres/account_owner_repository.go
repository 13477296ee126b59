package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/tamper-evident-ledger/internal/domain/ledger"
	"github.com/tamper-evident-ledger/internal/platform/persistence"
)

// AccountOwnerRepository implements ledger.AccountOwnerRepository for PostgreSQL
type AccountOwnerRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

func NewAccountOwnerRepository(logger *slog.Logger, db *persistence.PostgresDB) ledger.AccountOwnerRepository {
	return &AccountOwnerRepository{
		querier: db.Querier(),
		logger:  logger,
	}
}

func (r *AccountOwnerRepository) GetOwner(ctx context.Context, accountID string) (*ledger.AccountOwner, error) {
	query := `
		SELECT account_id, principal_id, principal_type
		FROM account_owners
		WHERE account_id = $1
	`
	var owner ledger.AccountOwner
	err := r.querier.QueryRow(ctx, query, accountID).Scan(&owner.AccountID, &owner.PrincipalID, &owner.PrincipalType)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ledger.ErrAccountOwnerNotFound{AccountID: accountID}
	}
	if err != nil {
		r.logger.Error("Failed to get account owner", "account_id", accountID, "error", err)
		return nil, fmt.Errorf("failed to get account owner: %w", err)
	}
	return &owner, nil
}
