package components

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/tamper-evident-ledger/internal/domain/apperror"
	"github.com/tamper-evident-ledger/internal/domain/ledger"
	"github.com/tamper-evident-ledger/internal/ledger_processor/service"
)

type PostingValidatorImpl struct {
	ledgerRepo ledger.Repository
	logger     *slog.Logger
}

func NewPostingValidator(ledgerRepo ledger.Repository, logger *slog.Logger) service.PostingValidator {
	return &PostingValidatorImpl{
		ledgerRepo: ledgerRepo,
		logger:     logger,
	}
}

// ResolveReplay looks the key up inside the posting transaction, so under SERIALIZABLE a
// concurrent first use of the same key either becomes visible here or aborts one of the
// two transactions.
func (v *PostingValidatorImpl) ResolveReplay(ctx context.Context, tx pgx.Tx, key, fingerprint string) (*ledger.Entry, error) {
	existing, err := v.ledgerRepo.WithTx(tx).GetByIdempotencyKey(ctx, key)
	if err != nil {
		if errors.Is(err, ledger.ErrEntryNotFound{}) {
			return nil, nil
		}
		v.logger.Error("Failed to check idempotency key", "idempotency_key", key, "error", err)
		return nil, fmt.Errorf("idempotency check failed for key %s: %w", key, err)
	}

	if existing.RequestHash != "" && existing.RequestHash != fingerprint {
		v.logger.Warn("Idempotency key reused with a different request",
			"idempotency_key", key,
			"entry_id", existing.ID.String(),
		)
		return nil, apperror.Newf(apperror.CodeIdempotencyKeyReused,
			"Idempotency key %s was already used for a different request", key).
			WithDetail("entry_id", existing.ID.String())
	}

	v.logger.Info("Replaying stored journal entry (idempotency)", "idempotency_key", key, "entry_id", existing.ID.String())
	return existing, nil
}
