package components

import (
	"log/slog"

	"github.com/tamper-evident-ledger/internal/audit_chain"
	"github.com/tamper-evident-ledger/internal/config"
	"github.com/tamper-evident-ledger/internal/domain/audit"
	"github.com/tamper-evident-ledger/internal/domain/ledger"
	"github.com/tamper-evident-ledger/internal/domain/outbox"
	"github.com/tamper-evident-ledger/internal/ledger_processor/service"
	"github.com/tamper-evident-ledger/internal/platform/metrics"
	"github.com/tamper-evident-ledger/internal/platform/persistence"
)

// CreateLedgerService wires the ledger engine: replay resolution, the audit chain
// recorder and the outbox share the posting transaction.
func CreateLedgerService(
	db persistence.TxExecutor,
	ledgerRepo ledger.Repository,
	auditRepo audit.Repository,
	outboxRepo outbox.Repository,
	m *metrics.Metrics,
	cfg *config.Config,
	logger *slog.Logger,
) *service.LedgerServiceImpl {
	enqueuer := NewOutboxManager(outboxRepo, logger.With("component", "outbox_manager"))
	recorder := audit_chain.NewRecorder(
		logger.With("component", "audit_recorder"),
		db,
		auditRepo,
		enqueuer,
		m,
		cfg.Audit.LockKey,
	)
	validator := NewPostingValidator(ledgerRepo, logger.With("component", "posting_validator"))

	return service.NewLedgerService(
		db,
		ledgerRepo,
		auditRepo,
		validator,
		recorder,
		enqueuer,
		m,
		&cfg.Ledger,
		logger,
	)
}

// CreateCommandProcessor puts the base processor behind a worker pool, falling back to
// the base processor when the pool cannot be created.
func CreateCommandProcessor(base service.CommandProcessor, cfg *config.Config, logger *slog.Logger) service.CommandProcessor {
	workerPoolService, err := service.NewWorkerPoolCommandService(
		base,
		service.WorkerPoolConfig{
			Size: cfg.WorkerPool.Size,
		},
		logger.With("component", "worker_pool"),
	)
	if err != nil {
		logger.Error("Failed to create worker pool service, falling back to base service", "error", err)
		return base
	}

	logger.Info("Created worker pool command service", "pool_size", cfg.WorkerPool.Size)
	return workerPoolService
}
