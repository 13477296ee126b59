package service

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/tamper-evident-ledger/internal/domain/ledger"
)

// WorkerPoolCommandService bounds the number of ledger commands processed concurrently
type WorkerPoolCommandService struct {
	baseService CommandProcessor
	pool        *ants.Pool
	logger      *slog.Logger
	// guards results
	mu      sync.Mutex
	results map[uuid.UUID]chan error
}

type WorkerPoolConfig struct {
	Size int
}

func NewWorkerPoolCommandService(
	baseService CommandProcessor,
	config WorkerPoolConfig,
	logger *slog.Logger,
) (*WorkerPoolCommandService, error) {
	pool, err := ants.NewPool(config.Size)
	if err != nil {
		return nil, err
	}

	return &WorkerPoolCommandService{
		baseService: baseService,
		pool:        pool,
		logger:      logger,
		results:     make(map[uuid.UUID]chan error),
	}, nil
}

// ProcessCommand submits the command to the pool and waits for its result, so the Kafka
// offset is only committed once the command has been applied.
func (s *WorkerPoolCommandService) ProcessCommand(ctx context.Context, command *ledger.Command) error {
	logger := s.logger
	if command.CorrelationID != "" {
		logger = s.logger.With("correlation_id", command.CorrelationID)
	}

	commandID := command.CommandID
	if commandID == uuid.Nil {
		commandID = uuid.New()
	}

	logger.Debug("Submitting command to worker pool",
		"command_id", commandID.String(),
		"type", command.Type,
		"idempotency_key", command.IdempotencyKey(),
	)

	resultChan := make(chan error, 1)
	s.mu.Lock()
	s.results[commandID] = resultChan
	s.mu.Unlock()

	commandCopy := *command

	err := s.pool.Submit(func() {
		resultChan <- s.baseService.ProcessCommand(ctx, &commandCopy)

		s.mu.Lock()
		delete(s.results, commandID)
		s.mu.Unlock()
	})
	if err != nil {
		s.mu.Lock()
		delete(s.results, commandID)
		s.mu.Unlock()

		logger.Error("Failed to submit command to worker pool",
			"command_id", commandID.String(),
			"error", err,
		)
		return err
	}

	return <-resultChan
}

// Pending returns the number of submitted commands that have not finished.
func (s *WorkerPoolCommandService) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.results)
}

func (s *WorkerPoolCommandService) Shutdown() {
	s.logger.Info("Shutting down worker pool", "running_workers", s.pool.Running())
	s.pool.Release()
}

func (s *WorkerPoolCommandService) Running() int {
	return s.pool.Running()
}

func (s *WorkerPoolCommandService) Capacity() int {
	return s.pool.Cap()
}
