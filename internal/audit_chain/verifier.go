package audit_chain

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/panjf2000/ants/v2"

	"github.com/tamper-evident-ledger/internal/config"
	"github.com/tamper-evident-ledger/internal/domain/apperror"
	"github.com/tamper-evident-ledger/internal/domain/audit"
	"github.com/tamper-evident-ledger/internal/platform/hashing"
	"github.com/tamper-evident-ledger/internal/platform/metrics"
	"github.com/tamper-evident-ledger/internal/platform/redaction"
)

const (
	defaultVerifyBatchSize = 500
	defaultVerifyWorkers   = 4
)

// Verifier walks the audit chain in ascending sequence order. Hashes of a batch are
// recomputed in parallel on a worker pool; linkage is then checked sequentially.
// It never repairs a broken chain.
type Verifier struct {
	auditRepo audit.Repository
	pool      *ants.Pool
	metrics   *metrics.Metrics
	batchSize int
	scanPII   bool
	logger    *slog.Logger
}

func NewVerifier(logger *slog.Logger, auditRepo audit.Repository, m *metrics.Metrics, cfg *config.AuditConfig) (*Verifier, error) {
	batchSize, workers := defaultVerifyBatchSize, defaultVerifyWorkers
	scanPII := false
	if cfg != nil {
		if cfg.VerifyBatchSize > 0 {
			batchSize = cfg.VerifyBatchSize
		}
		if cfg.VerifyWorkers > 0 {
			workers = cfg.VerifyWorkers
		}
		scanPII = cfg.ScanPayloadsForPII
	}

	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("failed to create verification pool: %w", err)
	}

	return &Verifier{
		auditRepo: auditRepo,
		pool:      pool,
		metrics:   m,
		batchSize: batchSize,
		scanPII:   scanPII,
		logger:    logger,
	}, nil
}

type recomputed struct {
	hash     string
	findings []string
	err      error
}

// VerifyChain checks every event up to the chain length observed when it starts. Events
// appended while it runs are left for the next run. BrokenAt is the sequence number of
// the first event whose hash, predecessor link or position is wrong.
func (v *Verifier) VerifyChain(ctx context.Context) (*audit.ChainVerification, error) {
	total, err := v.auditRepo.Count(ctx)
	if err != nil {
		return nil, apperror.FromStorage(err)
	}

	result := &audit.ChainVerification{Valid: true, TotalEvents: total}
	var prev *audit.Event
	var after int64

	for after < total {
		limit := v.batchSize
		if remaining := total - after; remaining < int64(limit) {
			limit = int(remaining)
		}

		batch, err := v.auditRepo.ListAfter(ctx, after, limit)
		if err != nil {
			return nil, apperror.FromStorage(err)
		}
		if len(batch) == 0 {
			// fewer rows than counted means the chain lost an event
			v.markBroken(result, after+1)
			break
		}

		hashes, err := v.recompute(ctx, batch)
		if err != nil {
			return nil, err
		}

		broken := false
		for i, event := range batch {
			if hashes[i].err != nil {
				return nil, hashes[i].err
			}
			result.PIIFindings = append(result.PIIFindings, hashes[i].findings...)

			if !v.linked(prev, event, after) || hashes[i].hash != event.Hash {
				v.markBroken(result, event.SequenceNumber)
				broken = true
				break
			}
			prev = event
			after = event.SequenceNumber
		}
		if broken {
			break
		}
	}

	v.metrics.SetChainValid(result.Valid)
	if result.Valid {
		v.logger.Info("Audit chain verified", "total_events", result.TotalEvents, "pii_findings", len(result.PIIFindings))
	} else {
		v.logger.Warn("Audit chain broken", "total_events", result.TotalEvents, "broken_at", *result.BrokenAt)
	}
	return result, nil
}

// linked checks the position and predecessor link of event. after is the sequence
// number of prev, or 0 at the start of the chain.
func (v *Verifier) linked(prev, event *audit.Event, after int64) bool {
	if event.SequenceNumber != after+1 {
		return false
	}
	if prev == nil {
		return event.PrevHash == nil
	}
	return event.PrevHash != nil && *event.PrevHash == prev.Hash
}

func (v *Verifier) markBroken(result *audit.ChainVerification, sequence int64) {
	result.Valid = false
	result.BrokenAt = &sequence
}

func (v *Verifier) recompute(ctx context.Context, batch []*audit.Event) ([]recomputed, error) {
	results := make([]recomputed, len(batch))
	var wg sync.WaitGroup

	for i, event := range batch {
		if err := ctx.Err(); err != nil {
			wg.Wait()
			return nil, apperror.FromStorage(err)
		}

		i, event := i, event
		wg.Add(1)
		err := v.pool.Submit(func() {
			defer wg.Done()
			results[i] = v.check(event)
		})
		if err != nil {
			wg.Done()
			wg.Wait()
			return nil, fmt.Errorf("failed to submit hash verification for event %d: %w", event.SequenceNumber, err)
		}
	}

	wg.Wait()
	return results, nil
}

func (v *Verifier) check(event *audit.Event) recomputed {
	hash, err := audit.ComputeHash(event.PrevHash, event)
	if err != nil {
		return recomputed{err: fmt.Errorf("failed to recompute hash of event %d: %w", event.SequenceNumber, err)}
	}
	out := recomputed{hash: hash}
	if !v.scanPII {
		return out
	}

	payload, err := hashing.Normalize(event.Payload)
	if err != nil {
		return recomputed{err: fmt.Errorf("failed to decode payload of event %d: %w", event.SequenceNumber, err)}
	}
	for _, path := range redaction.ScanForPII(payload) {
		out.findings = append(out.findings, fmt.Sprintf("%d:%s", event.SequenceNumber, path))
	}
	return out
}

// Release stops the worker pool.
func (v *Verifier) Release() {
	v.pool.Release()
}
