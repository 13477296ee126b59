package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tamper-evident-ledger/internal/audit_chain"
	"github.com/tamper-evident-ledger/internal/config"
	"github.com/tamper-evident-ledger/internal/data/postgres"
	"github.com/tamper-evident-ledger/internal/logger"
	"github.com/tamper-evident-ledger/internal/platform/persistence"
)

// audit_verifier walks the audit chain once and prints the result as JSON on stdout.
// Exit status: 0 valid, 1 broken, 2 verification could not run.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig("audit_verifier")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(2)
	}

	// stdout carries only the result
	log := logger.NewLoggerTo(os.Stderr, cfg)

	postgresDB, err := persistence.NewPostgresDB(ctx, log, &cfg.Postgres)
	if err != nil {
		log.Error("Failed to initialize PostgreSQL", "error", err)
		os.Exit(2)
	}
	defer postgresDB.Close()

	auditRepo := postgres.NewAuditRepository(log, postgresDB)
	verifier, err := audit_chain.NewVerifier(log.With("component", "audit_verifier"), auditRepo, nil, &cfg.Audit)
	if err != nil {
		log.Error("Failed to initialize audit verifier", "error", err)
		os.Exit(2)
	}
	defer verifier.Release()

	result, err := verifier.VerifyChain(ctx)
	if err != nil {
		log.Error("Audit chain verification failed to run", "error", err)
		os.Exit(2)
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(result); err != nil {
		log.Error("Failed to write verification result", "error", err)
		os.Exit(2)
	}

	if !result.Valid {
		log.Warn("Audit chain is broken", "broken_at", *result.BrokenAt, "total_events", result.TotalEvents)
		os.Exit(1)
	}
	log.Info("Audit chain is intact", "total_events", result.TotalEvents)
}
