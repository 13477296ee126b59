package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/tamper-evident-ledger/internal/api_gateway"
	"github.com/tamper-evident-ledger/internal/api_gateway/service"
	"github.com/tamper-evident-ledger/internal/audit_chain"
	"github.com/tamper-evident-ledger/internal/config"
	"github.com/tamper-evident-ledger/internal/data/mongo"
	"github.com/tamper-evident-ledger/internal/data/postgres"
	"github.com/tamper-evident-ledger/internal/ledger_processor/components"
	"github.com/tamper-evident-ledger/internal/logger"
	"github.com/tamper-evident-ledger/internal/platform/messaging/producers"
	"github.com/tamper-evident-ledger/internal/platform/metrics"
	"github.com/tamper-evident-ledger/internal/platform/persistence"
	"github.com/tamper-evident-ledger/internal/policy"
)

func main() {
	// Create base context with cancellation
	appCtx, cancelAppCtx := context.WithCancel(context.Background())
	defer cancelAppCtx()

	// Initialize configuration
	cfg, err := config.LoadConfig("api_gateway")
	if err != nil {
		// logger is not initialized yet, so we use fmt
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.NewLogger(cfg)

	// Policies are loaded once; a missing or malformed policy directory stops startup
	engine, err := policy.LoadEngine(log.With("component", "policy_engine"), cfg.Policy.Directory)
	if err != nil {
		log.Error("Failed to load policies", "directory", cfg.Policy.Directory, "error", err)
		os.Exit(1)
	}
	obligations := loadObligations(log, cfg.Policy.ObligationRegistryPath)

	// Initialize metrics registry
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.New(registry)

	// Initialize databases with app context
	postgresDB, err := persistence.NewPostgresDB(appCtx, log, &cfg.Postgres)
	if err != nil {
		log.Error("Failed to initialize PostgreSQL", "error", err)
		os.Exit(1)
	}

	mongoDB, err := persistence.NewMongoDB(appCtx, log, &cfg.MongoDB)
	if err != nil {
		log.Error("Failed to initialize MongoDB", "error", err)
		os.Exit(1)
	}

	// Initialize Kafka producer for asynchronous submissions
	commandProducer, err := producers.NewCommandProducer(appCtx, log, &cfg.Kafka)
	if err != nil {
		log.Error("Failed to initialize command Kafka producer", "error", err)
		os.Exit(1)
	}

	// Initialize repositories
	ledgerRepo := postgres.NewLedgerRepository(log, postgresDB)
	auditRepo := postgres.NewAuditRepository(log, postgresDB)
	outboxRepo := postgres.NewOutboxRepository(log, postgresDB)
	accountOwners := postgres.NewAccountOwnerRepository(log, postgresDB)
	ledgerProjection := mongo.NewLedgerRepository(log, mongoDB.Database())
	auditProjection := mongo.NewAuditRepository(log, mongoDB.Database())

	// Initialize services
	engineService := components.CreateLedgerService(postgresDB, ledgerRepo, auditRepo, outboxRepo, appMetrics, cfg, log)
	verifier, err := audit_chain.NewVerifier(log.With("component", "audit_verifier"), auditRepo, appMetrics, &cfg.Audit)
	if err != nil {
		log.Error("Failed to initialize audit verifier", "error", err)
		os.Exit(1)
	}
	defer verifier.Release()

	ledgerService := service.NewLedgerService(log, engineService, ledgerRepo, ledgerProjection, commandProducer)
	auditService := service.NewAuditService(log, verifier, auditProjection)

	// Initialize REST server
	server := api_gateway.NewServer(log, cfg, api_gateway.Dependencies{
		LedgerService: ledgerService,
		AuditService:  auditService,
		AccountOwners: accountOwners,
		PolicyEngine:  engine,
		Obligations:   obligations,
		Metrics:       appMetrics,
		Gatherer:      registry,
	})
	log.Info("REST server initialized", "policy_rules", engine.RuleCount(), "obligations", len(obligations.Obligations))

	// Create error channel for server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		log.Info("Starting HTTP server", "port", cfg.Server.Port)
		if err := server.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// Set up signal handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	// Wait for a shutdown signal or error
	var serverErr error
	select {
	case <-quit:
		log.Info("Shutdown signal received")
	case err := <-errChan:
		log.Error("Server error occurred", "error", err)
		serverErr = err
	}

	// Cancel the application context
	cancelAppCtx()

	// Create a shutdown context with timeout
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	// Graceful shutdown sequence
	log.Info("Starting graceful shutdown...")

	// Stop accepting requests before closing what they depend on
	if err = server.Stop(shutdownCtx); err != nil {
		log.Error("Error during server shutdown", "error", err)
	}

	if err = commandProducer.Close(); err != nil {
		log.Error("Error closing Kafka producer", "error", err)
	}

	// Shutdown postgres connection pool
	postgresDB.Close()

	if err = mongoDB.Close(shutdownCtx); err != nil {
		log.Error("Error closing MongoDB connection", "error", err)
	}

	// Final status
	if serverErr != nil {
		log.Error("HTTP server shutdown with errors", "error", serverErr)
	}
	if err != nil {
		log.Error("Server shutdown completed with errors")
	} else {
		log.Info("Server shutdown completed successfully")
	}
}

// loadObligations falls back to an empty registry when the file is absent. With an empty
// registry every obligation an allow carries is unsatisfied, so the fallback fails closed.
func loadObligations(log *slog.Logger, path string) *policy.ObligationRegistry {
	registry, err := policy.LoadObligationRegistry(path)
	if err == nil {
		return registry
	}
	if policy.IsNotFound(err) {
		log.Warn("Obligation registry not found, obligations cannot be satisfied", "path", path)
		return policy.EmptyRegistry()
	}
	log.Error("Failed to load obligation registry", "path", path, "error", err)
	os.Exit(1)
	return nil
}
