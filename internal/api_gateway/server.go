package api_gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tamper-evident-ledger/internal/api_gateway/handler"
	"github.com/tamper-evident-ledger/internal/api_gateway/middleware"
	"github.com/tamper-evident-ledger/internal/api_gateway/service"
	"github.com/tamper-evident-ledger/internal/config"
	"github.com/tamper-evident-ledger/internal/domain/ledger"
	"github.com/tamper-evident-ledger/internal/domain/shared"
	"github.com/tamper-evident-ledger/internal/platform/metrics"
	"github.com/tamper-evident-ledger/internal/policy"
)

// Dependencies are the services and policy state the HTTP surface is built on
type Dependencies struct {
	LedgerService service.LedgerService
	AuditService  service.AuditService
	AccountOwners ledger.AccountOwnerRepository
	PolicyEngine  *policy.Engine
	Obligations   *policy.ObligationRegistry
	Metrics       *metrics.Metrics
	Gatherer      prometheus.Gatherer
}

// Server handles HTTP requests and manages the application's lifecycle
type Server struct {
	logger     *slog.Logger // For structured logging
	httpServer *http.Server // Underlying HTTP server
	httpRouter *gin.Engine  // Gin router instance
}

// NewServer creates and configures a new HTTP server with the given services
func NewServer(log *slog.Logger, cfg *config.Config, deps Dependencies) *Server {
	if cfg.Application.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	httpRouter := gin.New()

	guard := middleware.NewPolicyGuard(log.With("component", "policy_guard"), deps.PolicyEngine, deps.Obligations, deps.Metrics)
	handlers := routeHandlers{
		ledger: handler.NewLedgerHandler(log, deps.LedgerService),
		audit:  handler.NewAuditHandler(log, deps.AuditService),
		policy: handler.NewPolicyHandler(log, deps.PolicyEngine),
	}

	resources := routeResources{
		statement: middleware.OwnedAccountResource(shared.ResourceAccount, "accountId", deps.AccountOwners),
	}

	setupRouter(log, httpRouter, cfg.Metrics, deps.Gatherer, guard, handlers, resources)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpRouter,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return &Server{
		logger:     log,
		httpServer: httpServer,
		httpRouter: httpRouter,
	}
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.httpRouter
}

// Start begins listening for HTTP requests
func (s *Server) Start() error {
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the HTTP server. In-flight requests get the server's write
// timeout or the deadline of ctx, whichever is shorter.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping HTTP server")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.httpServer.WriteTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop HTTP server: %w", err)
	}
	return nil
}
