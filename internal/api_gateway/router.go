package api_gateway

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tamper-evident-ledger/internal/api_gateway/handler"
	"github.com/tamper-evident-ledger/internal/api_gateway/middleware"
	"github.com/tamper-evident-ledger/internal/config"
	"github.com/tamper-evident-ledger/internal/domain/shared"
)

// routeHandlers groups the handlers mounted by setupRouter
type routeHandlers struct {
	ledger *handler.LedgerHandler
	audit  *handler.AuditHandler
	policy *handler.PolicyHandler
}

// routeResources holds resource builders that need collaborators
type routeResources struct {
	statement middleware.ResourceFunc
}

// setupRouter configures API routes and middleware for the application. Every /api/v1
// route is guarded by the policy engine; /health and /metrics are public.
func setupRouter(
	logger *slog.Logger,
	r *gin.Engine,
	metricsCfg config.MetricsConfig,
	gatherer prometheus.Gatherer,
	guard *middleware.PolicyGuard,
	handlers routeHandlers,
	resources routeResources,
) {
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CorrelationID())
	r.Use(middleware.Logger(logger))

	// API v1 endpoints
	v1 := r.Group("/api/v1")
	v1.Use(middleware.Principal())
	{
		ledger := v1.Group("/ledger")
		{
			ledger.POST("/entries",
				guard.Require(shared.ActionLedgerPost, middleware.StaticResource(shared.ResourceLedger)),
				handlers.ledger.PostEntry)
			ledger.POST("/entries/:id/reverse",
				guard.Require(shared.ActionLedgerReverse, middleware.ParamResource(shared.ResourceLedger, "id")),
				handlers.ledger.ReverseEntry)
			ledger.GET("/entries/:id",
				guard.Require(shared.ActionLedgerRead, middleware.ParamResource(shared.ResourceLedger, "id")),
				handlers.ledger.GetEntry)
			ledger.GET("/accounts/:accountId/statement",
				guard.Require(shared.ActionLedgerRead, resources.statement),
				handlers.ledger.GetStatement)
			ledger.GET("/business-days/:day/entries",
				guard.Require(shared.ActionLedgerRead, middleware.StaticResource(shared.ResourceLedger)),
				handlers.ledger.ListBusinessDay)
		}

		audit := v1.Group("/audit")
		{
			audit.GET("/verify",
				guard.Require(shared.ActionAuditVerify, middleware.StaticResource(shared.ResourceAudit)),
				handlers.audit.Verify)
			audit.GET("/events",
				guard.Require(shared.ActionAuditRead, middleware.StaticResource(shared.ResourceAudit)),
				handlers.audit.SearchEvents)
		}

		v1.POST("/policy/simulate",
			guard.Require(shared.ActionPolicySim, middleware.StaticResource(shared.ResourcePolicy)),
			handlers.policy.Simulate)
	}

	// Health check endpoint for monitoring
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC()})
	})

	if metricsCfg.Enabled && gatherer != nil {
		path := metricsCfg.Path
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
}
