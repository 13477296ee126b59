package middleware

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tamper-evident-ledger/internal/domain/apperror"
	"github.com/tamper-evident-ledger/internal/domain/ledger"
	"github.com/tamper-evident-ledger/internal/domain/shared"
	"github.com/tamper-evident-ledger/internal/platform/metrics"
	"github.com/tamper-evident-ledger/internal/policy"
)

const (
	ChannelHeader     = "X-Channel"
	CountryCodeHeader = "X-Country-Code"

	defaultChannel     = "API"
	defaultCountryCode = "BB"

	DecisionKey = "policy_decision"
)

// ResourceFunc derives the policy resource of a request, usually from path parameters.
// An error aborts the request before the engine is consulted.
type ResourceFunc func(c *gin.Context) (policy.Resource, error)

// StaticResource guards a route whose resource does not depend on the request
func StaticResource(resourceType string) ResourceFunc {
	return func(*gin.Context) (policy.Resource, error) {
		return policy.Resource{Type: resourceType}, nil
	}
}

// ParamResource uses a path parameter as the resource id
func ParamResource(resourceType, param string) ResourceFunc {
	return func(c *gin.Context) (policy.Resource, error) {
		return policy.Resource{Type: resourceType, ID: c.Param(param)}, nil
	}
}

// unregisteredOwner stands in for the owner of an account nobody owns. It never equals a
// caller's principal id, so the engine denies owner principals with PRINCIPAL_BOUNDARY.
const unregisteredOwner = "UNREGISTERED"

// OwnedAccountResource uses a path parameter as the account id and, for customer, agent
// and merchant callers, attaches the owning principal as the principalId attribute so the
// engine can enforce the principal boundary. Staff and system callers act across
// principals by role and skip the lookup. A nil owners treats every account as unowned.
func OwnedAccountResource(resourceType, param string, owners ledger.AccountOwnerRepository) ResourceFunc {
	return func(c *gin.Context) (policy.Resource, error) {
		res := policy.Resource{Type: resourceType, ID: c.Param(param)}

		subject, _ := GetSubject(c)
		if !ownerPrincipal(subject.PrincipalType) {
			return res, nil
		}
		if subject.PrincipalID == "" {
			return res, apperror.PolicyDenied([]string{policy.ReasonPrincipalBoundary})
		}

		ownerID := unregisteredOwner
		if owners != nil {
			owner, err := owners.GetOwner(c.Request.Context(), res.ID)
			var notFound ledger.ErrAccountOwnerNotFound
			switch {
			case err == nil:
				ownerID = owner.PrincipalID
			case !errors.As(err, &notFound):
				return res, apperror.FromStorage(err)
			}
		}
		res.Attributes = map[string]interface{}{principalIDAttribute: ownerID}
		return res, nil
	}
}

const principalIDAttribute = "principalId"

func ownerPrincipal(principalType string) bool {
	switch shared.Subledger(principalType) {
	case shared.SubledgerCustomer, shared.SubledgerAgent, shared.SubledgerMerchant:
		return true
	}
	return false
}

// PolicyGuard evaluates the engine for one route and enforces the obligations of an
// allow. The engine only names obligations; this is the layer that makes them binding.
type PolicyGuard struct {
	engine   *policy.Engine
	registry *policy.ObligationRegistry
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewPolicyGuard(logger *slog.Logger, engine *policy.Engine, registry *policy.ObligationRegistry, m *metrics.Metrics) *PolicyGuard {
	if registry == nil {
		registry = policy.EmptyRegistry()
	}
	return &PolicyGuard{
		engine:   engine,
		registry: registry,
		metrics:  m,
		logger:   logger,
	}
}

// Require returns the middleware enforcing action on the resource built by resource.
// It must run after Principal.
func (g *PolicyGuard) Require(action string, resource ResourceFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		subject, ok := GetSubject(c)
		if !ok {
			subject = policy.Subject{PrincipalType: AnonymousPrincipal, Roles: []string{}}
		}
		res, err := resource(c)
		if err != nil {
			g.logger.Warn("Policy resource rejected",
				"correlation_id", GetCorrelationID(c),
				"action", action,
				"principal_type", subject.PrincipalType,
				"error", err,
			)
			if apperror.CodeOf(err) == apperror.CodePolicyDenied {
				g.metrics.IncPolicyDecision(action, false)
			}
			AbortWithError(c, err)
			return
		}
		decision := g.engine.Evaluate(subject, action, res, RequestContext(c))
		g.metrics.IncPolicyDecision(action, decision.Allow)

		logger := g.logger.With(
			"correlation_id", GetCorrelationID(c),
			"action", action,
			"resource_type", res.Type,
			"principal_type", subject.PrincipalType,
		)

		if !decision.Allow {
			logger.Warn("Policy denied", "reason_codes", strings.Join(decision.ReasonCodes, ","))
			AbortWithError(c, apperror.PolicyDenied(decision.ReasonCodes))
			return
		}

		if unmet := g.registry.Unsatisfied(decision.Obligations, c.GetHeader); len(unmet) > 0 {
			logger.Warn("Obligation enforcement failed", "obligations", strings.Join(unmet, ","))
			AbortWithError(c, apperror.ObligationNotSatisfied(unmet))
			return
		}

		c.Set(DecisionKey, decision)
		c.Next()
	}
}

// RequestContext is the context bag handed to the engine
func RequestContext(c *gin.Context) policy.Context {
	channel := c.GetHeader(ChannelHeader)
	if channel == "" {
		channel = defaultChannel
	}
	country := c.GetHeader(CountryCodeHeader)
	if country == "" {
		country = defaultCountryCode
	}
	return policy.Context{
		"channel":     channel,
		"countryCode": country,
		"ip":          c.ClientIP(),
		"method":      c.Request.Method,
	}
}
