package handler

import (
	"log/slog"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tamper-evident-ledger/internal/policy"
)

// PolicyHandler exposes the loaded policy engine for what-if evaluation
type PolicyHandler struct {
	engine *policy.Engine
	logger *slog.Logger
}

// NewPolicyHandler creates a new policy handler
func NewPolicyHandler(logger *slog.Logger, engine *policy.Engine) *PolicyHandler {
	return &PolicyHandler{
		engine: engine,
		logger: logger,
	}
}

// Simulate evaluates the request against the loaded policies. Obligations are reported,
// not enforced.
func (h *PolicyHandler) Simulate(c *gin.Context) {
	var req SimulatePolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	attrs, err := policy.NewAttributes(req.Subject.Attributes)
	if err != nil {
		RespondWithAppError(c, err)
		return
	}

	roles := req.Subject.Roles
	if roles == nil {
		roles = []string{}
	}
	subject := policy.Subject{
		PrincipalType: strings.ToUpper(strings.TrimSpace(req.Subject.PrincipalType)),
		PrincipalID:   req.Subject.PrincipalID,
		Roles:         roles,
		Attributes:    attrs,
	}
	resource := policy.Resource{Type: req.Resource.Type, ID: req.Resource.ID, Attributes: req.Resource.Attributes}

	decision := h.engine.Evaluate(subject, req.Action, resource, policy.Context(req.Context))
	h.logger.Debug("Policy simulated",
		"action", req.Action,
		"resource_type", resource.Type,
		"principal_type", subject.PrincipalType,
		"allow", decision.Allow,
	)

	RespondOK(c, toDecisionResponse(decision))
}

func toDecisionResponse(decision policy.Decision) DecisionResponse {
	response := DecisionResponse{
		Allow:       decision.Allow,
		ReasonCodes: decision.ReasonCodes,
		Obligations: decision.Obligations,
	}
	if response.ReasonCodes == nil {
		response.ReasonCodes = []string{}
	}
	if response.Obligations == nil {
		response.Obligations = []string{}
	}
	return response
}
