package handler

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamper-evident-ledger/internal/policy"
)

const simulationPolicy = `
name: simulation
rules:
  - effect: ALLOW
    subjects: ["role:finance_supervisor"]
    actions: ["ledger.reverse"]
    resources: ["ledger:*"]
    reason: SUPERVISOR_REVERSAL
    obligations: ["MFA_REQUIRED", "MAKER_CHECKER_REQUIRED"]
  - effect: ALLOW
    subjects: ["AGENT"]
    actions: ["ledger.post"]
    resources: ["ledger:*"]
    conditions:
      subject:
        max_cashin_amount:
          gte: 500
`

func newPolicyRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	p, err := policy.ParsePolicy("simulation.yaml", []byte(simulationPolicy))
	require.NoError(t, err)
	h := NewPolicyHandler(newTestLogger(), policy.NewEngine(newTestLogger(), []policy.Policy{*p}))
	router := gin.New()
	router.POST("/policy/simulate", h.Simulate)
	return router
}

func TestPolicyHandler_Simulate(t *testing.T) {
	router := newPolicyRouter(t)

	tests := []struct {
		name        string
		body        string
		status      int
		allow       bool
		reasons     []string
		obligations []string
	}{
		{
			name:        "AllowWithObligations",
			body:        `{"subject":{"principal_type":"staff","roles":["finance_supervisor"]},"action":"ledger.reverse","resource":{"type":"ledger","id":"e-1"}}`,
			status:      http.StatusOK,
			allow:       true,
			reasons:     []string{"SUPERVISOR_REVERSAL"},
			obligations: []string{"MFA_REQUIRED", "MAKER_CHECKER_REQUIRED"},
		},
		{
			name:        "AttributeConditionHolds",
			body:        `{"subject":{"principal_type":"AGENT","attributes":{"max_cashin_amount":750}},"action":"ledger.post","resource":{"type":"ledger"}}`,
			status:      http.StatusOK,
			allow:       true,
			reasons:     []string{},
			obligations: []string{},
		},
		{
			name:        "AttributeConditionFails",
			body:        `{"subject":{"principal_type":"AGENT","attributes":{"max_cashin_amount":100}},"action":"ledger.post","resource":{"type":"ledger"}}`,
			status:      http.StatusOK,
			allow:       false,
			reasons:     []string{policy.ReasonNoMatch},
			obligations: []string{},
		},
		{
			name:   "NonWhitelistedAttribute",
			body:   `{"subject":{"principal_type":"AGENT","attributes":{"superuser":true}},"action":"ledger.post","resource":{"type":"ledger"}}`,
			status: http.StatusBadRequest,
		},
		{
			name:   "MissingAction",
			body:   `{"subject":{"principal_type":"AGENT"},"resource":{"type":"ledger"}}`,
			status: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doRequest(router, http.MethodPost, "/policy/simulate", tt.body, nil)

			require.Equal(t, tt.status, rr.Code, rr.Body.String())
			if tt.status != http.StatusOK {
				return
			}
			var response TypedResponse[DecisionResponse]
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
			assert.Equal(t, tt.allow, response.Data.Allow)
			assert.Equal(t, tt.reasons, response.Data.ReasonCodes)
			assert.Equal(t, tt.obligations, response.Data.Obligations)
		})
	}
}
