package policy

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Enforcement handlers understood by the request layer
const (
	HandlerMFA          = "MfaEnforcementHandler"
	HandlerDevice       = "DeviceBindingEnforcementHandler"
	HandlerMakerChecker = "MakerCheckerEnforcementHandler"
	HandlerKYCTier      = "KycTierEnforcementHandler"
)

var knownHandlers = map[string]struct{}{
	HandlerMFA:          {},
	HandlerDevice:       {},
	HandlerMakerChecker: {},
	HandlerKYCTier:      {},
}

// ObligationSchema describes what satisfies one obligation token
type ObligationSchema struct {
	Description        string                 `json:"description"`
	Severity           string                 `json:"severity"`
	ParamsSchema       map[string]interface{} `json:"params_schema"`
	EnforcementHandler string                 `json:"enforcement_handler"`
	EvidenceRequired   []string               `json:"evidence_required"`
	IssuedBy           []string               `json:"issued_by"`
}

// ObligationRegistry maps obligation tokens to their evidence requirements
type ObligationRegistry struct {
	Version     string                      `json:"version"`
	Obligations map[string]ObligationSchema `json:"obligations"`
}

// EmptyRegistry knows no obligations, so every obligation is unmet
func EmptyRegistry() *ObligationRegistry {
	return &ObligationRegistry{Version: "0.0.0", Obligations: map[string]ObligationSchema{}}
}

// LoadObligationRegistry reads the JSON registry. A missing file yields os.ErrNotExist
// wrapped, so callers can fall back to EmptyRegistry.
func LoadObligationRegistry(path string) (*ObligationRegistry, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read obligation registry %s: %w", path, err)
	}
	var registry ObligationRegistry
	if err := json.Unmarshal(content, &registry); err != nil {
		return nil, fmt.Errorf("failed to parse obligation registry %s: %w", path, err)
	}
	if registry.Obligations == nil {
		registry.Obligations = map[string]ObligationSchema{}
	}
	for name, schema := range registry.Obligations {
		if _, ok := knownHandlers[schema.EnforcementHandler]; !ok {
			return nil, fmt.Errorf("obligation %q uses unknown enforcement handler %q", name, schema.EnforcementHandler)
		}
	}
	return &registry, nil
}

// IsNotFound reports whether err came from a missing registry file
func IsNotFound(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}

// Unsatisfied returns the obligations whose evidence is missing from the request, in
// input order. Unknown obligations are always unsatisfied. header returns the value of
// a request header by name.
func (r *ObligationRegistry) Unsatisfied(obligations []string, header func(name string) string) []string {
	var unmet []string
	for _, obligation := range obligations {
		schema, ok := r.Obligations[obligation]
		if !ok {
			unmet = append(unmet, obligation)
			continue
		}
		for _, evidence := range schema.EvidenceRequired {
			if strings.TrimSpace(header(evidence)) == "" {
				unmet = append(unmet, obligation)
				break
			}
		}
	}
	return unmet
}

// Names lists registered obligations, sorted
func (r *ObligationRegistry) Names() []string {
	names := make([]string, 0, len(r.Obligations))
	for name := range r.Obligations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
