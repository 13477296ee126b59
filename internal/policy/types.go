// Package policy evaluates role and attribute based access rules loaded from declarative
// YAML files. A loaded rule set is immutable and safe for concurrent use.
package policy

// Effect of a matching rule
type Effect string

const (
	EffectAllow Effect = "ALLOW"
	EffectDeny  Effect = "DENY"
)

// Reason codes produced by the engine itself
const (
	ReasonAttributeNotAllowed = "ABAC_ATTRIBUTE_NOT_ALLOWED"
	ReasonPrincipalBoundary   = "PRINCIPAL_BOUNDARY"
	ReasonNoMatch             = "NO_MATCH"
	ReasonDefaultDeny         = "POLICY_DENY"
)

const (
	Wildcard          = "*"
	rolePrefix        = "role:"
	principalIDAttr   = "principalId"
	resourceSeparator = ":"
)

// Subject is the principal requesting an action
type Subject struct {
	PrincipalType string     `json:"principal_type"`
	PrincipalID   string     `json:"principal_id,omitempty"`
	Roles         []string   `json:"roles"`
	Attributes    Attributes `json:"attributes,omitempty"`
}

// Resource is the target of an action. Attributes are free-form.
type Resource struct {
	Type       string                 `json:"type"`
	ID         string                 `json:"id,omitempty"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

// Context carries request facts such as channel or country code
type Context map[string]interface{}

// Decision is the outcome of Evaluate
type Decision struct {
	Allow       bool     `json:"allow"`
	ReasonCodes []string `json:"reason_codes"`
	Obligations []string `json:"obligations"`
}

func deny(reason string) Decision {
	return Decision{Allow: false, ReasonCodes: []string{reason}, Obligations: []string{}}
}

// Rule is one declarative access rule. Conditions are compiled at load time.
type Rule struct {
	Effect      Effect
	Subjects    []string
	Actions     []string
	Resources   []string
	Conditions  Conditions
	Reason      string
	Obligations []string
}

// Policy is one loaded rule file
type Policy struct {
	Name    string
	Version string
	Source  string
	Rules   []Rule
}
