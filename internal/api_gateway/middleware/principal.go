package middleware

import (
	"encoding/json"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tamper-evident-ledger/internal/domain/apperror"
	"github.com/tamper-evident-ledger/internal/policy"
)

// Principal headers set by the upstream identity gateway
const (
	PrincipalTypeHeader       = "X-Principal-Type"
	PrincipalIDHeader         = "X-Principal-Id"
	RolesHeader               = "X-Roles"
	PrincipalAttributesHeader = "X-Principal-Attributes"

	AnonymousPrincipal = "ANONYMOUS"

	SubjectKey = "policy_subject"
)

// Principal builds the policy subject of the caller. A request without a principal type
// is ANONYMOUS. Attributes outside the whitelist are rejected here with the same reason
// code the engine would deny with.
func Principal() gin.HandlerFunc {
	return func(c *gin.Context) {
		subject, err := SubjectFromHeaders(c.GetHeader)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.Set(SubjectKey, subject)
		c.Next()
	}
}

// SubjectFromHeaders parses the principal headers read through header
func SubjectFromHeaders(header func(string) string) (policy.Subject, error) {
	subject := policy.Subject{
		PrincipalType: strings.ToUpper(strings.TrimSpace(header(PrincipalTypeHeader))),
		PrincipalID:   strings.TrimSpace(header(PrincipalIDHeader)),
		Roles:         splitRoles(header(RolesHeader)),
	}
	if subject.PrincipalType == "" {
		subject.PrincipalType = AnonymousPrincipal
	}

	if raw := strings.TrimSpace(header(PrincipalAttributesHeader)); raw != "" {
		var bag map[string]interface{}
		if err := json.Unmarshal([]byte(raw), &bag); err != nil {
			return policy.Subject{}, apperror.Wrap(apperror.CodeValidation, err, PrincipalAttributesHeader+" must be a JSON object")
		}
		attrs, err := policy.NewAttributes(bag)
		if err != nil {
			return policy.Subject{}, err
		}
		subject.Attributes = attrs
	}
	return subject, nil
}

// GetSubject returns the subject stored by Principal
func GetSubject(c *gin.Context) (policy.Subject, bool) {
	v, exists := c.Get(SubjectKey)
	if !exists {
		return policy.Subject{}, false
	}
	subject, ok := v.(policy.Subject)
	return subject, ok
}

func splitRoles(raw string) []string {
	roles := []string{}
	for _, role := range strings.Split(raw, ",") {
		if role = strings.TrimSpace(role); role != "" {
			roles = append(roles, role)
		}
	}
	return roles
}
