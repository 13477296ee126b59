package policy

import (
	"fmt"
	"log/slog"
	"strings"
)

// Engine evaluates subject, action, resource and context against the loaded rules.
// Rules are visited in file order and then declaration order.
type Engine struct {
	policies []Policy
	logger   *slog.Logger
}

// NewEngine wraps already compiled policies. Rules with an empty subject, action or
// resource list can never match and are reported once here.
func NewEngine(logger *slog.Logger, policies []Policy) *Engine {
	for _, p := range policies {
		for i, r := range p.Rules {
			if len(r.Subjects) == 0 || len(r.Actions) == 0 || len(r.Resources) == 0 {
				logger.Warn("Policy rule can never match", "policy", p.Name, "source", p.Source, "rule", i+1)
			}
		}
	}
	return &Engine{policies: policies, logger: logger}
}

// LoadEngine loads every rule file of dir. Startup should fail on error.
func LoadEngine(logger *slog.Logger, dir string) (*Engine, error) {
	policies, err := LoadDirectory(dir)
	if err != nil {
		return nil, err
	}
	engine := NewEngine(logger, policies)
	logger.Info("Loaded policies", "directory", dir, "policies", len(policies), "rules", engine.RuleCount())
	return engine, nil
}

func (e *Engine) RuleCount() int {
	n := 0
	for _, p := range e.policies {
		n += len(p.Rules)
	}
	return n
}

// Evaluate returns the decision for one request.
//
// Two pre-checks deny before any rule is consulted: a subject attribute outside the
// whitelist, and a subject acting on a resource owned by a different principal. Then the
// first matching DENY wins. Otherwise matching ALLOW rules grant access and their reasons
// and obligations are merged in match order. No match denies with NO_MATCH.
func (e *Engine) Evaluate(subject Subject, action string, resource Resource, ctx Context) Decision {
	if len(subject.Attributes.Unknown()) > 0 {
		return deny(ReasonAttributeNotAllowed)
	}
	if crossesPrincipalBoundary(subject, resource) {
		return deny(ReasonPrincipalBoundary)
	}

	matched := false
	reasons := newOrderedSet()
	obligations := newOrderedSet()

	for _, p := range e.policies {
		for _, rule := range p.Rules {
			if !matchesAction(rule, action) || !matchesResource(rule, resource) || !matchesSubject(rule, subject) {
				continue
			}
			if !rule.Conditions.Holds(subject, resource, ctx) {
				continue
			}
			if rule.Effect == EffectDeny {
				reason := rule.Reason
				if reason == "" {
					reason = ReasonDefaultDeny
				}
				return deny(reason)
			}
			matched = true
			if rule.Reason != "" {
				reasons.add(rule.Reason)
			}
			for _, o := range rule.Obligations {
				obligations.add(o)
			}
		}
	}

	if !matched {
		return deny(ReasonNoMatch)
	}
	return Decision{Allow: true, ReasonCodes: reasons.items, Obligations: obligations.items}
}

// IsAllowed reports only the allow flag of Evaluate
func (e *Engine) IsAllowed(subject Subject, action string, resource Resource, ctx Context) bool {
	return e.Evaluate(subject, action, resource, ctx).Allow
}

func crossesPrincipalBoundary(subject Subject, resource Resource) bool {
	if subject.PrincipalID == "" || resource.Attributes == nil {
		return false
	}
	owner, ok := resource.Attributes[principalIDAttr]
	if !ok || owner == nil {
		return false
	}
	ownerID := fmt.Sprint(owner)
	return ownerID != "" && ownerID != subject.PrincipalID
}

func matchesAction(rule Rule, action string) bool {
	for _, a := range rule.Actions {
		if a == Wildcard || a == action {
			return true
		}
	}
	return false
}

func matchesResource(rule Rule, resource Resource) bool {
	for _, r := range rule.Resources {
		if r == Wildcard {
			return true
		}
		typ, id, _ := strings.Cut(r, resourceSeparator)
		if typ != resource.Type {
			continue
		}
		if id == "" || id == Wildcard || id == resource.ID {
			return true
		}
	}
	return false
}

func matchesSubject(rule Rule, subject Subject) bool {
	for _, s := range rule.Subjects {
		if s == Wildcard {
			return true
		}
		if role, ok := strings.CutPrefix(s, rolePrefix); ok {
			for _, r := range subject.Roles {
				if r == role {
					return true
				}
			}
			continue
		}
		if s == subject.PrincipalType {
			return true
		}
	}
	return false
}

type orderedSet struct {
	items []string
	seen  map[string]struct{}
}

func newOrderedSet() *orderedSet {
	return &orderedSet{items: []string{}, seen: make(map[string]struct{})}
}

func (s *orderedSet) add(v string) {
	if _, ok := s.seen[v]; ok {
		return
	}
	s.seen[v] = struct{}{}
	s.items = append(s.items, v)
}
