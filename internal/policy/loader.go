package policy

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

type policyFile struct {
	Name    string     `yaml:"name"`
	Version string     `yaml:"version"`
	Rules   []ruleFile `yaml:"rules"`
}

type ruleFile struct {
	Effect      string                          `yaml:"effect"`
	Subjects    []string                        `yaml:"subjects"`
	Actions     []string                        `yaml:"actions"`
	Resources   []string                        `yaml:"resources"`
	Conditions  map[string]map[string]yaml.Node `yaml:"conditions"`
	Reason      string                          `yaml:"reason"`
	Obligations []string                        `yaml:"obligations"`
}

// LoadDirectory reads every .yaml/.yml file of dir in lexical order. A missing
// directory, unreadable file or malformed rule is an error.
func LoadDirectory(dir string) ([]Policy, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open policy directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("policy path %s is not a directory", dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list policy directory %s: %w", dir, err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	policies := make([]Policy, 0, len(files))
	for _, name := range files {
		path := filepath.Join(dir, name)
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read policy file %s: %w", path, err)
		}
		policy, err := ParsePolicy(path, content)
		if err != nil {
			return nil, err
		}
		policies = append(policies, *policy)
	}
	return policies, nil
}

// ParsePolicy decodes one YAML document and compiles its conditions.
func ParsePolicy(source string, content []byte) (*Policy, error) {
	var raw policyFile
	if err := yaml.Unmarshal(content, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse policy file %s: %w", source, err)
	}
	if len(raw.Rules) == 0 {
		return nil, fmt.Errorf("policy file %s declares no rules", source)
	}

	policy := &Policy{Name: raw.Name, Version: raw.Version, Source: source, Rules: make([]Rule, 0, len(raw.Rules))}
	for i, r := range raw.Rules {
		rule, err := compileRule(r)
		if err != nil {
			return nil, fmt.Errorf("policy file %s rule %d: %w", source, i+1, err)
		}
		policy.Rules = append(policy.Rules, rule)
	}
	return policy, nil
}

func compileRule(r ruleFile) (Rule, error) {
	effect := Effect(strings.ToUpper(strings.TrimSpace(r.Effect)))
	if effect != EffectAllow && effect != EffectDeny {
		return Rule{}, fmt.Errorf("invalid effect %q", r.Effect)
	}

	rule := Rule{
		Effect:      effect,
		Subjects:    r.Subjects,
		Actions:     r.Actions,
		Resources:   r.Resources,
		Reason:      r.Reason,
		Obligations: r.Obligations,
	}

	for scope, attrs := range r.Conditions {
		compiled, err := compileGroup(scope, attrs)
		if err != nil {
			return Rule{}, err
		}
		switch scope {
		case "subject":
			rule.Conditions.Subject = compiled
		case "resource":
			rule.Conditions.Resource = compiled
		case "context":
			rule.Conditions.Context = compiled
		default:
			return Rule{}, fmt.Errorf("unknown condition scope %q", scope)
		}
	}
	return rule, nil
}

func compileGroup(scope string, attrs map[string]yaml.Node) ([]AttributeCondition, error) {
	names := make([]string, 0, len(attrs))
	for name := range attrs {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]AttributeCondition, 0, len(names))
	for _, name := range names {
		if scope == "subject" && !IsAllowedAttribute(name) {
			return nil, fmt.Errorf("subject condition on non-whitelisted attribute %q", name)
		}
		node := attrs[name]
		predicates, err := compileCondition(&node)
		if err != nil {
			return nil, fmt.Errorf("%s condition %q: %w", scope, name, err)
		}
		out = append(out, AttributeCondition{Attribute: name, Predicates: predicates})
	}
	return out, nil
}

// compileCondition maps the YAML shape to condition kinds: a scalar is Equals, a
// sequence is AnyOf, and a mapping holds one or more named operators.
func compileCondition(node *yaml.Node) ([]Condition, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		v, err := decodeScalar(node)
		if err != nil {
			return nil, err
		}
		return []Condition{{Kind: CondEquals, Value: v}}, nil
	case yaml.SequenceNode:
		values, err := decodeScalarList(node)
		if err != nil {
			return nil, err
		}
		return []Condition{{Kind: CondAnyOf, Values: values}}, nil
	case yaml.MappingNode:
		return compileOperators(node)
	}
	return nil, errors.New("unsupported condition value")
}

func compileOperators(node *yaml.Node) ([]Condition, error) {
	if len(node.Content) == 0 {
		return nil, errors.New("empty operator mapping")
	}
	var out []Condition
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i].Value, node.Content[i+1]
		switch key {
		case "anyOf", "allOf":
			values, err := decodeScalarList(value)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			kind := CondAnyOf
			if key == "allOf" {
				kind = CondAllOf
			}
			out = append(out, Condition{Kind: kind, Values: values})
		case "contains":
			if value.Kind != yaml.ScalarNode {
				return nil, errors.New("contains expects a scalar")
			}
			v, err := decodeScalar(value)
			if err != nil {
				return nil, err
			}
			out = append(out, Condition{Kind: CondContains, Value: v})
		case "gte", "lte":
			if value.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("%s expects a number", key)
			}
			bound, err := decimal.NewFromString(value.Value)
			if err != nil {
				return nil, fmt.Errorf("%s expects a number, got %q", key, value.Value)
			}
			kind := CondGte
			if key == "lte" {
				kind = CondLte
			}
			out = append(out, Condition{Kind: kind, Bound: bound})
		default:
			return nil, fmt.Errorf("unknown operator %q", key)
		}
	}
	return out, nil
}

func decodeScalar(node *yaml.Node) (interface{}, error) {
	var v interface{}
	if err := node.Decode(&v); err != nil {
		return nil, fmt.Errorf("invalid scalar: %w", err)
	}
	if v == nil {
		return nil, errors.New("null is not a valid condition value")
	}
	return v, nil
}

func decodeScalarList(node *yaml.Node) ([]interface{}, error) {
	if node.Kind != yaml.SequenceNode {
		return nil, errors.New("expected a list")
	}
	if len(node.Content) == 0 {
		return nil, errors.New("list must not be empty")
	}
	values := make([]interface{}, 0, len(node.Content))
	for _, item := range node.Content {
		if item.Kind != yaml.ScalarNode {
			return nil, errors.New("list items must be scalars")
		}
		v, err := decodeScalar(item)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}
