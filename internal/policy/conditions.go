package policy

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/shopspring/decimal"
)

// ConditionKind is the closed set of comparison operators
type ConditionKind int

const (
	CondEquals ConditionKind = iota
	CondAnyOf
	CondAllOf
	CondContains
	CondGte
	CondLte
)

func (k ConditionKind) String() string {
	switch k {
	case CondEquals:
		return "equals"
	case CondAnyOf:
		return "anyOf"
	case CondAllOf:
		return "allOf"
	case CondContains:
		return "contains"
	case CondGte:
		return "gte"
	case CondLte:
		return "lte"
	}
	return "unknown"
}

// Condition is one compiled predicate on an attribute value
type Condition struct {
	Kind   ConditionKind
	Value  interface{}
	Values []interface{}
	Bound  decimal.Decimal
}

// AttributeCondition binds predicates to one attribute. All predicates must hold.
type AttributeCondition struct {
	Attribute  string
	Predicates []Condition
}

// Conditions groups attribute conditions by the bag they read from
type Conditions struct {
	Subject  []AttributeCondition
	Resource []AttributeCondition
	Context  []AttributeCondition
}

func (c Conditions) Empty() bool {
	return len(c.Subject) == 0 && len(c.Resource) == 0 && len(c.Context) == 0
}

// Holds evaluates every condition group. A missing attribute fails its condition.
func (c Conditions) Holds(subject Subject, resource Resource, ctx Context) bool {
	return groupHolds(c.Subject, subject.Attributes) &&
		groupHolds(c.Resource, resource.Attributes) &&
		groupHolds(c.Context, ctx)
}

func groupHolds[M ~map[string]interface{}](conds []AttributeCondition, bag M) bool {
	for _, cond := range conds {
		actual, ok := bag[cond.Attribute]
		if !ok || actual == nil {
			return false
		}
		for _, p := range cond.Predicates {
			if !p.Holds(actual) {
				return false
			}
		}
	}
	return true
}

// Holds applies the predicate to a present attribute value
func (c Condition) Holds(actual interface{}) bool {
	switch c.Kind {
	case CondEquals:
		return valuesEqual(actual, c.Value)
	case CondAnyOf:
		if items, ok := asList(actual); ok {
			for _, item := range items {
				if containsValue(c.Values, item) {
					return true
				}
			}
			return false
		}
		return containsValue(c.Values, actual)
	case CondAllOf:
		items, ok := asList(actual)
		if !ok {
			items = []interface{}{actual}
		}
		for _, want := range c.Values {
			if !containsValue(items, want) {
				return false
			}
		}
		return true
	case CondContains:
		if items, ok := asList(actual); ok {
			return containsValue(items, c.Value)
		}
		s, ok := actual.(string)
		want, wantOK := c.Value.(string)
		return ok && wantOK && strings.Contains(s, want)
	case CondGte:
		n, ok := toDecimal(actual)
		return ok && n.GreaterThanOrEqual(c.Bound)
	case CondLte:
		n, ok := toDecimal(actual)
		return ok && n.LessThanOrEqual(c.Bound)
	}
	return false
}

func containsValue(items []interface{}, want interface{}) bool {
	for _, item := range items {
		if valuesEqual(item, want) {
			return true
		}
	}
	return false
}

func valuesEqual(a, b interface{}) bool {
	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			return as == bs
		}
	}
	if da, ok := toDecimal(a); ok {
		if db, ok := toDecimal(b); ok {
			return da.Equal(db)
		}
		return false
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	}
	return reflect.DeepEqual(a, b)
}

// toDecimal converts numeric values only; numeric strings are accepted so that amounts
// carried as decimal strings compare exactly.
func toDecimal(v interface{}) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int32:
		return decimal.NewFromInt32(n), true
	case int64:
		return decimal.NewFromInt(n), true
	case uint64:
		return decimal.NewFromUint64(n), true
	case float32:
		return decimal.NewFromFloat32(n), true
	case float64:
		return decimal.NewFromFloat(n), true
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		return d, err == nil
	case decimal.Decimal:
		return n, true
	case string:
		d, err := decimal.NewFromString(n)
		return d, err == nil
	}
	return decimal.Decimal{}, false
}

func asList(v interface{}) ([]interface{}, bool) {
	switch items := v.(type) {
	case []interface{}:
		return items, true
	case []string:
		out := make([]interface{}, len(items))
		for i, s := range items {
			out[i] = s
		}
		return out, true
	}
	return nil, false
}

func (c Condition) String() string {
	switch c.Kind {
	case CondAnyOf, CondAllOf:
		return fmt.Sprintf("%s%v", c.Kind, c.Values)
	case CondGte, CondLte:
		return fmt.Sprintf("%s(%s)", c.Kind, c.Bound)
	}
	return fmt.Sprintf("%s(%v)", c.Kind, c.Value)
}
