package engine

import (
	"encoding/json"
	"math"

	"github.com/TimurManjosov/safetygate/internal/rules"
)

// OperatorHandler evaluates one leaf operator. ok is false when the answer
// value has a type the operator cannot compare; matched is then always false.
type OperatorHandler interface {
	Check(answer, ruleValue any) (matched, ok bool)
}

var operatorHandlers = map[rules.Operator]OperatorHandler{
	rules.OpEq:          equalsHandler{},
	rules.OpNeq:         notEqualsHandler{},
	rules.OpIn:          inListHandler{},
	rules.OpNotIn:       notInListHandler{},
	rules.OpContains:    containsHandler{},
	rules.OpContainsAny: containsAnyHandler{},
	rules.OpLt:          numericCompareHandler{cmp: func(a, b float64) bool { return a < b }},
	rules.OpLte:         numericCompareHandler{cmp: func(a, b float64) bool { return a <= b }},
	rules.OpGt:          numericCompareHandler{cmp: func(a, b float64) bool { return a > b }},
	rules.OpGte:         numericCompareHandler{cmp: func(a, b float64) bool { return a >= b }},
	rules.OpIsTrue:      boolHandler{want: true},
	rules.OpIsFalse:     boolHandler{want: false},
}

func getOperatorHandler(op rules.Operator) (OperatorHandler, bool) {
	h, ok := operatorHandlers[op.Canonical()]
	return h, ok
}

type equalsHandler struct{}

func (equalsHandler) Check(answer, ruleValue any) (bool, bool) {
	if rule, ok := toString(ruleValue); ok {
		user, ok := toString(answer)
		return ok && user == rule, ok
	}
	if rule, ok := toFloat64(ruleValue); ok {
		user, ok := toNumber(answer)
		return ok && user == rule, ok
	}
	if rule, ok := ruleValue.(bool); ok {
		user, ok := answer.(bool)
		return ok && user == rule, ok
	}
	return false, false
}

type notEqualsHandler struct{}

func (notEqualsHandler) Check(answer, ruleValue any) (bool, bool) {
	matched, ok := equalsHandler{}.Check(answer, ruleValue)
	if !ok {
		return false, false
	}
	return !matched, true
}

type inListHandler struct{}

func (inListHandler) Check(answer, ruleValue any) (bool, bool) {
	list, ok := toSlice(ruleValue)
	if !ok || !isScalarAnswer(answer) {
		return false, false
	}
	for _, item := range list {
		if matched, ok := (equalsHandler{}).Check(answer, item); ok && matched {
			return true, true
		}
	}
	return false, true
}

type notInListHandler struct{}

func (notInListHandler) Check(answer, ruleValue any) (bool, bool) {
	matched, ok := inListHandler{}.Check(answer, ruleValue)
	if !ok {
		return false, false
	}
	return !matched, true
}

// containsHandler matches when a multi-select answer includes ruleValue.
// A single string answer is treated as a one-element selection.
type containsHandler struct{}

func (containsHandler) Check(answer, ruleValue any) (bool, bool) {
	selected, ok := toStringSlice(answer)
	if !ok {
		return false, false
	}
	want, ok := toString(ruleValue)
	if !ok {
		return false, false
	}
	for _, s := range selected {
		if s == want {
			return true, true
		}
	}
	return false, true
}

type containsAnyHandler struct{}

func (containsAnyHandler) Check(answer, ruleValue any) (bool, bool) {
	selected, ok := toStringSlice(answer)
	if !ok {
		return false, false
	}
	wanted, ok := toStringSlice(ruleValue)
	if !ok {
		return false, false
	}
	set := make(map[string]struct{}, len(wanted))
	for _, w := range wanted {
		set[w] = struct{}{}
	}
	for _, s := range selected {
		if _, hit := set[s]; hit {
			return true, true
		}
	}
	return false, true
}

type numericCompareHandler struct {
	cmp func(a, b float64) bool
}

func (h numericCompareHandler) Check(answer, ruleValue any) (bool, bool) {
	user, ok := toNumber(answer)
	if !ok {
		return false, false
	}
	rule, ok := toFloat64(ruleValue)
	if !ok {
		return false, false
	}
	return h.cmp(user, rule), true
}

type boolHandler struct {
	want bool
}

func (h boolHandler) Check(answer, _ any) (bool, bool) {
	b, ok := answer.(bool)
	if !ok {
		return false, false
	}
	return b == h.want, true
}

func toString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return finite(float64(n))
	case float64:
		return finite(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return finite(f)
	default:
		return 0, false
	}
}

func finite(f float64) (float64, bool) {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

// toNumber widens toFloat64 to numeric strings, which is how intake forms
// submit free-text numeric answers such as BMI or age.
func toNumber(v any) (float64, bool) {
	if f, ok := toFloat64(v); ok {
		return f, true
	}
	s, ok := v.(string)
	if !ok {
		return 0, false
	}
	return rules.ParseDecimal(s)
}

func toSlice(v any) ([]any, bool) {
	switch values := v.(type) {
	case []any:
		return values, true
	case []string:
		out := make([]any, len(values))
		for i, s := range values {
			out[i] = s
		}
		return out, true
	case []int:
		out := make([]any, len(values))
		for i, n := range values {
			out[i] = n
		}
		return out, true
	case []float64:
		out := make([]any, len(values))
		for i, n := range values {
			out[i] = n
		}
		return out, true
	default:
		return nil, false
	}
}

func toStringSlice(v any) ([]string, bool) {
	switch values := v.(type) {
	case string:
		return []string{values}, true
	case []string:
		return values, true
	case []any:
		result := make([]string, 0, len(values))
		for _, item := range values {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			result = append(result, s)
		}
		return result, true
	default:
		return nil, false
	}
}

func isScalarAnswer(v any) bool {
	switch v.(type) {
	case string, bool:
		return true
	}
	_, ok := toFloat64(v)
	return ok
}
