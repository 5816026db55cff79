// Package rules defines the declarative safety rule model: outcomes, risk
// tiers, tagged-variant conditions and the answer bag they are evaluated
// against.
package rules

import (
	"math"
	"strconv"
	"strings"
)

// Outcome is the effect a triggered rule has on an intake request.
type Outcome string

// Outcomes in ascending severity.
const (
	OutcomePass         Outcome = "PASS"
	OutcomeRequiresCall Outcome = "REQUIRES_CALL"
	OutcomeDecline      Outcome = "DECLINE"
)

// Severity returns the ordinal position of the outcome (PASS=0).
// Unknown outcomes return -1.
func (o Outcome) Severity() int {
	switch o {
	case OutcomePass:
		return 0
	case OutcomeRequiresCall:
		return 1
	case OutcomeDecline:
		return 2
	default:
		return -1
	}
}

// Valid reports whether o is one of the declared outcomes.
func (o Outcome) Valid() bool { return o.Severity() >= 0 }

// RiskTier is the ordinal clinical severity attached to a rule.
type RiskTier string

// Risk tiers in ascending severity. TierNone is only produced by evaluation,
// never declared on a rule.
const (
	TierNone     RiskTier = "none"
	TierLow      RiskTier = "low"
	TierModerate RiskTier = "moderate"
	TierHigh     RiskTier = "high"
	TierCritical RiskTier = "critical"
)

// Rank returns the ordinal position of the tier (none=0). Unknown tiers return -1.
func (t RiskTier) Rank() int {
	switch t {
	case TierNone:
		return 0
	case TierLow:
		return 1
	case TierModerate:
		return 2
	case TierHigh:
		return 3
	case TierCritical:
		return 4
	default:
		return -1
	}
}

// Operator is a leaf comparison operator.
type Operator string

// Supported leaf operators (string values for clean YAML/JSON serialization).
const (
	OpEq          Operator = "eq"
	OpNeq         Operator = "neq"
	OpIn          Operator = "in"
	OpNotIn       Operator = "not_in"
	OpContains    Operator = "contains"
	OpContainsAny Operator = "contains_any"
	OpLt          Operator = "lt"
	OpLte         Operator = "lte"
	OpGt          Operator = "gt"
	OpGte         Operator = "gte"
	OpIsTrue      Operator = "is_true"
	OpIsFalse     Operator = "is_false"
)

// Canonical maps accepted aliases ("==", ">=", "not_in_list", ...) onto the
// declared operator constants. Unknown operators are returned unchanged.
func (op Operator) Canonical() Operator {
	switch strings.ToLower(string(op)) {
	case "==", "eq", "equals":
		return OpEq
	case "!=", "neq", "not_equals":
		return OpNeq
	case "in", "in_list":
		return OpIn
	case "not_in", "not_in_list", "nin":
		return OpNotIn
	case "contains":
		return OpContains
	case "contains_any", "any_of":
		return OpContainsAny
	case "<", "lt":
		return OpLt
	case "<=", "lte":
		return OpLte
	case ">", "gt":
		return OpGt
	case ">=", "gte":
		return OpGte
	case "is_true":
		return OpIsTrue
	case "is_false":
		return OpIsFalse
	default:
		return op
	}
}

// Kind identifies which variant of Condition is populated.
type Kind string

const (
	KindInvalid    Kind = "invalid"
	KindEquality   Kind = "equality"
	KindMembership Kind = "membership"
	KindThreshold  Kind = "threshold"
	KindBoolean    Kind = "boolean"
	KindAll        Kind = "all"
	KindAny        Kind = "any"
	KindExpression Kind = "expression"
)

// Condition is a predicate over the answer bag. Exactly one shape is
// populated: a leaf (Field + Op [+ Value]), a composite (All or Any), or a
// JSON Logic expression (Expr).
type Condition struct {
	Field string      `json:"field,omitempty" yaml:"field,omitempty"`
	Op    Operator    `json:"op,omitempty" yaml:"op,omitempty"`
	Value any         `json:"value,omitempty" yaml:"value,omitempty"`
	All   []Condition `json:"all,omitempty" yaml:"all,omitempty"`
	Any   []Condition `json:"any,omitempty" yaml:"any,omitempty"`
	Expr  string      `json:"expr,omitempty" yaml:"expr,omitempty"`
}

// Kind derives the variant from the populated fields. A condition mixing
// shapes, or using an unknown operator, is KindInvalid.
func (c Condition) Kind() Kind {
	shapes := 0
	if c.Field != "" || c.Op != "" {
		shapes++
	}
	if len(c.All) > 0 {
		shapes++
	}
	if len(c.Any) > 0 {
		shapes++
	}
	if strings.TrimSpace(c.Expr) != "" {
		shapes++
	}
	if shapes != 1 {
		return KindInvalid
	}

	switch {
	case len(c.All) > 0:
		return KindAll
	case len(c.Any) > 0:
		return KindAny
	case strings.TrimSpace(c.Expr) != "":
		return KindExpression
	}

	switch c.Op.Canonical() {
	case OpEq, OpNeq:
		return KindEquality
	case OpIn, OpNotIn, OpContains, OpContainsAny:
		return KindMembership
	case OpLt, OpLte, OpGt, OpGte:
		return KindThreshold
	case OpIsTrue, OpIsFalse:
		return KindBoolean
	default:
		return KindInvalid
	}
}

// Fields returns every answer field referenced by leaf conditions, in
// declaration order, without duplicates. Expression conditions are not
// inspected here.
func (c Condition) Fields() []string {
	seen := make(map[string]struct{})
	var out []string
	var walk func(Condition)
	walk = func(n Condition) {
		if n.Field != "" {
			if _, ok := seen[n.Field]; !ok {
				seen[n.Field] = struct{}{}
				out = append(out, n.Field)
			}
		}
		for _, child := range n.All {
			walk(child)
		}
		for _, child := range n.Any {
			walk(child)
		}
	}
	walk(c)
	return out
}

// SafetyRule is one declarative clinical safety check.
type SafetyRule struct {
	ID             string    `json:"ruleId" yaml:"ruleId"`
	Slugs          []string  `json:"slugs" yaml:"slugs"`
	Condition      Condition `json:"condition" yaml:"condition"`
	Outcome        Outcome   `json:"outcome" yaml:"outcome"`
	RiskTier       RiskTier  `json:"riskTier" yaml:"riskTier"`
	Absolute       bool      `json:"absolute,omitempty" yaml:"absolute,omitempty"`
	PatientTitle   string    `json:"patientTitle,omitempty" yaml:"patientTitle,omitempty"`
	PatientMessage string    `json:"patientMessage,omitempty" yaml:"patientMessage,omitempty"`
}

// AppliesTo reports whether the rule is registered for slug.
func (r SafetyRule) AppliesTo(slug string) bool {
	for _, s := range r.Slugs {
		if s == slug {
			return true
		}
	}
	return false
}

// Answers is the accumulated patient answer bag. Values are string, bool,
// number, or string slice. Callers own it; evaluation never mutates it.
type Answers map[string]any

// Lookup returns the value for field. JSON null is reported as absent.
func (a Answers) Lookup(field string) (any, bool) {
	if a == nil {
		return nil, false
	}
	v, ok := a[field]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// ParseDecimal parses a plain decimal answer such as "17", "-2" or "18.5".
// Exponents, underscores, hex, "Inf" and "NaN" are rejected: intake forms
// never produce them, so their presence means the answer is malformed.
// Surrounding whitespace is ignored.
func ParseDecimal(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	digits, dots := 0, 0
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '.':
			dots++
		case (r == '+' || r == '-') && i == 0:
		default:
			return 0, false
		}
	}
	if digits == 0 || dots > 1 {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}
