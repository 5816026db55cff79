package rules

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors returned by ValidateRule.
var (
	ErrInvalidRule      = errors.New("invalid rule")
	ErrInvalidOperator  = errors.New("invalid operator")
	ErrInvalidCondition = errors.New("invalid condition")
	ErrInvalidValueType = errors.New("invalid value type")
)

// maxConditionDepth bounds nesting of all/any composites.
const maxConditionDepth = 8

// ExpressionValidator checks an expression condition. The catalog wires the
// JSON Logic validator in; nil skips expression validation.
type ExpressionValidator func(expr string) error

// ValidateRule performs strict validation of a SafetyRule.
// It is a pure function: it never mutates r and has no side effects.
func ValidateRule(r SafetyRule, validateExpr ExpressionValidator) error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("%w: ruleId must not be empty", ErrInvalidRule)
	}
	if len(r.Slugs) == 0 {
		return fmt.Errorf("%w: rule %q must apply to at least one slug", ErrInvalidRule, r.ID)
	}
	seen := make(map[string]struct{}, len(r.Slugs))
	for i, slug := range r.Slugs {
		if strings.TrimSpace(slug) == "" {
			return fmt.Errorf("%w: rule %q slugs[%d] must not be empty", ErrInvalidRule, r.ID, i)
		}
		if _, dup := seen[slug]; dup {
			return fmt.Errorf("%w: rule %q lists slug %q twice", ErrInvalidRule, r.ID, slug)
		}
		seen[slug] = struct{}{}
	}

	if !r.Outcome.Valid() {
		return fmt.Errorf("%w: rule %q outcome %q is not supported", ErrInvalidRule, r.ID, r.Outcome)
	}
	if rank := r.RiskTier.Rank(); rank <= 0 {
		return fmt.Errorf("%w: rule %q riskTier %q must be one of low, moderate, high, critical", ErrInvalidRule, r.ID, r.RiskTier)
	}
	if r.Outcome == OutcomeDecline && strings.TrimSpace(r.PatientMessage) == "" {
		return fmt.Errorf("%w: rule %q declines but has no patientMessage", ErrInvalidRule, r.ID)
	}
	if r.Absolute && (r.Outcome != OutcomeDecline || r.RiskTier != TierCritical) {
		return fmt.Errorf("%w: absolute rule %q must be DECLINE with riskTier critical", ErrInvalidRule, r.ID)
	}

	if err := validateCondition("condition", r.Condition, 0, validateExpr); err != nil {
		return fmt.Errorf("rule %q: %w", r.ID, err)
	}
	return nil
}

func validateCondition(path string, c Condition, depth int, validateExpr ExpressionValidator) error {
	if depth > maxConditionDepth {
		return fmt.Errorf("%w: %s nests deeper than %d levels", ErrInvalidCondition, path, maxConditionDepth)
	}

	switch c.Kind() {
	case KindAll:
		return validateChildren(path+".all", c.All, depth, validateExpr)
	case KindAny:
		return validateChildren(path+".any", c.Any, depth, validateExpr)
	case KindExpression:
		if validateExpr == nil {
			return nil
		}
		if err := validateExpr(c.Expr); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidCondition, path, err)
		}
		return nil
	case KindInvalid:
		if c.Op != "" && c.Field != "" && len(c.All) == 0 && len(c.Any) == 0 && c.Expr == "" {
			return fmt.Errorf("%w: %s operator %q is not supported", ErrInvalidOperator, path, c.Op)
		}
		return fmt.Errorf("%w: %s must set exactly one of field/op, all, any, expr", ErrInvalidCondition, path)
	}

	if strings.TrimSpace(c.Field) == "" {
		return fmt.Errorf("%w: %s field must not be empty", ErrInvalidCondition, path)
	}
	if c.Op == "" {
		return fmt.Errorf("%w: %s op must not be empty", ErrInvalidCondition, path)
	}
	return validateValueType(path, c.Op, c.Value)
}

func validateChildren(path string, children []Condition, depth int, validateExpr ExpressionValidator) error {
	for i, child := range children {
		if err := validateCondition(fmt.Sprintf("%s[%d]", path, i), child, depth+1, validateExpr); err != nil {
			return err
		}
	}
	return nil
}

// validateValueType checks that the condition value has a type compatible with
// the operator. It uses explicit type assertions, no reflection.
func validateValueType(path string, op Operator, v any) error {
	switch op.Canonical() {
	case OpEq, OpNeq, OpContains:
		if !isScalar(v) {
			return fmt.Errorf("%w: %s operator %q requires a scalar value (string, bool, or number)", ErrInvalidValueType, path, op)
		}

	case OpIn, OpNotIn, OpContainsAny:
		if !isSlice(v) {
			return fmt.Errorf("%w: %s operator %q requires a list value", ErrInvalidValueType, path, op)
		}

	case OpLt, OpLte, OpGt, OpGte:
		if !isNumeric(v) {
			return fmt.Errorf("%w: %s operator %q requires a numeric value", ErrInvalidValueType, path, op)
		}

	case OpIsTrue, OpIsFalse:
		if v != nil {
			return fmt.Errorf("%w: %s operator %q takes no value", ErrInvalidValueType, path, op)
		}
	}

	return nil
}

// isSlice returns true for non-empty slice types that may appear after
// YAML/JSON unmarshaling or be provided programmatically.
func isSlice(v any) bool {
	switch s := v.(type) {
	case []any:
		return len(s) > 0
	case []string:
		return len(s) > 0
	case []int:
		return len(s) > 0
	case []float64:
		return len(s) > 0
	}
	return false
}

// isNumeric returns true for integer and floating-point types.
func isNumeric(v any) bool {
	switch v.(type) {
	case int, int32, int64, uint, uint32, uint64, float32, float64:
		return true
	}
	return false
}

// isScalar returns true for basic scalar types (string, bool, numeric).
func isScalar(v any) bool {
	if _, ok := v.(string); ok {
		return true
	}
	if _, ok := v.(bool); ok {
		return true
	}
	return isNumeric(v)
}
