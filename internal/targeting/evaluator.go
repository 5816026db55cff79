// Package targeting evaluates JSON Logic (jsonlogic.com) expression conditions
// against a patient answer bag. The same documents run unchanged in the
// browser pre-check, which keeps client and server verdicts identical.
package targeting

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/diegoholiveira/jsonlogic/v3"

	"github.com/TimurManjosov/safetygate/internal/rules"
)

// ErrInvalidExpression is returned when an expression is not valid JSON Logic.
var ErrInvalidExpression = errors.New("invalid expression: not valid JSON Logic")

// ErrEmptyExpression is returned when an expression is empty or whitespace.
var ErrEmptyExpression = errors.New("invalid expression: empty or whitespace")

// ErrEvaluation is returned when a valid expression fails against the data.
var ErrEvaluation = errors.New("expression evaluation failed")

// ErrMalformedAnswer is matched by *MalformedAnswerError.
var ErrMalformedAnswer = errors.New("malformed answer")

// MalformedAnswerError reports an answer whose type an arithmetic operator
// cannot use, such as a boolean age.
type MalformedAnswerError struct {
	Field    string
	Operator string
	Value    any
}

func (e *MalformedAnswerError) Error() string {
	return fmt.Sprintf("%s: operator %q cannot compare %T in %s", ErrMalformedAnswer, e.Operator, e.Value, e.Field)
}

func (e *MalformedAnswerError) Is(target error) bool { return target == ErrMalformedAnswer }

// numericOperators coerce their operands the way JavaScript does, so a
// boolean or list answer would silently compare as a number.
var numericOperators = map[string]bool{
	"<": true, "<=": true, ">": true, ">=": true,
	"+": true, "-": true, "*": true, "/": true, "%": true,
	"min": true, "max": true,
}

// Evaluate evaluates a JSON Logic expression against the answer bag.
//
// Every variable the expression references must be present in answers;
// otherwise the expression is false and no error is returned (missing data
// never triggers a rule). Variables used by arithmetic operators must hold a
// number or a plain decimal string, otherwise the expression is false with a
// *MalformedAnswerError. Any other error means the expression or the data
// could not be evaluated; the caller should record the degrade.
func Evaluate(expression string, answers rules.Answers) (bool, error) {
	if strings.TrimSpace(expression) == "" {
		return false, ErrEmptyExpression
	}

	var rule any
	if err := json.Unmarshal([]byte(expression), &rule); err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidExpression, err)
	}
	for _, name := range collectVars(rule) {
		if _, ok := answers.Lookup(name); !ok {
			return false, nil
		}
	}
	if err := checkNumericOperands(rule, answers); err != nil {
		return false, err
	}

	dataBytes, err := json.Marshal(answers)
	if err != nil {
		return false, err
	}

	var resultBuf bytes.Buffer
	if err := jsonlogic.Apply(strings.NewReader(expression), bytes.NewReader(dataBytes), &resultBuf); err != nil {
		return false, fmt.Errorf("%w: %v", ErrEvaluation, err)
	}

	var result any
	if err := json.Unmarshal(resultBuf.Bytes(), &result); err != nil {
		return false, err
	}

	return isTruthy(result), nil
}

// ValidateExpression checks if an expression is valid JSON Logic.
// Returns nil if valid, or an error describing why it's invalid.
func ValidateExpression(expression string) error {
	if strings.TrimSpace(expression) == "" {
		return ErrEmptyExpression
	}

	if _, err := Vars(expression); err != nil {
		return err
	}

	// Try to validate by applying against empty data
	var resultBuf bytes.Buffer
	if err := jsonlogic.Apply(strings.NewReader(expression), strings.NewReader("{}"), &resultBuf); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidExpression, err)
	}

	return nil
}

// Vars returns the top-level answer fields referenced through "var" in the
// expression, in first-seen order. A dotted path contributes its first
// segment.
func Vars(expression string) ([]string, error) {
	var rule any
	if err := json.Unmarshal([]byte(expression), &rule); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExpression, err)
	}
	return collectVars(rule), nil
}

func collectVars(rule any) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(name string) {
		head, _, _ := strings.Cut(name, ".")
		if head == "" {
			return
		}
		if _, ok := seen[head]; ok {
			return
		}
		seen[head] = struct{}{}
		out = append(out, head)
	}

	var walk func(any)
	walk = func(node any) {
		switch n := node.(type) {
		case map[string]any:
			for op, arg := range n {
				if op != "var" {
					walk(arg)
					continue
				}
				switch a := arg.(type) {
				case string:
					add(a)
				case []any:
					if len(a) > 0 {
						if s, ok := a[0].(string); ok {
							add(s)
						}
					}
				}
			}
		case []any:
			for _, item := range n {
				walk(item)
			}
		}
	}
	walk(rule)
	return out
}

// checkNumericOperands rejects answers that an arithmetic operator would
// coerce: anything but a finite number or a plain decimal string.
func checkNumericOperands(node any, answers rules.Answers) error {
	switch n := node.(type) {
	case map[string]any:
		// sorted so the reported field is stable across runs
		ops := make([]string, 0, len(n))
		for op := range n {
			ops = append(ops, op)
		}
		sort.Strings(ops)
		for _, op := range ops {
			arg := n[op]
			if numericOperators[op] {
				operands, ok := arg.([]any)
				if !ok {
					operands = []any{arg}
				}
				for _, operand := range operands {
					name, ok := varName(operand)
					if !ok {
						continue
					}
					if v, present := answers.Lookup(name); present && !isNumeric(v) {
						return &MalformedAnswerError{Field: name, Operator: op, Value: v}
					}
				}
			}
			if err := checkNumericOperands(arg, answers); err != nil {
				return err
			}
		}
	case []any:
		for _, item := range n {
			if err := checkNumericOperands(item, answers); err != nil {
				return err
			}
		}
	}
	return nil
}

// varName returns the top-level field of a {"var": ...} node. Dotted paths
// are not checked.
func varName(node any) (string, bool) {
	m, ok := node.(map[string]any)
	if !ok || len(m) != 1 {
		return "", false
	}
	var name string
	switch a := m["var"].(type) {
	case string:
		name = a
	case []any:
		if len(a) > 0 {
			name, _ = a[0].(string)
		}
	}
	if name == "" || strings.Contains(name, ".") {
		return "", false
	}
	return name, true
}

func isNumeric(v any) bool {
	switch n := v.(type) {
	case int, int32, int64, uint, uint32, uint64:
		return true
	case float32:
		return !math.IsInf(float64(n), 0) && !math.IsNaN(float64(n))
	case float64:
		return !math.IsInf(n, 0) && !math.IsNaN(n)
	case json.Number:
		f, err := n.Float64()
		return err == nil && !math.IsInf(f, 0) && !math.IsNaN(f)
	case string:
		// jsonlogic does not trim, so padded numbers would compare as NaN
		_, ok := rules.ParseDecimal(n)
		return ok && strings.TrimSpace(n) == n
	default:
		return false
	}
}

// isTruthy follows JavaScript-like truthiness rules.
// Returns true for non-zero numbers, non-empty strings, non-empty arrays/objects, and true boolean.
func isTruthy(v any) bool {
	if v == nil {
		return false
	}
	switch val := v.(type) {
	case bool:
		return val
	case float64:
		return val != 0
	case string:
		return val != ""
	case []any:
		return len(val) > 0
	case map[string]any:
		return len(val) > 0
	default:
		return true
	}
}
