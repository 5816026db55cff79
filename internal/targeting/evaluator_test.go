package targeting

import (
	"errors"
	"reflect"
	"testing"

	"github.com/TimurManjosov/safetygate/internal/rules"
)

func TestEvaluate_EmptyExpression(t *testing.T) {
	for _, expr := range []string{"", "   "} {
		if _, err := Evaluate(expr, rules.Answers{"x": "yes"}); !errors.Is(err, ErrEmptyExpression) {
			t.Fatalf("Evaluate(%q) error = %v, want ErrEmptyExpression", expr, err)
		}
	}
}

func TestEvaluate_SimpleEquality(t *testing.T) {
	expression := `{"==": [{"var": "edSafety_nitrates"}, "yes"]}`

	result, err := Evaluate(expression, rules.Answers{"edSafety_nitrates": "yes"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result {
		t.Error("Expected true for nitrates=yes")
	}

	result, err = Evaluate(expression, rules.Answers{"edSafety_nitrates": "no"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result {
		t.Error("Expected false for nitrates=no")
	}
}

func TestEvaluate_AndCondition(t *testing.T) {
	// Soft block: condition present and not managed by a doctor
	expression := `{"and": [{"==": [{"var": "highBloodPressure"}, "yes"]}, {"!=": [{"var": "bpManaged"}, "yes"]}]}`

	tests := []struct {
		name     string
		answers  rules.Answers
		expected bool
	}{
		{"unmanaged", rules.Answers{"highBloodPressure": "yes", "bpManaged": "no"}, true},
		{"managed", rules.Answers{"highBloodPressure": "yes", "bpManaged": "yes"}, false},
		{"no condition", rules.Answers{"highBloodPressure": "no", "bpManaged": "no"}, false},
		{"follow-up not answered", rules.Answers{"highBloodPressure": "yes"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Evaluate(expression, tt.answers)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, result)
			}
		})
	}
}

func TestEvaluate_NumericComparison(t *testing.T) {
	expression := `{"<": [{"var": "bmi"}, 18.5]}`

	tests := []struct {
		name     string
		answers  rules.Answers
		expected bool
	}{
		{"underweight", rules.Answers{"bmi": 17.9}, true},
		{"boundary", rules.Answers{"bmi": 18.5}, false},
		{"healthy", rules.Answers{"bmi": 24.0}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Evaluate(expression, tt.answers)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, result)
			}
		})
	}
}

func TestEvaluate_MissingVariableNeverTriggers(t *testing.T) {
	// A negated check would be true on null; absence must still short-circuit to false.
	expression := `{"!": {"==": [{"var": "managedByDoctor"}, "yes"]}}`

	result, err := Evaluate(expression, rules.Answers{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result {
		t.Error("Expected false when variable is missing")
	}

	result, err = Evaluate(expression, rules.Answers{"managedByDoctor": nil})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result {
		t.Error("Expected false when variable is null")
	}
}

func TestEvaluate_NumericOperandTypes(t *testing.T) {
	expression := `{"and":[{"<":[{"var":"age"},16]},{"!=":[{"var":"guardian"},"yes"]}]}`

	tests := []struct {
		name          string
		age           any
		expected      bool
		wantMalformed bool
	}{
		{"number", 15, true, false},
		{"numeric string", "15", true, false},
		{"adult", 40.0, false, false},
		{"boolean", true, false, true},
		{"list", []any{15}, false, true},
		{"object", map[string]any{"years": 15}, false, true},
		{"word", "young", false, true},
		{"underscore digits", "1_5", false, true},
		{"padded", " 15 ", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Evaluate(expression, rules.Answers{"age": tt.age, "guardian": "no"})
			if result != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, result)
			}
			if !tt.wantMalformed {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var malformed *MalformedAnswerError
			if !errors.As(err, &malformed) || !errors.Is(err, ErrMalformedAnswer) {
				t.Fatalf("Expected *MalformedAnswerError, got %v", err)
			}
			if malformed.Field != "age" || malformed.Operator != "<" {
				t.Fatalf("unexpected error fields %+v", malformed)
			}
		})
	}
}

func TestEvaluate_EqualityIgnoresOperandTypes(t *testing.T) {
	result, err := Evaluate(`{"==":[{"var":"consent"},true]}`, rules.Answers{"consent": true})
	if err != nil || !result {
		t.Fatalf("Evaluate() = %v, %v; want true, nil", result, err)
	}
}

func TestEvaluate_InvalidJSON(t *testing.T) {
	_, err := Evaluate("not valid json", rules.Answers{})
	if !errors.Is(err, ErrInvalidExpression) {
		t.Errorf("Expected ErrInvalidExpression, got %v", err)
	}
}

func TestEvaluate_DataFailureIsNotInvalidExpression(t *testing.T) {
	// a list seed is only rejected once there are items to reduce
	expr := `{"reduce":[{"var":"items"},{"+":[1,2]},[0]]}`
	if err := ValidateExpression(expr); err != nil {
		t.Fatalf("ValidateExpression() error = %v", err)
	}

	_, err := Evaluate(expr, rules.Answers{"items": []any{1.0}})
	if !errors.Is(err, ErrEvaluation) {
		t.Fatalf("Expected ErrEvaluation, got %v", err)
	}
	if errors.Is(err, ErrInvalidExpression) {
		t.Fatalf("data failure reported as invalid expression: %v", err)
	}
}

func TestVars(t *testing.T) {
	expression := `{"or": [
		{"and": [{"==": [{"var": "a"}, 1]}, {"in": [{"var": ["b.c", "x"]}, ["x"]]}]},
		{"==": [{"var": "a"}, 2]},
		{"==": [{"var": ""}, 2]}
	]}`

	got, err := Vars(expression)
	if err != nil {
		t.Fatalf("Vars: %v", err)
	}
	want := []string{"a", "b"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Vars() = %v, want %v", got, want)
	}
}

func TestValidateExpression(t *testing.T) {
	valid := []string{
		`{"==": [{"var": "plan"}, "premium"]}`,
		`{"and": [true, true]}`,
		`{"!": false}`,
		`{"in": [{"var": "x"}, ["a", "b", "c"]]}`,
		`{">=": [{"var": "age"}, 18]}`,
	}
	for _, expr := range valid {
		t.Run(expr, func(t *testing.T) {
			if err := ValidateExpression(expr); err != nil {
				t.Errorf("Expected valid expression, got error: %v", err)
			}
		})
	}

	invalid := []string{"", "not json", `{incomplete json`}
	for _, expr := range invalid {
		t.Run("invalid "+expr, func(t *testing.T) {
			if err := ValidateExpression(expr); err == nil {
				t.Error("Expected error for invalid expression")
			}
		})
	}
}
