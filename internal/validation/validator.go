// Package validation checks the shape of evaluation requests before they
// reach the engine. It deliberately does not reject answer value types:
// malformed values are degraded inside the engine and recorded as notices.
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// MaxSlugLength is the maximum length for slugs and service identifiers
	MaxSlugLength = 64
	// MaxFieldNameLength is the maximum length for an answer field name
	MaxFieldNameLength = 128
	// MaxAnswerFields is the maximum number of answers in one request
	MaxAnswerFields = 256
	// MaxStringAnswerLength is the maximum length of a free-text answer
	MaxStringAnswerLength = 4096
	// MaxBodyBytes is the request body limit enforced by the API
	MaxBodyBytes = 1 << 20
)

var (
	// slugPattern matches lowercase kebab/snake identifiers such as "consult-ed"
	slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)
	// fieldPattern matches answer keys such as "edSafety_nitrates"
	fieldPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_.]*$`)
)

// ValidationResult holds the result of validation
type ValidationResult struct {
	Valid  bool
	Errors map[string]string
}

// NewValidationResult creates a new validation result
func NewValidationResult() *ValidationResult {
	return &ValidationResult{
		Valid:  true,
		Errors: make(map[string]string),
	}
}

// AddError adds a field error and marks the result as invalid
func (v *ValidationResult) AddError(field, message string) {
	v.Valid = false
	v.Errors[field] = message
}

// Merge combines another validation result into this one
func (v *ValidationResult) Merge(other *ValidationResult) {
	if other == nil {
		return
	}
	for field, message := range other.Errors {
		v.AddError(field, message)
	}
}

// EvaluateParams is the request shape shared by /evaluate and /verify.
type EvaluateParams struct {
	Slug        string
	ServiceType string
	Subtype     string
	Answers     map[string]any
}

// ValidateEvaluate validates an evaluation request.
func ValidateEvaluate(p EvaluateParams) *ValidationResult {
	result := NewValidationResult()

	switch {
	case p.Slug != "":
		result.Merge(ValidateSlug("slug", p.Slug))
	case p.ServiceType != "":
		result.Merge(ValidateSlug("serviceType", p.ServiceType))
		if p.Subtype != "" {
			result.Merge(ValidateSlug("subtype", p.Subtype))
		}
	default:
		result.AddError("slug", "Either slug or serviceType is required")
	}

	result.Merge(ValidateAnswers(p.Answers))
	return result
}

// ValidateSlug validates a slug-like identifier under the given field name.
func ValidateSlug(field, value string) *ValidationResult {
	result := NewValidationResult()
	value = strings.TrimSpace(value)

	if value == "" {
		result.AddError(field, "Value is required")
		return result
	}
	if utf8.RuneCountInString(value) > MaxSlugLength {
		result.AddError(field, fmt.Sprintf("Value must not exceed %d characters", MaxSlugLength))
		return result
	}
	if !slugPattern.MatchString(value) {
		result.AddError(field, "Value must contain only lowercase letters, digits, underscores, and hyphens")
	}
	return result
}

// ValidateAnswers bounds the answer bag's size and key shape. A nil bag is
// valid (nothing answered yet).
func ValidateAnswers(answers map[string]any) *ValidationResult {
	result := NewValidationResult()

	if len(answers) > MaxAnswerFields {
		result.AddError("answers", fmt.Sprintf("Answers must not contain more than %d fields", MaxAnswerFields))
		return result
	}

	for name, value := range answers {
		key := "answers." + name
		if utf8.RuneCountInString(name) > MaxFieldNameLength {
			result.AddError("answers", fmt.Sprintf("Field names must not exceed %d characters", MaxFieldNameLength))
			continue
		}
		if !fieldPattern.MatchString(name) {
			result.AddError(key, "Field name must start with a letter and contain only letters, digits, underscores, and dots")
			continue
		}
		if s, ok := value.(string); ok && utf8.RuneCountInString(s) > MaxStringAnswerLength {
			result.AddError(key, fmt.Sprintf("Answer must not exceed %d characters", MaxStringAnswerLength))
		}
	}
	return result
}
