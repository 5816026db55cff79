// Package engine implements the clinical safety evaluator: a pure function
// from (slug, answers) to a single worst-case verdict.
//
// Evaluation order:
//  1. Fetch the slug's rules; an unknown slug fails open to PASS.
//  2. Evaluate each rule's condition in catalog order. Absent fields are
//     false; wrongly typed values are false and recorded as notices.
//  3. Pick the most severe triggered rule by outcome, then risk tier, then
//     declaration order.
//  4. Return it first, followed by the other triggered rules in catalog order.
//
// EvaluateSafety holds no state and performs no I/O, so it is safe to call
// concurrently against a shared, immutable RuleSource.
package engine

import (
	"errors"
	"fmt"

	"github.com/TimurManjosov/safetygate/internal/rules"
	"github.com/TimurManjosov/safetygate/internal/targeting"
)

// RuleSource supplies the ordered rules registered for a slug. Any error is
// treated as "no rule set" and fails open.
type RuleSource interface {
	RulesForSlug(slug string) ([]rules.SafetyRule, error)
}

// EvaluateSafety computes the deterministic safety verdict for slug and answers.
func EvaluateSafety(src RuleSource, slug string, answers rules.Answers) Result {
	result := passResult(slug)

	if src == nil {
		result.Notices = []Notice{{Kind: NoticeUnknownSlug, Detail: "no rule catalog loaded"}}
		return result
	}

	ruleSet, err := src.RulesForSlug(slug)
	if err != nil {
		result.Notices = []Notice{{Kind: NoticeUnknownSlug, Detail: err.Error()}}
		return result
	}

	var notices []Notice
	triggered := make([]int, 0, 4)
	for i, rule := range ruleSet {
		ev := conditionEval{ruleID: rule.ID, answers: answers, notices: &notices}
		if ev.eval(rule.Condition) {
			triggered = append(triggered, i)
		}
	}
	result.Notices = notices

	if len(triggered) == 0 {
		return result
	}

	primary := triggered[0]
	for _, idx := range triggered[1:] {
		if moreSevere(ruleSet[idx], ruleSet[primary]) {
			primary = idx
		}
	}

	top := ruleSet[primary]
	result.Outcome = top.Outcome
	// the selected rule's tier, not the highest tier among triggered rules
	result.RiskTier = top.RiskTier
	if top.Outcome != rules.OutcomePass {
		result.PatientTitle = top.PatientTitle
		result.PatientMessage = top.PatientMessage
	}

	result.TriggeredRules = make([]TriggeredRule, 0, len(triggered))
	result.TriggeredRules = append(result.TriggeredRules, toTriggered(top))
	for _, idx := range triggered {
		if idx != primary {
			result.TriggeredRules = append(result.TriggeredRules, toTriggered(ruleSet[idx]))
		}
	}
	return result
}

// moreSevere reports whether a strictly outranks b. Equal rank keeps the
// earlier-declared rule, which the caller guarantees by scanning in order.
func moreSevere(a, b rules.SafetyRule) bool {
	if sa, sb := a.Outcome.Severity(), b.Outcome.Severity(); sa != sb {
		return sa > sb
	}
	return a.RiskTier.Rank() > b.RiskTier.Rank()
}

type conditionEval struct {
	ruleID  string
	answers rules.Answers
	notices *[]Notice
}

func (e conditionEval) eval(c rules.Condition) bool {
	switch c.Kind() {
	case rules.KindAll:
		for _, child := range c.All {
			if !e.eval(child) {
				return false
			}
		}
		return true

	case rules.KindAny:
		for _, child := range c.Any {
			if e.eval(child) {
				return true
			}
		}
		return false

	case rules.KindExpression:
		matched, err := targeting.Evaluate(c.Expr, e.answers)
		var malformed *targeting.MalformedAnswerError
		switch {
		case errors.As(err, &malformed):
			e.note(malformed.Field, fmt.Sprintf("operator %q cannot compare %T", malformed.Operator, malformed.Value))
			return false
		case err != nil:
			e.note("", fmt.Sprintf("expression could not be evaluated: %v", err))
			return false
		}
		return matched

	case rules.KindInvalid:
		return false
	}

	answer, ok := e.answers.Lookup(c.Field)
	if !ok {
		return false
	}
	handler, ok := getOperatorHandler(c.Op)
	if !ok {
		return false
	}
	matched, ok := handler.Check(answer, c.Value)
	if !ok {
		e.note(c.Field, fmt.Sprintf("operator %q cannot compare %T", c.Op.Canonical(), answer))
		return false
	}
	return matched
}

func (e conditionEval) note(field, detail string) {
	for _, n := range *e.notices {
		if n.RuleID == e.ruleID && n.Field == field && n.Detail == detail {
			return
		}
	}
	*e.notices = append(*e.notices, Notice{
		Kind:   NoticeMalformedAnswer,
		RuleID: e.ruleID,
		Field:  field,
		Detail: detail,
	})
}
