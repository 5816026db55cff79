package engine

import "github.com/TimurManjosov/safetygate/internal/rules"

// NoticeKind classifies a degradation recorded during evaluation.
type NoticeKind string

const (
	// NoticeUnknownSlug means the slug had no registered rules; the result failed open.
	NoticeUnknownSlug NoticeKind = "unknown_slug"
	// NoticeUnknownService means (serviceType, subtype) did not resolve to a slug.
	NoticeUnknownService NoticeKind = "unknown_service"
	// NoticeMalformedAnswer means a condition saw a value of the wrong type and evaluated false.
	NoticeMalformedAnswer NoticeKind = "malformed_answer"
)

// Notice is an explicit record of a fail-open degrade. Callers log these for audit.
type Notice struct {
	Kind   NoticeKind `json:"kind"`
	RuleID string     `json:"ruleId,omitempty"`
	Field  string     `json:"field,omitempty"`
	Detail string     `json:"detail,omitempty"`
}

// TriggeredRule is the caller-facing view of a rule whose condition matched.
type TriggeredRule struct {
	RuleID         string         `json:"ruleId"`
	Outcome        rules.Outcome  `json:"outcome"`
	RiskTier       rules.RiskTier `json:"riskTier"`
	Absolute       bool           `json:"absolute,omitempty"`
	PatientTitle   string         `json:"patientTitle,omitempty"`
	PatientMessage string         `json:"patientMessage,omitempty"`
}

// Result is the deterministic output of EvaluateSafety. It is built fresh per
// call and never mutated afterwards.
type Result struct {
	Slug           string          `json:"slug"`
	Outcome        rules.Outcome   `json:"outcome"`
	RiskTier       rules.RiskTier  `json:"riskTier"`
	TriggeredRules []TriggeredRule `json:"triggeredRules"`
	PatientTitle   string          `json:"patientTitle,omitempty"`
	PatientMessage string          `json:"patientMessage,omitempty"`
	Notices        []Notice        `json:"notices,omitempty"`
}

// RequiresCall reports a soft block: the patient must speak to a doctor.
func (r Result) RequiresCall() bool { return r.Outcome == rules.OutcomeRequiresCall }

// Declined reports a hard block.
func (r Result) Declined() bool { return r.Outcome == rules.OutcomeDecline }

// Blocked reports whether forward progress must halt.
func (r Result) Blocked() bool { return r.Declined() || r.RequiresCall() }

// RuleIDs returns the triggered rule IDs, primary reason first.
func (r Result) RuleIDs() []string {
	ids := make([]string, len(r.TriggeredRules))
	for i, tr := range r.TriggeredRules {
		ids[i] = tr.RuleID
	}
	return ids
}

// HasNotice reports whether a notice of the given kind was recorded.
func (r Result) HasNotice(kind NoticeKind) bool {
	for _, n := range r.Notices {
		if n.Kind == kind {
			return true
		}
	}
	return false
}

func passResult(slug string) Result {
	return Result{
		Slug:           slug,
		Outcome:        rules.OutcomePass,
		RiskTier:       rules.TierNone,
		TriggeredRules: []TriggeredRule{},
	}
}

func toTriggered(r rules.SafetyRule) TriggeredRule {
	return TriggeredRule{
		RuleID:         r.ID,
		Outcome:        r.Outcome,
		RiskTier:       r.RiskTier,
		Absolute:       r.Absolute,
		PatientTitle:   r.PatientTitle,
		PatientMessage: r.PatientMessage,
	}
}
