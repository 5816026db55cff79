package audit

import (
	"encoding/json"
	"slices"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/TimurManjosov/safetygate/internal/engine"
	"github.com/TimurManjosov/safetygate/internal/rules"
)

// Stage identifies which checkpoint produced an evaluation.
type Stage string

const (
	StagePrecheck Stage = "precheck"
	StageCheckout Stage = "checkout"
)

// Event records one safety evaluation. Patient answers are never stored; the
// fingerprint lets reviewers correlate a checkout with its pre-check.
type Event struct {
	ID                string          `json:"id"`
	OccurredAt        time.Time       `json:"occurred_at"`
	RequestID         string          `json:"request_id,omitempty"`
	Stage             Stage           `json:"stage"`
	Slug              string          `json:"slug"`
	Outcome           rules.Outcome   `json:"outcome"`
	RiskTier          rules.RiskTier  `json:"risk_tier"`
	RuleIDs           []string        `json:"rule_ids"`
	AnswerFingerprint string          `json:"answer_fingerprint"`
	Notices           []engine.Notice `json:"notices,omitempty"`
	CatalogVersion    string          `json:"catalog_version"`
}

// Escalation reports whether the event needs a human: a soft or hard block.
func (e Event) Escalation() bool {
	return e.Outcome == rules.OutcomeRequiresCall || e.Outcome == rules.OutcomeDecline
}

// NewEvent builds an event from an evaluation result.
func NewEvent(stage Stage, res engine.Result, answers rules.Answers, catalogVersion, requestID string) Event {
	return Event{
		RequestID:         requestID,
		Stage:             stage,
		Slug:              res.Slug,
		Outcome:           res.Outcome,
		RiskTier:          res.RiskTier,
		RuleIDs:           res.RuleIDs(),
		AnswerFingerprint: Fingerprint(answers),
		Notices:           slices.Clone(res.Notices),
		CatalogVersion:    catalogVersion,
	}
}

// Fingerprint hashes the answer bag with xxhash over its keys in sorted order.
// Equal bags hash equally regardless of map iteration order.
func Fingerprint(answers rules.Answers) string {
	keys := make([]string, 0, len(answers))
	for k := range answers {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	d := xxhash.New()
	for _, k := range keys {
		v, err := json.Marshal(answers[k])
		if err != nil {
			v = []byte("?")
		}
		_, _ = d.WriteString(k)
		_, _ = d.Write([]byte{0})
		_, _ = d.Write(v)
		_, _ = d.Write([]byte{0})
	}
	return strconv.FormatUint(d.Sum64(), 16)
}

// Clock interface for testable time operations
type Clock interface {
	Now() time.Time
}

// SystemClock implements Clock using time.Now()
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// IDGenerator interface for testable ID generation
type IDGenerator interface {
	Generate() string
}

// UUIDGenerator issues random (v4) UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) Generate() string { return uuid.NewString() }
