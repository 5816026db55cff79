package catalog

import (
	"errors"
	"reflect"
	"testing"

	"github.com/TimurManjosov/safetygate/internal/rules"
)

const sampleYAML = `
version: 2.1.0
services:
  - { serviceType: consult, slug: consult }
  - { serviceType: consult, subtype: ed, slug: consult-ed }
rules:
  - ruleId: emergency
    slugs: [consult, consult-ed]
    condition: { field: emergencySymptoms, op: contains_any, value: [chest_pain] }
    outcome: DECLINE
    riskTier: critical
    absolute: true
    patientMessage: Call 000.
  - ruleId: nitrates
    slugs: [consult-ed]
    condition: { field: edSafety_nitrates, op: eq, value: "yes" }
    outcome: DECLINE
    riskTier: critical
    patientMessage: Not safe.
  - ruleId: minor
    slugs: [consult]
    condition:
      expr: '{"<":[{"var":"patientAge"},18]}'
    outcome: REQUIRES_CALL
    riskTier: moderate
`

func mustLoad(t *testing.T, data string) *Catalog {
	t.Helper()
	c, err := Load([]byte(data))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return c
}

func TestLoad_IndexesBySlugInDeclarationOrder(t *testing.T) {
	c := mustLoad(t, sampleYAML)

	if got := c.Version(); got != "2.1.0" {
		t.Fatalf("Version() = %q", got)
	}
	if got, want := c.Slugs(), []string{"consult", "consult-ed"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Slugs() = %v, want %v", got, want)
	}
	if c.RuleCount() != 3 {
		t.Fatalf("RuleCount() = %d, want 3", c.RuleCount())
	}

	rs, err := c.RulesForSlug("consult-ed")
	if err != nil {
		t.Fatalf("RulesForSlug() error = %v", err)
	}
	var ids []string
	for _, r := range rs {
		ids = append(ids, r.ID)
	}
	if want := []string{"emergency", "nitrates"}; !reflect.DeepEqual(ids, want) {
		t.Fatalf("rule order = %v, want %v", ids, want)
	}
}

func TestRulesForSlug_UnknownSlug(t *testing.T) {
	c := mustLoad(t, sampleYAML)
	if _, err := c.RulesForSlug("not-a-real-slug"); !errors.Is(err, ErrUnknownSlug) {
		t.Fatalf("expected ErrUnknownSlug, got %v", err)
	}
}

func TestRulesForSlug_ReturnsCopy(t *testing.T) {
	c := mustLoad(t, sampleYAML)
	rs, _ := c.RulesForSlug("consult")
	rs[0].Outcome = rules.OutcomePass

	again, _ := c.RulesForSlug("consult")
	if again[0].Outcome != rules.OutcomeDecline {
		t.Fatalf("catalog mutated through returned slice")
	}
}

func TestResolveSlug(t *testing.T) {
	c := mustLoad(t, sampleYAML)

	tests := []struct {
		serviceType, subtype string
		want                 string
		wantErr              error
	}{
		{serviceType: "consult", subtype: "ed", want: "consult-ed"},
		{serviceType: "consult", subtype: "", want: "consult"},
		{serviceType: "consult", subtype: "unmapped", want: "consult"},
		{serviceType: "med-cert", subtype: "", wantErr: ErrUnknownService},
	}
	for _, tt := range tests {
		got, err := c.ResolveSlug(tt.serviceType, tt.subtype)
		if tt.wantErr != nil {
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ResolveSlug(%q, %q) error = %v, want %v", tt.serviceType, tt.subtype, err, tt.wantErr)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Fatalf("ResolveSlug(%q, %q) = %q, %v; want %q", tt.serviceType, tt.subtype, got, err, tt.want)
		}
	}
}

func TestBuild_Rejects(t *testing.T) {
	decline := func(id string, slugs ...string) rules.SafetyRule {
		return rules.SafetyRule{
			ID:             id,
			Slugs:          slugs,
			Condition:      rules.Condition{Field: "q", Op: rules.OpEq, Value: "yes"},
			Outcome:        rules.OutcomeDecline,
			RiskTier:       rules.TierHigh,
			PatientMessage: "m",
		}
	}

	tests := []struct {
		name    string
		doc     Document
		wantErr error
	}{
		{
			name:    "missing version",
			doc:     Document{Rules: []rules.SafetyRule{decline("a", "x")}},
			wantErr: ErrInvalidCatalog,
		},
		{
			name:    "bad version",
			doc:     Document{Version: "one", Rules: []rules.SafetyRule{decline("a", "x")}},
			wantErr: ErrInvalidCatalog,
		},
		{
			name:    "duplicate rule id within slug",
			doc:     Document{Version: "1.0.0", Rules: []rules.SafetyRule{decline("a", "x"), decline("a", "x", "y")}},
			wantErr: ErrDuplicateRule,
		},
		{
			name: "decline without message",
			doc: Document{Version: "1.0.0", Rules: []rules.SafetyRule{func() rules.SafetyRule {
				r := decline("a", "x")
				r.PatientMessage = ""
				return r
			}()}},
			wantErr: rules.ErrInvalidRule,
		},
		{
			name: "invalid expression",
			doc: Document{Version: "1.0.0", Rules: []rules.SafetyRule{func() rules.SafetyRule {
				r := decline("a", "x")
				r.Condition = rules.Condition{Expr: "{not json"}
				return r
			}()}},
			wantErr: rules.ErrInvalidCondition,
		},
		{
			name: "service maps to slug without rules",
			doc: Document{
				Version:  "1.0.0",
				Services: []ServiceMapping{{ServiceType: "consult", Slug: "nope"}},
				Rules:    []rules.SafetyRule{decline("a", "x")},
			},
			wantErr: ErrInvalidCatalog,
		},
		{
			name: "duplicate service mapping",
			doc: Document{
				Version: "1.0.0",
				Services: []ServiceMapping{
					{ServiceType: "consult", Slug: "x"},
					{ServiceType: "consult", Slug: "x"},
				},
				Rules: []rules.SafetyRule{decline("a", "x")},
			},
			wantErr: ErrInvalidCatalog,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.doc)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Build() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestParse_RejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("version: 1.0.0\nrules:\n  - ruleId: a\n    slug: [x]\n"))
	if !errors.Is(err, ErrInvalidCatalog) {
		t.Fatalf("expected ErrInvalidCatalog for misspelled key, got %v", err)
	}
	if _, err := Parse(nil); !errors.Is(err, ErrInvalidCatalog) {
		t.Fatalf("expected ErrInvalidCatalog for empty document, got %v", err)
	}
}

func TestParse_AcceptsJSON(t *testing.T) {
	data := `{"version":"1.0.0","rules":[{"ruleId":"a","slugs":["x"],"condition":{"field":"bmi","op":"lt","value":18.5},"outcome":"REQUIRES_CALL","riskTier":"high"}]}`
	c := mustLoad(t, data)
	rs, err := c.RulesForSlug("x")
	if err != nil || len(rs) != 1 || rs[0].Condition.Kind() != rules.KindThreshold {
		t.Fatalf("unexpected rules %#v, err %v", rs, err)
	}
}

func TestNewer(t *testing.T) {
	older := mustLoad(t, sampleYAML)
	newer := mustLoad(t, "version: 2.2.0-rc.1\n"+sampleYAML[len("\nversion: 2.1.0\n"):])
	if !newer.Newer(older) || older.Newer(newer) {
		t.Fatalf("semver ordering wrong: %s vs %s", newer.Version(), older.Version())
	}
	if !older.Newer(nil) {
		t.Fatalf("any catalog is newer than none")
	}
}

func TestDocumentIsDetached(t *testing.T) {
	c := mustLoad(t, sampleYAML)
	doc := c.Document()
	doc.Rules[0].Slugs[0] = "changed"
	if c.Document().Rules[0].Slugs[0] != "consult" {
		t.Fatalf("Document() shares slices with the catalog")
	}
}
