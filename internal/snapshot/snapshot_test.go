package snapshot

import (
	"strings"
	"sync"
	"testing"

	"github.com/TimurManjosov/safetygate/internal/catalog"
	"github.com/TimurManjosov/safetygate/internal/engine"
	"github.com/TimurManjosov/safetygate/internal/rules"
)

func TestBuild_ETagIsStableAndWeak(t *testing.T) {
	a := Build(catalog.Default(), "embedded")
	b := Build(catalog.Default(), "file:/tmp/x.yaml")

	if !strings.HasPrefix(a.ETag, `W/"`) || !strings.HasSuffix(a.ETag, `"`) {
		t.Fatalf("ETag %q is not a weak validator", a.ETag)
	}
	if a.ETag != b.ETag {
		t.Fatalf("same catalog produced different ETags: %s vs %s", a.ETag, b.ETag)
	}
	if a.Version != catalog.Default().Version() {
		t.Fatalf("Version = %q", a.Version)
	}
}

func TestBuild_ETagChangesWithContent(t *testing.T) {
	other, err := catalog.Load([]byte(`version: 9.9.9
rules:
  - ruleId: r
    slugs: [x]
    condition: { field: q, op: is_true }
    outcome: PASS
    riskTier: low
`))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if Build(other, "memory").ETag == Build(catalog.Default(), "embedded").ETag {
		t.Fatal("different catalogs should not share an ETag")
	}
}

func TestLoadBeforeUpdateFailsOpen(t *testing.T) {
	current.Store(nil)
	s := Load()
	if s == nil || s.Catalog != nil {
		t.Fatalf("expected empty snapshot, got %#v", s)
	}
	res := engine.EvaluateSafety(s, "consult-ed", rules.Answers{"edSafety_nitrates": "yes"})
	if res.Outcome != rules.OutcomePass || !res.HasNotice(engine.NoticeUnknownSlug) {
		t.Fatalf("empty snapshot should fail open with notice, got %#v", res)
	}
}

func TestUpdateAndConcurrentLoad(t *testing.T) {
	snap := Build(catalog.Default(), "embedded")
	Update(snap)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := Load()
			res := engine.EvaluateSafety(s, "consult-ed", rules.Answers{"edSafety_nitrates": "yes"})
			if res.Outcome != rules.OutcomeDecline {
				t.Errorf("outcome = %s, want DECLINE", res.Outcome)
			}
		}()
	}
	wg.Wait()

	if Load() != snap {
		t.Fatal("Load() should return the published snapshot")
	}
}
