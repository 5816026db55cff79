package testutil

import (
	"context"
	"net/http"
	"testing"

	"github.com/TimurManjosov/safetygate/internal/audit"
	"github.com/TimurManjosov/safetygate/internal/catalog"
	"github.com/TimurManjosov/safetygate/internal/store"
)

func TestNewTestServer(t *testing.T) {
	env := NewTestServer(t)

	if env.Server == nil || env.Sink == nil || env.Audit == nil {
		t.Fatal("Expected a fully wired test env")
	}
	if env.Snapshot.Version != catalog.Default().Version() {
		t.Errorf("Expected embedded catalog version %s, got %s", catalog.Default().Version(), env.Snapshot.Version)
	}
}

func TestHTTPRequest_Do(t *testing.T) {
	env := NewTestServer(t)
	handler := env.Server.Router()

	req := &HTTPRequest{
		Method: "GET",
		Path:   "/healthz",
	}

	rr := req.Do(t, handler)

	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rr.Code)
	}
	if rr.Body.String() != "ok" {
		t.Errorf("Expected body 'ok', got '%s'", rr.Body.String())
	}
}

func TestHTTPRequest_DoWithBodyIsAudited(t *testing.T) {
	env := NewTestServer(t)
	handler := env.Server.Router()

	req := &HTTPRequest{
		Method: "POST",
		Path:   "/v1/safety/evaluate",
		Body:   `{"slug":"uti","answers":{"utiRedFlags":"yes"}}`,
	}

	rr := req.Do(t, handler)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	events := env.Events(t)
	if len(events) != 1 {
		t.Fatalf("Expected 1 audit event, got %d", len(events))
	}
	if events[0].Slug != "uti" || events[0].Stage != audit.StagePrecheck || !events[0].Escalation() {
		t.Fatalf("unexpected audit event %+v", events[0])
	}
}

func TestHTTPRequest_DoWithHeaders(t *testing.T) {
	env := NewTestServer(t)
	handler := env.Server.Router()

	req := &HTTPRequest{
		Method: "GET",
		Path:   "/v1/safety/catalog",
		Headers: map[string]string{
			"If-None-Match": env.Snapshot.ETag,
		},
	}

	if rr := req.Do(t, handler); rr.Code != http.StatusNotModified {
		t.Errorf("Expected status 304, got %d", rr.Code)
	}
}

func TestHTTPRequest_HeaderOverride(t *testing.T) {
	env := NewTestServer(t)
	handler := env.Server.Router()

	req := &HTTPRequest{
		Method: "POST",
		Path:   "/v1/safety/evaluate",
		Body:   `not json`,
		Headers: map[string]string{
			"Content-Type": "text/plain",
		},
	}

	if rr := req.Do(t, handler); rr.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", rr.Code)
	}
}

func TestSeedCatalog(t *testing.T) {
	ctx := context.Background()
	src := store.NewMemorySource(nil)

	if _, err := store.LoadCatalog(ctx, src); err == nil {
		t.Fatal("Expected an error before seeding")
	}

	if err := SeedCatalog(ctx, src, catalog.Default().Document()); err != nil {
		t.Fatalf("SeedCatalog failed: %v", err)
	}

	c, err := store.LoadCatalog(ctx, src)
	if err != nil {
		t.Fatalf("LoadCatalog failed: %v", err)
	}
	if c.RuleCount() != catalog.Default().RuleCount() {
		t.Errorf("Expected %d rules, got %d", catalog.Default().RuleCount(), c.RuleCount())
	}
}

func TestNewTestServerWithCatalog(t *testing.T) {
	c, err := catalog.Load([]byte(`
version: 0.1.0
rules:
  - ruleId: always-call
    slugs: [demo]
    condition: { field: anything, op: eq, value: "yes" }
    outcome: REQUIRES_CALL
    riskTier: low
    patientTitle: Call needed
    patientMessage: A doctor will call you.
`))
	if err != nil {
		t.Fatalf("catalog.Load() error = %v", err)
	}
	env := NewTestServerWithCatalog(t, c)

	rr := (&HTTPRequest{
		Method: "POST",
		Path:   "/v1/checkout/verify",
		Body:   `{"slug":"demo","answers":{"anything":"yes"}}`,
	}).Do(t, env.Server.Router())
	if rr.Code != http.StatusConflict {
		t.Fatalf("Expected status 409, got %d: %s", rr.Code, rr.Body.String())
	}
}
