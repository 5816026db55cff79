package testutil

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/TimurManjosov/safetygate/internal/api"
	"github.com/TimurManjosov/safetygate/internal/audit"
	"github.com/TimurManjosov/safetygate/internal/catalog"
	"github.com/TimurManjosov/safetygate/internal/evaluation"
	"github.com/TimurManjosov/safetygate/internal/snapshot"
	"github.com/TimurManjosov/safetygate/internal/store"
)

// TestEnv is an API server over a fixed catalog with an in-memory audit sink.
type TestEnv struct {
	Server   *api.Server
	Snapshot *snapshot.Snapshot
	Audit    *audit.Service
	Sink     *audit.MemorySink
}

// NewTestServer creates a test server over the embedded catalog.
func NewTestServer(t *testing.T) *TestEnv {
	t.Helper()
	return NewTestServerWithCatalog(t, catalog.Default())
}

// NewTestServerWithCatalog creates a test server over c.
func NewTestServerWithCatalog(t *testing.T, c *catalog.Catalog) *TestEnv {
	t.Helper()
	snap := snapshot.Build(c, store.KindMemory)
	snapshots := func() *snapshot.Snapshot { return snap }

	sink := audit.NewMemorySink()
	auditSvc := audit.NewService(sink, zerolog.Nop(), nil, nil, 64)
	t.Cleanup(func() { _ = auditSvc.Close() })

	eval := evaluation.NewService(snapshots, auditSvc, zerolog.Nop())
	return &TestEnv{
		Server:   api.NewServer(eval, snapshots, zerolog.Nop(), api.Options{RateLimitPerIP: 10_000}),
		Snapshot: snap,
		Audit:    auditSvc,
		Sink:     sink,
	}
}

// Events drains the audit queue and returns every written event. The audit
// service is closed afterwards.
func (e *TestEnv) Events(t *testing.T) []audit.Event {
	t.Helper()
	if err := e.Audit.Close(); err != nil {
		t.Fatalf("audit Close() error = %v", err)
	}
	return e.Sink.Events()
}

// HTTPRequest is a helper for making test HTTP requests.
type HTTPRequest struct {
	Method  string
	Path    string
	Body    string
	Headers map[string]string
}

// Do executes the HTTP request and returns the response recorder.
func (r *HTTPRequest) Do(t *testing.T, handler http.Handler) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if r.Body != "" {
		body = bytes.NewBufferString(r.Body)
	}
	req := httptest.NewRequest(r.Method, r.Path, body)
	if r.Body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

// SeedCatalog writes doc into a writable catalog source.
func SeedCatalog(ctx context.Context, w store.Writer, doc catalog.Document) error {
	return w.Replace(ctx, doc)
}
