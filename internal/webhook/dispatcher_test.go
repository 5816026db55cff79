package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/TimurManjosov/safetygate/internal/audit"
	"github.com/TimurManjosov/safetygate/internal/rules"
)

type capture struct {
	mu       sync.Mutex
	bodies   [][]byte
	headers  []http.Header
	failures int32
}

func (c *capture) handler(failFirst int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&c.failures, 1) <= failFirst {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		body, _ := io.ReadAll(r.Body)
		c.mu.Lock()
		c.bodies = append(c.bodies, body)
		c.headers = append(c.headers, r.Header.Clone())
		c.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}
}

func TestDispatcher_DeliversSignedEscalations(t *testing.T) {
	c := &capture{}
	srv := httptest.NewServer(c.handler(0))
	defer srv.Close()

	d := NewDispatcher(Config{URL: srv.URL, Secret: "whsec_test", Backoff: time.Millisecond}, zerolog.Nop())

	ctx := context.Background()
	_ = d.Write(ctx, audit.Event{ID: "a", Slug: "uti", Outcome: rules.OutcomePass})
	_ = d.Write(ctx, audit.Event{ID: "b", Slug: "uti", Outcome: rules.OutcomeDecline, RuleIDs: []string{"kidney-infection-red-flags"}})
	_ = d.Write(ctx, audit.Event{ID: "c", Slug: "weight-loss", Outcome: rules.OutcomeRequiresCall})
	if err := d.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.bodies) != 2 {
		t.Fatalf("expected 2 deliveries (PASS skipped), got %d", len(c.bodies))
	}

	var got Event
	if err := json.Unmarshal(c.bodies[0], &got); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if got.Type != EventEscalation || got.Evaluation.ID != "b" || got.DeliveryID == "" {
		t.Fatalf("unexpected payload %#v", got)
	}

	h := c.headers[0]
	if h.Get(HeaderEvent) != EventEscalation || h.Get(HeaderDelivery) != got.DeliveryID {
		t.Fatalf("unexpected headers %v", h)
	}
	if !Verify(c.bodies[0], h.Get(HeaderSignature), h.Get(HeaderTimestamp), "whsec_test", time.Now(), time.Minute) {
		t.Fatal("signature does not verify")
	}

	delivered, failed, dropped := d.Stats()
	if delivered != 2 || failed != 0 || dropped != 0 {
		t.Fatalf("Stats() = %d/%d/%d", delivered, failed, dropped)
	}
}

func TestDispatcher_RetriesThenSucceeds(t *testing.T) {
	c := &capture{}
	srv := httptest.NewServer(c.handler(2))
	defer srv.Close()

	d := NewDispatcher(Config{URL: srv.URL, MaxRetries: 3, Backoff: time.Millisecond}, zerolog.Nop())
	_ = d.Write(context.Background(), audit.Event{ID: "x", Outcome: rules.OutcomeDecline})
	d.Close()

	if got := atomic.LoadInt32(&c.failures); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
	if delivered, _, _ := d.Stats(); delivered != 1 {
		t.Fatalf("expected delivery after retries, got %d", delivered)
	}
}

func TestDispatcher_GivesUp(t *testing.T) {
	c := &capture{}
	srv := httptest.NewServer(c.handler(100))
	defer srv.Close()

	d := NewDispatcher(Config{URL: srv.URL, MaxRetries: 1, Backoff: time.Millisecond}, zerolog.Nop())
	_ = d.Write(context.Background(), audit.Event{ID: "x", Outcome: rules.OutcomeRequiresCall})
	d.Close()

	if _, failed, _ := d.Stats(); failed != 1 {
		t.Fatalf("expected a permanent failure, got %d", failed)
	}
	if got := atomic.LoadInt32(&c.failures); got != 2 {
		t.Fatalf("expected 2 attempts, got %d", got)
	}
}

func TestDispatcher_CloseIsIdempotent(t *testing.T) {
	d := NewDispatcher(Config{URL: "http://127.0.0.1:0"}, zerolog.Nop())
	if err := d.Close(); err != nil {
		t.Fatalf("first Close() error = %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	d.Dispatch(Event{Type: EventEscalation})
}

func TestDispatcher_DispatchDuringClose(t *testing.T) {
	c := &capture{}
	srv := httptest.NewServer(c.handler(0))
	defer srv.Close()

	d := NewDispatcher(Config{URL: srv.URL, MaxRetries: 0}, zerolog.Nop())

	const senders, perSender = 8, 50
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for j := 0; j < perSender; j++ {
				d.Dispatch(Event{Type: EventEscalation, DeliveryID: "d"})
			}
		}()
	}
	close(start)
	if err := d.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	wg.Wait()

	delivered, failed, dropped := d.Stats()
	if total := delivered + failed + dropped; total > senders*perSender {
		t.Fatalf("accounted for %d events, only %d were sent", total, senders*perSender)
	}
}
