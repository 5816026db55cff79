// Package webhook notifies a reviewer endpoint when an evaluation escalates
// a patient to a call or declines them.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/TimurManjosov/safetygate/internal/audit"
)

const (
	// queueSize is the buffer size for the event queue
	queueSize = 1000

	// maxResponseBodySize limits how much of the response body we log (1KB)
	maxResponseBodySize = 1024
)

// Config describes the reviewer endpoint.
type Config struct {
	URL        string
	Secret     string
	MaxRetries int
	Timeout    time.Duration
	// Backoff is the first retry delay; it doubles per attempt.
	Backoff time.Duration
}

// Dispatcher delivers escalation events asynchronously. It implements
// audit.Sink so it can sit next to the audit store in an audit.MultiSink.
type Dispatcher struct {
	cfg    Config
	client *http.Client
	log    zerolog.Logger
	now    func() time.Time
	queue  chan Event
	done   chan struct{}

	// mu guards closed and the send on queue against close(queue)
	mu     sync.RWMutex
	closed bool

	delivered atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

// NewDispatcher creates a dispatcher and starts its worker.
func NewDispatcher(cfg Config, log zerolog.Logger) *Dispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	d := &Dispatcher{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log.With().Str("component", "webhook").Logger(),
		now:    time.Now,
		queue:  make(chan Event, queueSize),
		done:   make(chan struct{}),
	}
	go d.worker()
	return d
}

// Write queues an escalation. Non-escalating events are ignored. It never
// blocks; a full queue drops the event.
func (d *Dispatcher) Write(_ context.Context, ev audit.Event) error {
	if !ev.Escalation() {
		return nil
	}
	d.Dispatch(Event{
		Type:       EventEscalation,
		DeliveryID: uuid.NewString(),
		Timestamp:  d.now().UTC(),
		Evaluation: ev,
	})
	return nil
}

// Dispatch queues an event for delivery.
func (d *Dispatcher) Dispatch(event Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	select {
	case d.queue <- event:
	default:
		d.dropped.Add(1)
		d.log.Error().Int("queue_size", queueSize).Str("slug", event.Evaluation.Slug).
			Str("delivery_id", event.DeliveryID).Msg("webhook queue full, dropping escalation")
	}
}

// Close stops accepting events and waits for queued deliveries to finish.
// Close is safe to call multiple times.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	<-d.done
	return nil
}

// Stats returns delivered, failed and dropped counts.
func (d *Dispatcher) Stats() (delivered, failed, dropped int64) {
	return d.delivered.Load(), d.failed.Load(), d.dropped.Load()
}

func (d *Dispatcher) worker() {
	defer close(d.done)
	for event := range d.queue {
		if d.deliverWithRetry(context.Background(), event) {
			d.delivered.Add(1)
		} else {
			d.failed.Add(1)
		}
	}
}

func (d *Dispatcher) deliverWithRetry(ctx context.Context, event Event) bool {
	payload, err := json.Marshal(event)
	if err != nil {
		d.log.Error().Err(err).Str("delivery_id", event.DeliveryID).Msg("failed to marshal webhook payload")
		return false
	}

	logger := d.log.With().Str("delivery_id", event.DeliveryID).Str("slug", event.Evaluation.Slug).Logger()

	for attempt := 0; attempt <= d.cfg.MaxRetries; attempt++ {
		start := time.Now()
		status, body, err := d.post(ctx, event, payload)
		duration := time.Since(start)

		if err == nil && status >= 200 && status < 300 {
			logger.Debug().Int("status", status).Dur("duration", duration).Int("attempt", attempt+1).Msg("webhook delivered")
			return true
		}

		errMsg := ""
		if err != nil {
			errMsg = err.Error()
		}
		if attempt < d.cfg.MaxRetries {
			backoff := time.Duration(math.Pow(2, float64(attempt))) * d.cfg.Backoff
			logger.Warn().Int("status", status).Str("error", errMsg).Str("body", body).
				Int("attempt", attempt+1).Dur("retry_in", backoff).Msg("webhook delivery failed")
			time.Sleep(backoff)
			continue
		}
		logger.Error().Int("status", status).Str("error", errMsg).Str("body", body).
			Int("attempts", attempt+1).Msg("webhook delivery failed permanently")
	}
	return false
}

func (d *Dispatcher) post(ctx context.Context, event Event, payload []byte) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return 0, "", fmt.Errorf("build request: %w", err)
	}
	ts := d.now()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEvent, event.Type)
	req.Header.Set(HeaderDelivery, event.DeliveryID)
	req.Header.Set(HeaderTimestamp, fmt.Sprintf("%d", ts.Unix()))
	if d.cfg.Secret != "" {
		req.Header.Set(HeaderSignature, Sign(payload, d.cfg.Secret, ts))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	return resp.StatusCode, string(b), nil
}
