package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const insertAuditSQL = `INSERT INTO safety_audit
	(id, occurred_at, request_id, stage, slug, outcome, risk_tier, rule_ids, answer_fingerprint, notices, catalog_version)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

// PostgresSink stores events in the safety_audit table.
type PostgresSink struct {
	pool *pgxpool.Pool
}

func NewPostgresSink(pool *pgxpool.Pool) *PostgresSink {
	return &PostgresSink{pool: pool}
}

func (s *PostgresSink) Write(ctx context.Context, event Event) error {
	notices, err := json.Marshal(event.Notices)
	if err != nil {
		return fmt.Errorf("encode notices: %w", err)
	}
	if event.Notices == nil {
		notices = []byte("[]")
	}
	ruleIDs := event.RuleIDs
	if ruleIDs == nil {
		ruleIDs = []string{}
	}
	_, err = s.pool.Exec(ctx, insertAuditSQL,
		event.ID, event.OccurredAt, event.RequestID, string(event.Stage), event.Slug,
		string(event.Outcome), string(event.RiskTier), ruleIDs, event.AnswerFingerprint,
		notices, event.CatalogVersion)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// LogSink writes one structured log line per event.
type LogSink struct {
	log zerolog.Logger
}

func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Write(_ context.Context, event Event) error {
	ev := s.log.Info()
	if event.Escalation() {
		ev = s.log.Warn()
	}
	ev.Str("audit_id", event.ID).
		Time("occurred_at", event.OccurredAt).
		Str("request_id", event.RequestID).
		Str("stage", string(event.Stage)).
		Str("slug", event.Slug).
		Str("outcome", string(event.Outcome)).
		Str("risk_tier", string(event.RiskTier)).
		Strs("rule_ids", event.RuleIDs).
		Str("answer_fingerprint", event.AnswerFingerprint).
		Int("notices", len(event.Notices)).
		Str("catalog_version", event.CatalogVersion).
		Msg("safety evaluation")
	return nil
}

// MemorySink keeps events in memory. Used by tests.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func NewMemorySink() *MemorySink { return &MemorySink{} }

// FailWith makes subsequent writes return err.
func (s *MemorySink) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *MemorySink) Write(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

// Events returns a copy of the recorded events.
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// MultiSink fans an event out to every sink and joins their errors.
type MultiSink []Sink

func (m MultiSink) Write(ctx context.Context, event Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Write(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NopSink discards events.
type NopSink struct{}

func (NopSink) Write(context.Context, Event) error { return nil }
