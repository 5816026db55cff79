package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/TimurManjosov/safetygate/internal/catalog"
	"github.com/TimurManjosov/safetygate/internal/rules"
)

const (
	selectVersionSQL  = `SELECT version FROM safety_catalog WHERE id = 1`
	selectServicesSQL = `SELECT service_type, subtype, slug FROM safety_services ORDER BY position`
	selectRulesSQL    = `SELECT rule_id, slugs, condition, outcome, risk_tier, absolute, patient_title, patient_message
		FROM safety_rules ORDER BY position`

	upsertVersionSQL = `INSERT INTO safety_catalog (id, version, updated_at) VALUES (1, $1, now())
		ON CONFLICT (id) DO UPDATE SET version = EXCLUDED.version, updated_at = EXCLUDED.updated_at`
	insertServiceSQL = `INSERT INTO safety_services (service_type, subtype, slug, position) VALUES ($1, $2, $3, $4)`
	insertRuleSQL    = `INSERT INTO safety_rules
		(rule_id, slugs, condition, outcome, risk_tier, absolute, patient_title, patient_message, position)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
)

// PostgresSource reads the catalog from the safety_catalog, safety_services
// and safety_rules tables. Conditions are stored as JSONB.
type PostgresSource struct {
	pool *pgxpool.Pool
}

func NewPostgresSource(pool *pgxpool.Pool) *PostgresSource {
	return &PostgresSource{pool: pool}
}

// Pool exposes the underlying pool so the audit sink can share it.
func (p *PostgresSource) Pool() *pgxpool.Pool { return p.pool }

func (p *PostgresSource) Load(ctx context.Context) (catalog.Document, error) {
	var doc catalog.Document

	if err := p.pool.QueryRow(ctx, selectVersionSQL).Scan(&doc.Version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return catalog.Document{}, ErrNoCatalog
		}
		return catalog.Document{}, fmt.Errorf("load catalog version: %w", err)
	}

	rows, err := p.pool.Query(ctx, selectServicesSQL)
	if err != nil {
		return catalog.Document{}, fmt.Errorf("load services: %w", err)
	}
	doc.Services, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (catalog.ServiceMapping, error) {
		var m catalog.ServiceMapping
		err := row.Scan(&m.ServiceType, &m.Subtype, &m.Slug)
		return m, err
	})
	if err != nil {
		return catalog.Document{}, fmt.Errorf("scan services: %w", err)
	}

	rows, err = p.pool.Query(ctx, selectRulesSQL)
	if err != nil {
		return catalog.Document{}, fmt.Errorf("load rules: %w", err)
	}
	doc.Rules, err = pgx.CollectRows(rows, scanRule)
	if err != nil {
		return catalog.Document{}, fmt.Errorf("scan rules: %w", err)
	}

	return doc, nil
}

func scanRule(row pgx.CollectableRow) (rules.SafetyRule, error) {
	var (
		r         rules.SafetyRule
		condition []byte
		outcome   string
		tier      string
	)
	if err := row.Scan(&r.ID, &r.Slugs, &condition, &outcome, &tier, &r.Absolute, &r.PatientTitle, &r.PatientMessage); err != nil {
		return rules.SafetyRule{}, err
	}
	cond, err := unmarshalCondition(condition)
	if err != nil {
		return rules.SafetyRule{}, fmt.Errorf("rule %q: %w", r.ID, err)
	}
	r.Condition = cond
	r.Outcome = rules.Outcome(outcome)
	r.RiskTier = rules.RiskTier(tier)
	return r, nil
}

// unmarshalCondition decodes a JSONB condition. Numbers decode as float64,
// which the engine compares numerically.
func unmarshalCondition(raw []byte) (rules.Condition, error) {
	var c rules.Condition
	if len(raw) == 0 {
		return c, errors.New("condition is empty")
	}
	if err := json.Unmarshal(raw, &c); err != nil {
		return c, fmt.Errorf("decode condition: %w", err)
	}
	return c, nil
}

// Replace overwrites the stored catalog in a single transaction. The document
// must already have passed catalog.Build.
func (p *PostgresSource) Replace(ctx context.Context, doc catalog.Document) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, upsertVersionSQL, doc.Version); err != nil {
		return fmt.Errorf("store version: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM safety_services`); err != nil {
		return fmt.Errorf("clear services: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM safety_rules`); err != nil {
		return fmt.Errorf("clear rules: %w", err)
	}

	batch := &pgx.Batch{}
	for i, m := range doc.Services {
		batch.Queue(insertServiceSQL, m.ServiceType, m.Subtype, m.Slug, i)
	}
	for i, r := range doc.Rules {
		condition, err := json.Marshal(r.Condition)
		if err != nil {
			return fmt.Errorf("encode rule %q condition: %w", r.ID, err)
		}
		batch.Queue(insertRuleSQL, r.ID, r.Slugs, condition, string(r.Outcome), string(r.RiskTier),
			r.Absolute, r.PatientTitle, r.PatientMessage, i)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert catalog: %w", err)
	}

	return tx.Commit(ctx)
}

func (p *PostgresSource) Name() string { return KindPostgres }

func (p *PostgresSource) Close() error {
	p.pool.Close()
	return nil
}
