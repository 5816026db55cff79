// Package evaluation runs the safety engine on behalf of the API and the
// checkout backstop. It adds what the pure engine leaves to its callers:
// slug resolution from the service table, logging of fail-open degrades,
// metrics, tracing and audit.
package evaluation

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/TimurManjosov/safetygate/internal/audit"
	"github.com/TimurManjosov/safetygate/internal/engine"
	"github.com/TimurManjosov/safetygate/internal/rules"
	"github.com/TimurManjosov/safetygate/internal/snapshot"
	"github.com/TimurManjosov/safetygate/internal/telemetry"
)

// ErrBlocked is returned by Verify when the answers do not PASS.
var ErrBlocked = errors.New("blocked by safety check")

// BlockedError carries the verdict that blocked a checkout.
type BlockedError struct {
	Result engine.Result
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("%s: slug %q outcome %s (%v)", ErrBlocked, e.Result.Slug, e.Result.Outcome, e.Result.RuleIDs())
}

func (e *BlockedError) Is(target error) bool { return target == ErrBlocked }

// Request is one evaluation. Either Slug or ServiceType (with optional
// Subtype) must be set; Slug wins when both are.
type Request struct {
	Stage       audit.Stage
	Slug        string
	ServiceType string
	Subtype     string
	Answers     rules.Answers
	RequestID   string
}

// Recorder receives audit events. *audit.Service implements it.
type Recorder interface {
	Log(event audit.Event)
}

// Service evaluates requests against the currently published snapshot.
type Service struct {
	snapshots func() *snapshot.Snapshot
	recorder  Recorder
	log       zerolog.Logger
}

// NewService creates a service. snapshots is usually snapshot.Load; recorder
// may be nil to disable audit.
func NewService(snapshots func() *snapshot.Snapshot, recorder Recorder, log zerolog.Logger) *Service {
	if snapshots == nil {
		snapshots = snapshot.Load
	}
	return &Service{
		snapshots: snapshots,
		recorder:  recorder,
		log:       log.With().Str("component", "evaluation").Logger(),
	}
}

// ResolveSlug maps the request onto a slug using the active catalog.
func (s *Service) ResolveSlug(req Request) (string, error) {
	return resolveSlug(s.snapshots(), req)
}

func resolveSlug(snap *snapshot.Snapshot, req Request) (string, error) {
	if req.Slug != "" {
		return req.Slug, nil
	}
	return snap.Catalog.ResolveSlug(req.ServiceType, req.Subtype)
}

// Check evaluates req. It never fails: unknown slugs and services degrade to
// PASS with a notice.
func (s *Service) Check(ctx context.Context, req Request) engine.Result {
	if req.Stage == "" {
		req.Stage = audit.StagePrecheck
	}
	snap := s.snapshots()

	_, span := telemetry.Tracer().Start(ctx, "safety.evaluate")
	defer span.End()

	logger := s.log.With().Str("stage", string(req.Stage)).Str("request_id", req.RequestID).Logger()

	var res engine.Result
	// resolution and evaluation share one snapshot so a concurrent reload
	// cannot split them across catalog versions
	slug, err := resolveSlug(snap, req)
	if err != nil {
		// a nil source yields the fail-open PASS shape
		res = engine.EvaluateSafety(nil, "", req.Answers)
		res.Notices = []engine.Notice{{Kind: engine.NoticeUnknownService, Detail: err.Error()}}
		logger.Warn().Str("service_type", req.ServiceType).Str("subtype", req.Subtype).
			Msg("service does not map to a safety slug, failing open")
	} else {
		res = engine.EvaluateSafety(snap, slug, req.Answers)
	}

	for _, n := range res.Notices {
		telemetry.Notices.WithLabelValues(string(n.Kind)).Inc()
		switch n.Kind {
		case engine.NoticeUnknownSlug:
			logger.Warn().Str("slug", slug).Str("detail", n.Detail).Msg("unknown safety slug, failing open")
		case engine.NoticeMalformedAnswer:
			logger.Info().Str("slug", slug).Str("rule_id", n.RuleID).Str("field", n.Field).
				Str("detail", n.Detail).Msg("malformed answer degraded condition to false")
		}
	}

	metricSlug := res.Slug
	if res.HasNotice(engine.NoticeUnknownSlug) || res.HasNotice(engine.NoticeUnknownService) {
		metricSlug = "unknown"
	}
	telemetry.Evaluations.WithLabelValues(metricSlug, string(req.Stage), string(res.Outcome)).Inc()
	for _, tr := range res.TriggeredRules {
		telemetry.TriggeredRules.WithLabelValues(metricSlug, tr.RuleID).Inc()
	}

	span.SetAttributes(
		attribute.String("safety.slug", res.Slug),
		attribute.String("safety.stage", string(req.Stage)),
		attribute.String("safety.outcome", string(res.Outcome)),
		attribute.String("safety.risk_tier", string(res.RiskTier)),
		attribute.StringSlice("safety.rule_ids", res.RuleIDs()),
	)

	if s.recorder != nil {
		s.recorder.Log(audit.NewEvent(req.Stage, res, req.Answers, snap.Version, req.RequestID))
	}

	logger.Debug().Str("slug", res.Slug).Str("outcome", string(res.Outcome)).
		Str("risk_tier", string(res.RiskTier)).Strs("rule_ids", res.RuleIDs()).Msg("safety evaluated")

	return res
}

// Verify is the checkout backstop. It re-runs the evaluation server-side and
// returns a *BlockedError (matching ErrBlocked) unless the outcome is PASS.
func (s *Service) Verify(ctx context.Context, req Request) (engine.Result, error) {
	req.Stage = audit.StageCheckout
	res := s.Check(ctx, req)
	if res.Blocked() {
		return res, &BlockedError{Result: res}
	}
	return res, nil
}
