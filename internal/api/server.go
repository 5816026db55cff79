// Package api exposes the safety catalog and evaluator over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"

	"github.com/TimurManjosov/safetygate/internal/evaluation"
	"github.com/TimurManjosov/safetygate/internal/snapshot"
	"github.com/TimurManjosov/safetygate/internal/telemetry"
)

// Options tunes the router. Zero values fall back to defaults.
type Options struct {
	RateLimitPerIP int           // requests per minute per client IP
	Timeout        time.Duration // handler timeout
}

const (
	defaultRateLimitPerIP = 100
	defaultTimeout        = 5 * time.Second
)

type Server struct {
	eval      *evaluation.Service
	snapshots func() *snapshot.Snapshot
	log       zerolog.Logger
	opts      Options
}

// NewServer wires the HTTP layer. snapshots is usually snapshot.Load and must
// be the same source the evaluation service reads.
func NewServer(eval *evaluation.Service, snapshots func() *snapshot.Snapshot, log zerolog.Logger, opts Options) *Server {
	if snapshots == nil {
		snapshots = snapshot.Load
	}
	if opts.RateLimitPerIP <= 0 {
		opts.RateLimitPerIP = defaultRateLimitPerIP
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	return &Server{
		eval:      eval,
		snapshots: snapshots,
		log:       log.With().Str("component", "api").Logger(),
		opts:      opts,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(requestLogger(s.log))
	r.Use(telemetry.Middleware)
	r.Use(middleware.Timeout(s.opts.Timeout))

	// health
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(httprate.Limit(
			s.opts.RateLimitPerIP,
			time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(RateLimitedError),
		))

		// public: catalog (ETag)
		r.Get("/safety/catalog", s.handleCatalog)
		r.Get("/safety/slugs", s.handleSlugs)
		r.Get("/safety/slugs/{slug}/rules", s.handleSlugRules)

		// pre-check and checkout backstop
		r.Post("/safety/evaluate", s.handleEvaluate)
		r.Post("/checkout/verify", s.handleVerify)
	})

	return r
}
