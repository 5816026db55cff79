package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/TimurManjosov/safetygate/internal/api"
	"github.com/TimurManjosov/safetygate/internal/audit"
	"github.com/TimurManjosov/safetygate/internal/config"
	mydb "github.com/TimurManjosov/safetygate/internal/db"
	"github.com/TimurManjosov/safetygate/internal/evaluation"
	"github.com/TimurManjosov/safetygate/internal/snapshot"
	"github.com/TimurManjosov/safetygate/internal/store"
	"github.com/TimurManjosov/safetygate/internal/telemetry"
	"github.com/TimurManjosov/safetygate/internal/webhook"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("config")
	}
	log := config.NewLogger(cfg)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetry.Init()
	shutdownTracing, err := telemetry.InitTracing(ctx, "safetygate", version, cfg.OTLPEndpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("tracing")
	}

	// catalog
	location := cfg.CatalogPath
	if cfg.CatalogSource == config.CatalogPostgres {
		location = cfg.DatabaseDSN
	}
	src, err := store.NewSource(ctx, cfg.CatalogSource, location)
	if err != nil {
		log.Fatal().Err(err).Msg("catalog source")
	}
	defer src.Close()

	c, err := store.LoadCatalog(ctx, src)
	if err != nil {
		log.Fatal().Err(err).Str("source", src.Name()).Msg("load catalog")
	}
	s := snapshot.Build(c, src.Name())
	snapshot.Update(s)
	telemetry.CatalogRules.Set(float64(c.RuleCount()))
	log.Info().
		Str("source", s.Source).
		Str("version", s.Version).
		Int("rules", c.RuleCount()).
		Int("slugs", len(c.Slugs())).
		Str("etag", s.ETag).
		Msg("catalog loaded")

	// audit
	var sink audit.Sink
	switch cfg.AuditSink {
	case config.AuditPostgres:
		pool, closePool, err := auditPool(ctx, cfg, src)
		if err != nil {
			log.Fatal().Err(err).Msg("audit database")
		}
		defer closePool()
		sink = audit.NewPostgresSink(pool)
	case config.AuditNone:
		sink = audit.NopSink{}
	default:
		sink = audit.NewLogSink(log)
	}

	var dispatcher *webhook.Dispatcher
	if cfg.ReviewWebhookURL != "" {
		dispatcher = webhook.NewDispatcher(webhook.Config{
			URL:        cfg.ReviewWebhookURL,
			Secret:     cfg.ReviewWebhookSecret,
			MaxRetries: 3,
			Timeout:    10 * time.Second,
			Backoff:    time.Second,
		}, log)
		sink = audit.MultiSink{sink, dispatcher}
		log.Info().Str("url", cfg.ReviewWebhookURL).Msg("review webhook enabled")
	}

	auditSvc := audit.NewService(sink, log, nil, nil, 0)

	// API server with deps
	evalSvc := evaluation.NewService(snapshot.Load, auditSvc, log)
	srvAPI := api.NewServer(evalSvc, snapshot.Load, log, api.Options{
		RateLimitPerIP: cfg.RateLimitPerIP,
		Timeout:        cfg.RequestTimeout,
	})

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srvAPI.Router(),
		ReadTimeout:  3 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           metricsMux,
		ReadHeaderTimeout: 3 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.HTTPAddr).Str("env", cfg.AppEnv).Msg("listening")
		return serve(srv)
	})
	g.Go(func() error {
		log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics listening")
		return serve(metricsSrv)
	})
	g.Go(func() error {
		<-gctx.Done()

		// graceful shutdown
		ctxShut, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return errors.Join(
			srv.Shutdown(ctxShut),
			metricsSrv.Shutdown(ctxShut),
		)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server")
	}

	// drain the audit queue before the webhook and the database go away
	if err := auditSvc.Close(); err != nil {
		log.Error().Err(err).Msg("close audit")
	}
	if dispatcher != nil {
		_ = dispatcher.Close()
		delivered, failed, dropped := dispatcher.Stats()
		log.Info().Int64("delivered", delivered).Int64("failed", failed).Int64("dropped", dropped).
			Msg("review webhook stopped")
	}

	ctxTrace, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownTracing(ctxTrace); err != nil {
		log.Error().Err(err).Msg("shutdown tracing")
	}
	log.Info().Msg("stopped")
}

func serve(srv *http.Server) error {
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// auditPool returns a pool with the schema applied, reusing the catalog's
// pool when the catalog lives in Postgres.
func auditPool(ctx context.Context, cfg *config.Config, src store.Source) (*pgxpool.Pool, func(), error) {
	if pg, ok := src.(*store.PostgresSource); ok {
		if err := mydb.EnsureSchema(ctx, pg.Pool()); err != nil {
			return nil, nil, err
		}
		return pg.Pool(), func() {}, nil
	}

	pool, err := mydb.NewPool(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, nil, err
	}
	if err := mydb.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return pool, pool.Close, nil
}
