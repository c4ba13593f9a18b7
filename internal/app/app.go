// Package app wires configuration into the running object graph shared by the
// HTTP server and the operator CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"mfrid/internal/directory"
	"mfrid/internal/identity"
	identityhandler "mfrid/internal/identity/handler"
	"mfrid/internal/platform/config"
	"mfrid/internal/platform/httpserver"
	"mfrid/internal/platform/metrics"
	"mfrid/internal/platform/postgres"
	redisclient "mfrid/internal/platform/redis"
	ratelimitmw "mfrid/internal/ratelimit/middleware"
	"mfrid/internal/ratelimit/store/bucket"
	"mfrid/internal/smartcard/certificate"
	"mfrid/internal/smartcard/probe"
	"mfrid/internal/smartcard/runner"
	httptransport "mfrid/internal/transport/http"
	"mfrid/pkg/platform/audit"
	"mfrid/pkg/platform/audit/publisher"
	auditmemory "mfrid/pkg/platform/audit/store/memory"
	auditpostgres "mfrid/pkg/platform/audit/store/postgres"
	auditredis "mfrid/pkg/platform/audit/store/redis"
	"mfrid/pkg/platform/middleware/metadata"
)

const (
	shutdownTimeout   = 10 * time.Second
	sweepInterval     = 5 * time.Minute
	memoryAuditEvents = 1000
)

// App holds every long-lived component.
type App struct {
	Config    config.Config
	Logger    *slog.Logger
	Registry  *prometheus.Registry
	Metrics   *metrics.Metrics
	Runner    *runner.ExecRunner
	Prober    *probe.Prober
	Extractor *certificate.Extractor
	Directory *directory.Client
	Resolver  *identity.Resolver
	Audit     *publisher.Publisher
	Redis     *redisclient.Client
	DB        *postgres.DB
	Buckets   *bucket.InMemoryBucketStore
	Proxies   metadata.TrustedProxies
}

// New builds the object graph. A configured but unreachable audit backend is
// an error; with neither AUDIT_DATABASE_URL nor REDIS_URL set, audit events
// are kept in memory.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	proxies, err := metadata.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("TRUSTED_PROXIES: %w", err)
	}

	a := &App{
		Config:   cfg,
		Logger:   logger,
		Registry: reg,
		Metrics:  m,
		Proxies:  proxies,
	}

	a.Runner = runner.New(
		runner.WithTimeout(cfg.Smartcard.CommandTimeout),
		runner.WithMaxOutput(cfg.Smartcard.MaxOutput),
		runner.WithMaxConcurrent(cfg.Smartcard.MaxConcurrent),
		runner.WithLogger(logger),
	)
	a.Prober = probe.New(a.Runner,
		probe.WithTool(cfg.Smartcard.Tool),
		probe.WithModule(cfg.Smartcard.Module),
		probe.WithLogger(logger),
	)
	a.Extractor = certificate.NewExtractor(a.Runner,
		certificate.WithTool(cfg.Smartcard.Tool),
		certificate.WithModule(cfg.Smartcard.Module),
		certificate.WithLogger(logger),
	)
	a.Directory = directory.New(cfg.Directory,
		directory.WithLogger(logger),
		directory.WithMetrics(m),
	)
	if !a.Directory.Available() {
		logger.Info("directory lookups disabled, rank will come from certificate data only")
	}

	store, err := a.auditStore(ctx)
	if err != nil {
		return nil, err
	}
	a.Audit = publisher.NewPublisher(store,
		publisher.WithAsyncBuffer(cfg.Audit.QueueSize),
		publisher.WithLogger(logger),
		publisher.WithDropCounter(m),
	)
	if cfg.Audit.HashKey == "" {
		logger.Warn("AUDIT_HASH_KEY unset, audit subject hashes are unkeyed")
	}

	a.Resolver = identity.NewResolver(a.Prober, a.Extractor, a.Directory,
		identity.WithLogger(logger),
		identity.WithMetrics(m),
		identity.WithAuditor(a.Audit, audit.NewHasher(cfg.Audit.HashKey)),
	)
	a.Buckets = bucket.NewInMemoryBucketStore(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	return a, nil
}

func (a *App) auditStore(ctx context.Context) (audit.Store, error) {
	db, err := postgres.Open(ctx, a.Config.Postgres)
	if err != nil {
		return nil, fmt.Errorf("audit store: %w", err)
	}
	if db != nil {
		a.DB = db
		store := auditpostgres.New(db.DB)
		if err := store.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("audit store: %w", err)
		}
		return store, nil
	}

	client, err := redisclient.New(ctx, a.Config.Redis)
	if err != nil {
		return nil, fmt.Errorf("audit store: %w", err)
	}
	if client == nil {
		a.Logger.Info("no audit backend configured, audit events kept in memory")
		return auditmemory.NewInMemoryStore(memoryAuditEvents), nil
	}
	a.Redis = client
	return auditredis.NewStreamStore(client.Client, a.Config.Redis.Stream, a.Config.Redis.MaxLen), nil
}

// Router builds the HTTP handler tree.
func (a *App) Router() http.Handler {
	limiter := ratelimitmw.New(a.Buckets, a.Logger,
		ratelimitmw.WithDisabled(a.Config.RateLimit.Disabled),
		ratelimitmw.WithMetrics(a.Metrics),
		ratelimitmw.WithAuditor(a.Audit),
	)
	opts := []identityhandler.Option{
		identityhandler.WithRateLimit(limiter.RateLimit()),
		identityhandler.WithTrustedProxies(a.Proxies),
	}
	if a.Redis != nil {
		opts = append(opts, identityhandler.WithReadinessCheck("redis", a.Redis))
	}
	if a.DB != nil {
		opts = append(opts, identityhandler.WithReadinessCheck("postgres", a.DB))
	}
	h := identityhandler.New(a.Resolver, a.Logger, a.Metrics, opts...)
	return httptransport.NewRouter(a.Registry, h)
}

// Serve runs the HTTP server and the rate limiter sweeper until ctx is
// cancelled, then shuts both down.
func (a *App) Serve(ctx context.Context) error {
	srv := httpserver.New(a.Config.Server.Addr, a.Router())
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.Info("starting mfrid", "addr", a.Config.Server.Addr, "env", a.Config.Server.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return a.Buckets.RunSweeper(gctx, sweepInterval)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		a.Logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Close drains the audit queue and releases the audit backend.
func (a *App) Close() {
	if a.Audit != nil {
		a.Audit.Close()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Warn("failed to close redis client", "error", err)
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Warn("failed to close audit database", "error", err)
		}
	}
}
