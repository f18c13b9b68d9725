// Package gateway owns the registry call pipeline:
// cache → circuit breaker → retry → mTLS SOAP client.
//
// Every public operation returns a domain.Result; expected failures
// (certificate, network, registry rejection) never surface as Go errors.
package gateway

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/vietddude/registrygw/internal/core/config"
	"github.com/vietddude/registrygw/internal/core/domain"
	"github.com/vietddude/registrygw/internal/core/worker"
	"github.com/vietddude/registrygw/internal/infra/breaker"
	"github.com/vietddude/registrygw/internal/infra/cache"
	"github.com/vietddude/registrygw/internal/infra/cert"
	redisclient "github.com/vietddude/registrygw/internal/infra/redis"
	"github.com/vietddude/registrygw/internal/infra/registry"
	"github.com/vietddude/registrygw/internal/infra/retry"
	"github.com/vietddude/registrygw/internal/infra/soap"
	"github.com/vietddude/registrygw/internal/infra/storage"
	"github.com/vietddude/registrygw/internal/infra/storage/memory"
	"github.com/vietddude/registrygw/internal/infra/storage/postgres"
)

const tracerName = "github.com/vietddude/registrygw/internal/gateway"

// Caller performs one registry exchange. *registry.Client implements it.
type Caller interface {
	Call(ctx context.Context, req registry.Request) (*soap.Payload, error)
}

// Gateway is the pipeline owner. It is safe for concurrent use.
type Gateway struct {
	cfg      *config.AppConfig
	certs    *cert.Provider
	client   *registry.Client
	caller   Caller
	breakers map[domain.Operation]*breaker.Breaker
	retry    retry.Options
	cache    *cache.Cache
	alerts   domain.AlertSink
	logger   *slog.Logger
	tracer   trace.Tracer
	now      func() time.Time

	store   storage.CacheStore
	checks  map[string]func(context.Context) error
	closers []func() error
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets the logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithAlertSink sets where "registry unavailable" notifications go.
// Defaults to LogAlertSink.
func WithAlertSink(sink domain.AlertSink) Option {
	return func(g *Gateway) {
		if sink != nil {
			g.alerts = sink
		}
	}
}

// WithCacheStore overrides the store selected by cache.backend.
func WithCacheStore(store storage.CacheStore) Option {
	return func(g *Gateway) {
		g.store = store
	}
}

// WithCertificateProvider shares an existing provider.
func WithCertificateProvider(p *cert.Provider) Option {
	return func(g *Gateway) {
		g.certs = p
	}
}

// WithCaller replaces the HTTPS client.
func WithCaller(c Caller) Option {
	return func(g *Gateway) {
		g.caller = c
	}
}

// WithTracer sets the tracer. Defaults to the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(g *Gateway) {
		if t != nil {
			g.tracer = t
		}
	}
}

// WithClock overrides time.Now for the breaker, cache and results.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) {
		if now != nil {
			g.now = now
		}
	}
}

// New wires the pipeline from cfg. cfg must have defaults applied; errors
// are returned only for configurations that can never work. An unreachable
// cache backend degrades to no cache.
func New(ctx context.Context, cfg *config.AppConfig, opts ...Option) (*Gateway, error) {
	if cfg == nil {
		return nil, errors.New("gateway: nil config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("gateway: %w", err)
	}

	g := &Gateway{
		cfg:      cfg,
		breakers: make(map[domain.Operation]*breaker.Breaker, len(domain.Operations)),
		checks:   make(map[string]func(context.Context) error),
		logger:   slog.Default(),
		tracer:   otel.Tracer(tracerName),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.alerts == nil {
		g.alerts = NewLogAlertSink(g.logger)
	}

	if g.certs == nil {
		certs, err := newCertificateProvider(cfg, g.logger)
		if err != nil {
			return nil, err
		}
		g.certs = certs
	}

	if g.caller == nil {
		client, err := registry.NewClient(registry.Config{
			Environment:        cfg.Environment,
			EmployerID:         cfg.EmployerID,
			TransmitterID:      cfg.TransmitterID,
			Timeout:            cfg.HTTP.Timeout,
			InsecureSkipVerify: cfg.HTTP.InsecureSkipVerify,
			CAFile:             cfg.HTTP.CAFile,
			RateLimit:          cfg.HTTP.RateLimit,
			Burst:              cfg.HTTP.Burst,
		}, g.certs, registry.WithLogger(g.logger))
		if err != nil {
			return nil, fmt.Errorf("gateway: %w", err)
		}
		g.client = client
		g.caller = client
		g.closers = append(g.closers, client.Close)
	}

	for _, op := range domain.Operations {
		g.breakers[op] = breaker.New(string(op),
			breaker.WithFailureThreshold(cfg.Breaker.FailureThreshold),
			breaker.WithCooldown(cfg.Breaker.Cooldown),
			breaker.WithDecayInterval(cfg.Breaker.Decay()),
			breaker.WithAlertSink(g.alerts),
			breaker.WithClock(g.now),
			breaker.WithLogger(g.logger),
		)
	}

	g.retry = retry.Options{
		MaxAttempts:  cfg.Retry.MaxAttempts,
		InitialDelay: cfg.Retry.InitialDelay,
		MaxDelay:     cfg.Retry.MaxDelay,
		Multiplier:   cfg.Retry.Multiplier,
		Jitter:       cfg.Retry.JitterEnabled(),
	}

	if g.store == nil {
		g.store = g.openStore(ctx)
	}
	cacheOpts := []cache.Option{
		cache.WithDefaultTTL(cfg.Cache.DefaultTTL),
		cache.WithClock(g.now),
		cache.WithLogger(g.logger),
	}
	for ns, ttl := range cfg.Cache.TTLs {
		cacheOpts = append(cacheOpts, cache.WithTTL(ns, ttl))
	}
	g.cache = cache.New(g.store, cacheOpts...)

	g.logger.Info("Registry gateway ready",
		"environment", cfg.Environment,
		"cache", cfg.Cache.Backend,
		"cache_enabled", g.cache.Enabled(),
	)
	return g, nil
}

func newCertificateProvider(cfg *config.AppConfig, logger *slog.Logger) (*cert.Provider, error) {
	src := cert.Source{
		Path:       cfg.Certificate.Path,
		Passphrase: cfg.Certificate.Passphrase,
	}
	if cfg.Certificate.DataBase64 != "" {
		data, err := base64.StdEncoding.DecodeString(cfg.Certificate.DataBase64)
		if err != nil {
			return nil, fmt.Errorf("gateway: decode certificate.data_base64: %w", err)
		}
		src.Data = data
	}

	opts := []cert.ProviderOption{
		cert.WithLogger(logger),
		cert.WithWarnDays(cfg.Certificate.WarnDays),
	}
	if cfg.Certificate.CheckRevocation {
		opts = append(opts, cert.WithRevocationChecker(
			cert.NewRevocationChecker(nil, cfg.Certificate.RevocationTTL, logger),
		))
	}
	return cert.NewProvider(src, opts...), nil
}

// openStore selects the cache store for cache.backend. Connection failures
// are logged and the gateway runs without a cache.
func (g *Gateway) openStore(ctx context.Context) storage.CacheStore {
	switch g.cfg.Cache.Backend {
	case config.CacheMemory:
		return memory.NewCacheStore()

	case config.CacheRedis:
		client, err := redisclient.NewClient(g.cfg.Redis)
		if err != nil {
			g.logger.Warn("Redis cache unavailable, running without cache", "error", err)
			return nil
		}
		g.closers = append(g.closers, client.Close)
		g.checks["redis"] = client.Health
		return redisclient.NewCacheStore(client, g.cfg.Cache.StaleRetention)

	case config.CachePostgres:
		db, err := postgres.NewDB(ctx, g.cfg.Database)
		if err != nil {
			g.logger.Warn("Postgres cache unavailable, running without cache", "error", err)
			return nil
		}
		if err := db.Migrate(ctx); err != nil {
			g.logger.Warn("Postgres cache migration failed, running without cache", "error", err)
			_ = db.Close()
			return nil
		}
		store := postgres.NewCacheStore(db)
		bgCtx, stop := context.WithCancel(context.Background())
		db.StartMetricsCollector(bgCtx)
		go worker.NewPruner(store, g.cfg.Cache.StaleRetention, g.logger).Start(bgCtx)
		g.closers = append(g.closers, db.Close, func() error {
			stop()
			return nil
		})
		g.checks["postgres"] = db.Health
		return store

	default:
		return nil
	}
}

// Close releases connections held by the gateway.
func (g *Gateway) Close() error {
	var errs []error
	for i := len(g.closers) - 1; i >= 0; i-- {
		if err := g.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Config returns the configuration the gateway was built with.
func (g *Gateway) Config() *config.AppConfig {
	return g.cfg
}

// Certificates returns the certificate provider.
func (g *Gateway) Certificates() *cert.Provider {
	return g.certs
}

// Store returns the cache store, or nil when running without cache.
func (g *Gateway) Store() storage.CacheStore {
	return g.store
}

// HealthChecks returns connectivity checks of the cache backends in use.
func (g *Gateway) HealthChecks() map[string]func(context.Context) error {
	return g.checks
}

// Scope hands out one Gateway per process or request scope. The first
// call builds it; later calls return the same instance.
type Scope struct {
	cfg  *config.AppConfig
	opts []Option

	once sync.Once
	gw   *Gateway
	err  error
}

// NewScope prepares a scope; nothing is built until Gateway is called.
func NewScope(cfg *config.AppConfig, opts ...Option) *Scope {
	return &Scope{cfg: cfg, opts: opts}
}

// Gateway returns the scope's gateway, building it on first use.
func (s *Scope) Gateway(ctx context.Context) (*Gateway, error) {
	s.once.Do(func() {
		s.gw, s.err = New(ctx, s.cfg, s.opts...)
	})
	return s.gw, s.err
}

// Close closes the gateway if one was built.
func (s *Scope) Close() error {
	if s.gw == nil {
		return nil
	}
	return s.gw.Close()
}
