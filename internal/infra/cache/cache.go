// Package cache wraps registry fetches with a TTL cache that falls back to
// expired entries when the registry cannot answer.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/vietddude/registrygw/internal/core/domain"
	"github.com/vietddude/registrygw/internal/infra/storage"
	"github.com/vietddude/registrygw/internal/metrics"
)

// DefaultTTL applies when neither the caller nor the namespace sets one.
const DefaultTTL = 24 * time.Hour

const originMiss = "MISS"

// Lookup is the answer of GetWithFallback.
type Lookup[T any] struct {
	Data     T
	Origin   domain.Origin
	StoredAt time.Time
}

// Cache layers TTL policy over a storage.CacheStore. A nil store, or a nil
// *Cache, means "no cache": fetches go straight through.
type Cache struct {
	store      storage.CacheStore
	ttls       map[domain.CacheNamespace]time.Duration
	defaultTTL time.Duration
	now        func() time.Time
	logger     *slog.Logger
	group      singleflight.Group
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL sets the TTL of one namespace.
func WithTTL(ns domain.CacheNamespace, ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttls[ns] = ttl
		}
	}
}

// WithDefaultTTL sets the TTL used for namespaces without their own.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.defaultTTL = ttl
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a Cache over store.
func New(store storage.CacheStore, opts ...Option) *Cache {
	c := &Cache{
		store:      store,
		ttls:       make(map[domain.CacheNamespace]time.Duration),
		defaultTTL: DefaultTTL,
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "cache")
	return c
}

// Enabled reports whether a store is attached.
func (c *Cache) Enabled() bool {
	return c != nil && c.store != nil
}

// TTL returns the effective TTL for a namespace.
func (c *Cache) TTL(ns domain.CacheNamespace) time.Duration {
	if ttl, ok := c.ttls[ns]; ok {
		return ttl
	}
	return c.defaultTTL
}

// GetWithFallback answers from a live entry when one exists (CACHE), else
// calls fetch and stores its result (LIVE). When fetch fails, an entry of
// any age is returned as EXPIRED_CACHE; without one the fetch error is
// returned. A ttl of zero uses the namespace TTL.
//
// Concurrent misses for the same namespace and key share one fetch.
func GetWithFallback[T any](
	ctx context.Context,
	c *Cache,
	ns domain.CacheNamespace,
	key string,
	fetch func(ctx context.Context) (T, error),
	ttl time.Duration,
) (Lookup[T], error) {
	if !c.Enabled() {
		data, err := fetch(ctx)
		if err != nil {
			return Lookup[T]{}, err
		}
		return Lookup[T]{Data: data, Origin: domain.OriginLive}, nil
	}
	if ttl <= 0 {
		ttl = c.TTL(ns)
	}

	if entry := c.read(ctx, ns, key); entry != nil && !entry.Expired(c.now()) {
		var data T
		err := json.Unmarshal(entry.Value, &data)
		if err == nil {
			c.observe(ns, domain.OriginCache)
			return Lookup[T]{Data: data, Origin: domain.OriginCache, StoredAt: entry.StoredAt}, nil
		}
		c.logger.Warn("Discarding undecodable cache entry", "namespace", ns, "key", key, "error", err)
	}

	v, err, _ := c.group.Do(flightKey(ns, key), func() (any, error) {
		data, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.write(ctx, ns, key, data, ttl)
		return data, nil
	})
	if err == nil {
		c.observe(ns, domain.OriginLive)
		data, _ := v.(T)
		return Lookup[T]{Data: data, Origin: domain.OriginLive, StoredAt: c.now()}, nil
	}

	if entry := c.read(ctx, ns, key); entry != nil {
		var data T
		if derr := json.Unmarshal(entry.Value, &data); derr == nil {
			c.logger.Warn("Serving expired cache entry",
				"namespace", ns,
				"key", key,
				"stored_at", entry.StoredAt,
				"error", err,
			)
			c.observe(ns, domain.OriginExpiredCache)
			return Lookup[T]{Data: data, Origin: domain.OriginExpiredCache, StoredAt: entry.StoredAt}, nil
		}
	}

	c.observe(ns, originMiss)
	return Lookup[T]{}, err
}

// Put stores a value directly.
func Put[T any](ctx context.Context, c *Cache, ns domain.CacheNamespace, key string, data T, ttl time.Duration) {
	if !c.Enabled() {
		return
	}
	if ttl <= 0 {
		ttl = c.TTL(ns)
	}
	c.write(ctx, ns, key, data, ttl)
}

// Clear removes every entry of a namespace.
func (c *Cache) Clear(ctx context.Context, ns domain.CacheNamespace) error {
	if !c.Enabled() {
		return nil
	}
	return c.store.Clear(ctx, ns)
}

// Invalidate removes one entry.
func (c *Cache) Invalidate(ctx context.Context, ns domain.CacheNamespace, key string) error {
	if !c.Enabled() {
		return nil
	}
	return c.store.Delete(ctx, ns, key)
}

// Keys lists the keys stored in a namespace.
func (c *Cache) Keys(ctx context.Context, ns domain.CacheNamespace) ([]string, error) {
	if !c.Enabled() {
		return nil, nil
	}
	return c.store.Keys(ctx, ns)
}

func (c *Cache) read(ctx context.Context, ns domain.CacheNamespace, key string) *domain.CacheEntry {
	entry, err := c.store.Get(ctx, ns, key)
	if err != nil {
		c.logger.Warn("Cache read failed, continuing without cache", "namespace", ns, "key", key, "error", err)
		return nil
	}
	return entry
}

func (c *Cache) write(ctx context.Context, ns domain.CacheNamespace, key string, data any, ttl time.Duration) {
	raw, err := json.Marshal(data)
	if err != nil {
		c.logger.Warn("Cache encode failed", "namespace", ns, "key", key, "error", err)
		return
	}
	entry := &domain.CacheEntry{
		Namespace: ns,
		Key:       key,
		Value:     raw,
		StoredAt:  c.now(),
		TTL:       ttl,
	}
	if err := c.store.Put(ctx, entry); err != nil {
		c.logger.Warn("Cache write failed", "namespace", ns, "key", key, "error", err)
	}
}

func (c *Cache) observe(ns domain.CacheNamespace, origin domain.Origin) {
	metrics.CacheLookupsTotal.WithLabelValues(string(ns), string(origin)).Inc()
}

func flightKey(ns domain.CacheNamespace, key string) string {
	return string(ns) + "\x00" + key
}
