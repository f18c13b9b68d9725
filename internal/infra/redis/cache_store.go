package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/registrygw/internal/core/domain"
)

// DefaultStaleRetention is how long an entry outlives its TTL in Redis so it
// can still serve as a stale fallback.
const DefaultStaleRetention = 7 * 24 * time.Hour

// CacheStore keeps cache entries in Redis so they survive restarts.
type CacheStore struct {
	client    *Client
	retention time.Duration
}

// NewCacheStore creates a store. A zero retention uses DefaultStaleRetention.
func NewCacheStore(client *Client, retention time.Duration) *CacheStore {
	if retention <= 0 {
		retention = DefaultStaleRetention
	}
	return &CacheStore{client: client, retention: retention}
}

// Get returns the entry or nil when absent.
func (s *CacheStore) Get(
	ctx context.Context,
	ns domain.CacheNamespace,
	key string,
) (*domain.CacheEntry, error) {
	raw, err := s.client.rdb.Get(ctx, s.client.entryKey(string(ns), key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get failed: %w", err)
	}

	var entry domain.CacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("decode entry: %w", err)
	}
	return &entry, nil
}

// Put stores the entry, keeping it past its TTL for the retention window.
func (s *CacheStore) Put(ctx context.Context, entry *domain.CacheEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}
	key := s.client.entryKey(string(entry.Namespace), entry.Key)
	if err := s.client.rdb.Set(ctx, key, raw, entry.TTL+s.retention).Err(); err != nil {
		return fmt.Errorf("set failed: %w", err)
	}
	return nil
}

// Delete removes one entry.
func (s *CacheStore) Delete(ctx context.Context, ns domain.CacheNamespace, key string) error {
	return s.client.rdb.Del(ctx, s.client.entryKey(string(ns), key)).Err()
}

// Clear removes every entry of a namespace.
func (s *CacheStore) Clear(ctx context.Context, ns domain.CacheNamespace) error {
	keys, err := s.scan(ctx, ns)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("del failed: %w", err)
	}
	return nil
}

// Keys lists the entry keys stored under a namespace.
func (s *CacheStore) Keys(ctx context.Context, ns domain.CacheNamespace) ([]string, error) {
	keys, err := s.scan(ctx, ns)
	if err != nil {
		return nil, err
	}
	prefix := s.client.namespacePrefix(string(ns))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, strings.TrimPrefix(k, prefix))
	}
	return out, nil
}

func (s *CacheStore) scan(ctx context.Context, ns domain.CacheNamespace) ([]string, error) {
	var (
		cursor uint64
		keys   []string
	)
	pattern := s.client.namespacePattern(string(ns))
	for {
		batch, next, err := s.client.rdb.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}
