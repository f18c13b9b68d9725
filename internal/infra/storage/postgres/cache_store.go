package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/registrygw/internal/core/domain"
)

const (
	selectEntrySQL = `SELECT namespace, cache_key, value, stored_at, ttl_ms FROM registry_cache WHERE namespace = $1 AND cache_key = $2`
	upsertEntrySQL = `INSERT INTO registry_cache (namespace, cache_key, value, stored_at, ttl_ms)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (namespace, cache_key)
DO UPDATE SET value = EXCLUDED.value, stored_at = EXCLUDED.stored_at, ttl_ms = EXCLUDED.ttl_ms`
	deleteEntrySQL     = `DELETE FROM registry_cache WHERE namespace = $1 AND cache_key = $2`
	clearNamespaceSQL  = `DELETE FROM registry_cache WHERE namespace = $1`
	selectKeysSQL      = `SELECT cache_key FROM registry_cache WHERE namespace = $1 ORDER BY cache_key`
	pruneStaleEntrySQL = `DELETE FROM registry_cache WHERE stored_at + ttl_ms * interval '1 millisecond' < $1`
)

type cacheRow struct {
	Namespace string    `db:"namespace"`
	Key       string    `db:"cache_key"`
	Value     []byte    `db:"value"`
	StoredAt  time.Time `db:"stored_at"`
	TTLMillis int64     `db:"ttl_ms"`
}

// CacheStore keeps cache entries in the registry_cache table.
type CacheStore struct {
	db *DB
}

// NewCacheStore creates a store on top of a migrated database.
func NewCacheStore(db *DB) *CacheStore {
	return &CacheStore{db: db}
}

// Get returns the entry or nil when absent.
func (s *CacheStore) Get(
	ctx context.Context,
	ns domain.CacheNamespace,
	key string,
) (*domain.CacheEntry, error) {
	var row cacheRow
	err := s.db.GetContext(ctx, &row, selectEntrySQL, string(ns), key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select cache entry: %w", err)
	}
	return &domain.CacheEntry{
		Namespace: domain.CacheNamespace(row.Namespace),
		Key:       row.Key,
		Value:     row.Value,
		StoredAt:  row.StoredAt,
		TTL:       time.Duration(row.TTLMillis) * time.Millisecond,
	}, nil
}

// Put inserts or replaces the entry.
func (s *CacheStore) Put(ctx context.Context, entry *domain.CacheEntry) error {
	_, err := s.db.ExecContext(ctx, upsertEntrySQL,
		string(entry.Namespace),
		entry.Key,
		entry.Value,
		entry.StoredAt,
		entry.TTL.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("upsert cache entry: %w", err)
	}
	return nil
}

// Delete removes one entry.
func (s *CacheStore) Delete(ctx context.Context, ns domain.CacheNamespace, key string) error {
	if _, err := s.db.ExecContext(ctx, deleteEntrySQL, string(ns), key); err != nil {
		return fmt.Errorf("delete cache entry: %w", err)
	}
	return nil
}

// Clear removes every entry of a namespace.
func (s *CacheStore) Clear(ctx context.Context, ns domain.CacheNamespace) error {
	if _, err := s.db.ExecContext(ctx, clearNamespaceSQL, string(ns)); err != nil {
		return fmt.Errorf("clear cache namespace: %w", err)
	}
	return nil
}

// Keys lists entry keys of a namespace in order.
func (s *CacheStore) Keys(ctx context.Context, ns domain.CacheNamespace) ([]string, error) {
	var keys []string
	if err := s.db.SelectContext(ctx, &keys, selectKeysSQL, string(ns)); err != nil {
		return nil, fmt.Errorf("select cache keys: %w", err)
	}
	return keys, nil
}

// Prune deletes entries that expired before cutoff and returns how many
// went away.
func (s *CacheStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, pruneStaleEntrySQL, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune cache: %w", err)
	}
	return res.RowsAffected()
}
