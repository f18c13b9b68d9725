package storage

//go:generate mockgen -source=repository.go -destination=mocks/cache_store.go -package=mocks CacheStore

import (
	"context"

	"github.com/vietddude/registrygw/internal/core/domain"
)

// CacheStore persists offline-cache entries. Get returns (nil, nil) when the
// key is absent; expired entries are still returned.
type CacheStore interface {
	// Get retrieves an entry regardless of expiry
	Get(ctx context.Context, ns domain.CacheNamespace, key string) (*domain.CacheEntry, error)

	// Put inserts or replaces an entry
	Put(ctx context.Context, entry *domain.CacheEntry) error

	// Delete removes one entry
	Delete(ctx context.Context, ns domain.CacheNamespace, key string) error

	// Clear removes every entry of a namespace
	Clear(ctx context.Context, ns domain.CacheNamespace) error

	// Keys lists the keys stored in a namespace
	Keys(ctx context.Context, ns domain.CacheNamespace) ([]string, error)
}
