package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vietddude/registrygw/internal/core/domain"
)

// CacheStore is a session-only cache store. Entries are lost on restart.
type CacheStore struct {
	entries map[domain.CacheNamespace]map[string]domain.CacheEntry
	mu      sync.RWMutex
}

func NewCacheStore() *CacheStore {
	return &CacheStore{
		entries: make(map[domain.CacheNamespace]map[string]domain.CacheEntry),
	}
}

func (s *CacheStore) Get(ctx context.Context, ns domain.CacheNamespace, key string) (*domain.CacheEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[ns][key]
	if !ok {
		return nil, nil
	}
	e.Value = append([]byte(nil), e.Value...)
	return &e, nil
}

func (s *CacheStore) Put(ctx context.Context, entry *domain.CacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok := s.entries[entry.Namespace]
	if !ok {
		bucket = make(map[string]domain.CacheEntry)
		s.entries[entry.Namespace] = bucket
	}
	e := *entry
	e.Value = append([]byte(nil), entry.Value...)
	bucket[entry.Key] = e
	return nil
}

func (s *CacheStore) Delete(ctx context.Context, ns domain.CacheNamespace, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries[ns], key)
	return nil
}

func (s *CacheStore) Clear(ctx context.Context, ns domain.CacheNamespace) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, ns)
	return nil
}

func (s *CacheStore) Keys(ctx context.Context, ns domain.CacheNamespace) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.entries[ns]))
	for k := range s.entries[ns] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Prune deletes entries that expired before cutoff.
func (s *CacheStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, bucket := range s.entries {
		for k, e := range bucket {
			if e.Prunable(cutoff) {
				delete(bucket, k)
				n++
			}
		}
	}
	return n, nil
}
