package domain

import "time"

// CacheNamespace scopes cache keys per domain object type so TTL policy and
// clearing stay independent.
type CacheNamespace string

const (
	NamespaceEmployer CacheNamespace = "employer"
	NamespaceRoster   CacheNamespace = "roster"
	NamespaceEvents   CacheNamespace = "events"
	NamespaceBatches  CacheNamespace = "batches"
	NamespaceGeneric  CacheNamespace = "generic"
)

// CacheNamespaces lists the namespaces created by default.
var CacheNamespaces = []CacheNamespace{
	NamespaceEmployer,
	NamespaceRoster,
	NamespaceEvents,
	NamespaceBatches,
	NamespaceGeneric,
}

// CacheEntry is one stored upstream answer. Value holds the JSON encoding of
// the cached data.
type CacheEntry struct {
	Namespace CacheNamespace `json:"namespace"`
	Key       string         `json:"key"`
	Value     []byte         `json:"value"`
	StoredAt  time.Time      `json:"stored_at"`
	TTL       time.Duration  `json:"ttl"`
}

// Expired reports whether now − StoredAt exceeds the TTL. Expired entries are
// kept as a last-resort fallback.
func (e *CacheEntry) Expired(now time.Time) bool {
	return now.Sub(e.StoredAt) > e.TTL
}

// ExpiresAt is the instant the entry stops being fresh.
func (e *CacheEntry) ExpiresAt() time.Time {
	return e.StoredAt.Add(e.TTL)
}

// Prunable reports whether the entry expired before cutoff. Unexpired
// entries are never prunable, whatever their age.
func (e *CacheEntry) Prunable(cutoff time.Time) bool {
	return e.ExpiresAt().Before(cutoff)
}
