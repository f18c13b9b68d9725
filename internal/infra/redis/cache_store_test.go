package redis

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/registrygw/internal/core/domain"
)

func newTestStore(t *testing.T) (*CacheStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	client, err := NewClient(Config{URL: "redis://" + mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return NewCacheStore(client, time.Hour), mr
}

func TestCacheStore_PutGet(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	stored := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	entry := &domain.CacheEntry{
		Namespace: domain.NamespaceEmployer,
		Key:       "12345678901",
		Value:     []byte(`{"name":"ACME"}`),
		StoredAt:  stored,
		TTL:       time.Minute,
	}
	require.NoError(t, store.Put(ctx, entry))

	got, err := store.Get(ctx, domain.NamespaceEmployer, "12345678901")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.JSONEq(t, `{"name":"ACME"}`, string(got.Value))
	assert.True(t, stored.Equal(got.StoredAt))
	assert.Equal(t, time.Minute, got.TTL)

	// Redis expiry covers TTL plus the stale retention window.
	assert.Equal(t, time.Minute+time.Hour, mr.TTL("registrygw:cache:employer:12345678901"))
}

func TestCacheStore_GetMissing(t *testing.T) {
	store, _ := newTestStore(t)

	got, err := store.Get(context.Background(), domain.NamespaceEvents, "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCacheStore_ClearAndKeys(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	for _, k := range []string{"a", "b"} {
		require.NoError(t, store.Put(ctx, &domain.CacheEntry{
			Namespace: domain.NamespaceEvents, Key: k, Value: []byte(`1`), TTL: time.Minute,
		}))
	}
	require.NoError(t, store.Put(ctx, &domain.CacheEntry{
		Namespace: domain.NamespaceBatches, Key: "p1", Value: []byte(`1`), TTL: time.Minute,
	}))

	keys, err := store.Keys(ctx, domain.NamespaceEvents)
	require.NoError(t, err)
	sort.Strings(keys)
	assert.Equal(t, []string{"a", "b"}, keys)

	require.NoError(t, store.Clear(ctx, domain.NamespaceEvents))

	keys, err = store.Keys(ctx, domain.NamespaceEvents)
	require.NoError(t, err)
	assert.Empty(t, keys)

	other, err := store.Get(ctx, domain.NamespaceBatches, "p1")
	require.NoError(t, err)
	assert.NotNil(t, other)

	require.NoError(t, store.Delete(ctx, domain.NamespaceBatches, "p1"))
	other, err = store.Get(ctx, domain.NamespaceBatches, "p1")
	require.NoError(t, err)
	assert.Nil(t, other)
}
