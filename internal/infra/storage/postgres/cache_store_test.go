package postgres

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/registrygw/internal/core/domain"
)

func newMockStore(t *testing.T) (*CacheStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewCacheStore(Wrap(db)), mock
}

func TestCacheStore_Get(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()
	stored := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{"namespace", "cache_key", "value", "stored_at", "ttl_ms"}).
		AddRow("employer", "123", []byte(`{"a":1}`), stored, int64(60000))

	mock.ExpectQuery(regexp.QuoteMeta(selectEntrySQL)).
		WithArgs("employer", "123").
		WillReturnRows(rows)

	entry, err := store.Get(ctx, domain.NamespaceEmployer, "123")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, domain.NamespaceEmployer, entry.Namespace)
	assert.Equal(t, time.Minute, entry.TTL)
	assert.Equal(t, []byte(`{"a":1}`), entry.Value)
	assert.True(t, stored.Equal(entry.StoredAt))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheStore_GetNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(selectEntrySQL)).
		WithArgs("events", "missing").
		WillReturnRows(sqlmock.NewRows([]string{"namespace", "cache_key", "value", "stored_at", "ttl_ms"}))

	entry, err := store.Get(context.Background(), domain.NamespaceEvents, "missing")
	require.NoError(t, err)
	assert.Nil(t, entry)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheStore_Put(t *testing.T) {
	store, mock := newMockStore(t)
	stored := time.Now()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO registry_cache")).
		WithArgs("batches", "proto-1", []byte(`"ok"`), stored, int64(3600000)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.Put(context.Background(), &domain.CacheEntry{
		Namespace: domain.NamespaceBatches,
		Key:       "proto-1",
		Value:     []byte(`"ok"`),
		StoredAt:  stored,
		TTL:       time.Hour,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheStore_ClearKeysPrune(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta(selectKeysSQL)).
		WithArgs("roster").
		WillReturnRows(sqlmock.NewRows([]string{"cache_key"}).AddRow("a").AddRow("b"))
	mock.ExpectExec(regexp.QuoteMeta(clearNamespaceSQL)).
		WithArgs("roster").
		WillReturnResult(sqlmock.NewResult(0, 2))
	cutoff := time.Now().Add(-48 * time.Hour)
	mock.ExpectExec(regexp.QuoteMeta(pruneStaleEntrySQL)).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 3))

	keys, err := store.Keys(ctx, domain.NamespaceRoster)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keys)

	require.NoError(t, store.Clear(ctx, domain.NamespaceRoster))

	n, err := store.Prune(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCacheStore_PruneRespectsEntryTTL(t *testing.T) {
	store, mock := newMockStore(t)
	cutoff := time.Date(2026, 5, 3, 12, 0, 0, 0, time.UTC)

	assert.Contains(t, pruneStaleEntrySQL, "stored_at + ttl_ms * interval '1 millisecond' < $1")
	mock.ExpectExec(`DELETE FROM registry_cache WHERE stored_at \+ ttl_ms \* interval '1 millisecond' < \$1`).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 0))

	n, err := store.Prune(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
