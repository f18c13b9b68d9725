package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/registrygw/internal/core/domain"
	"github.com/vietddude/registrygw/internal/infra/storage/memory"
)

type fakeStore struct {
	mu      sync.Mutex
	cutoffs []time.Time
	n       int64
	err     error
}

func (f *fakeStore) Prune(_ context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, cutoff)
	return f.n, f.err
}

func (f *fakeStore) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cutoffs)
}

func TestPruner_Cutoff(t *testing.T) {
	store := &fakeStore{n: 3}
	p := NewPruner(store, 48*time.Hour, nil)
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	assert.Equal(t, int64(3), p.Prune(context.Background()))
	assert.Equal(t, []time.Time{now.Add(-48 * time.Hour)}, store.cutoffs)
}

func TestPruner_ErrorCountsZero(t *testing.T) {
	p := NewPruner(&fakeStore{n: 5, err: errors.New("db down")}, time.Hour, nil)
	assert.Zero(t, p.Prune(context.Background()))
}

func TestPruner_Interval(t *testing.T) {
	assert.Equal(t, time.Minute, NewPruner(nil, time.Minute, nil).Interval())
	assert.Equal(t, 6*time.Minute, NewPruner(nil, time.Hour, nil).Interval())
	assert.Equal(t, time.Hour, NewPruner(nil, 7*24*time.Hour, nil).Interval())
}

func TestPruner_StartPrunesImmediatelyAndStops(t *testing.T) {
	store := &fakeStore{}
	p := NewPruner(store, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Start(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return store.calls() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pruner did not stop")
	}
}

func TestPruner_DisabledRetention(t *testing.T) {
	store := &fakeStore{}
	NewPruner(store, 0, nil).Start(context.Background())
	assert.Zero(t, store.calls())
}

func TestPruner_KeepsEntryWithTTLBeyondRetention(t *testing.T) {
	ctx := context.Background()
	store := memory.NewCacheStore()
	now := time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)
	entry := &domain.CacheEntry{
		Namespace: domain.NamespaceEmployer,
		Key:       "12345678901",
		Value:     []byte(`"cached"`),
		StoredAt:  now.Add(-8 * 24 * time.Hour),
		TTL:       30 * 24 * time.Hour,
	}
	require.NoError(t, store.Put(ctx, entry))

	p := NewPruner(store, 7*24*time.Hour, nil)
	p.now = func() time.Time { return now }

	assert.Zero(t, p.Prune(ctx))
	got, err := store.Get(ctx, domain.NamespaceEmployer, "12345678901")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.False(t, got.Expired(now))
}
