package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/vietddude/registrygw/internal/core/domain"
	"github.com/vietddude/registrygw/internal/core/failure"
	redisstore "github.com/vietddude/registrygw/internal/infra/redis"
	"github.com/vietddude/registrygw/internal/infra/storage/memory"
	"github.com/vietddude/registrygw/internal/infra/storage/mocks"
)

type employer struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newClock() *clock {
	return &clock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

var errDown = failure.New(failure.ServerUnavailable, "registry down")

func counting(calls *atomic.Int32, v employer, err error) func(context.Context) (employer, error) {
	return func(context.Context) (employer, error) {
		calls.Add(1)
		if err != nil {
			return employer{}, err
		}
		return v, nil
	}
}

func TestGetWithFallback_Ordering(t *testing.T) {
	ctx := context.Background()
	acme := employer{ID: "123", Name: "ACME"}

	t.Run("warm cache, working fetch: CACHE without fetching", func(t *testing.T) {
		c := New(memory.NewCacheStore())
		Put(ctx, c, domain.NamespaceEmployer, "123", acme, time.Hour)

		var calls atomic.Int32
		got, err := GetWithFallback(ctx, c, domain.NamespaceEmployer, "123", counting(&calls, employer{Name: "fresh"}, nil), 0)
		require.NoError(t, err)
		assert.Equal(t, domain.OriginCache, got.Origin)
		assert.Equal(t, acme, got.Data)
		assert.Zero(t, calls.Load())
	})

	t.Run("cold cache, working fetch: LIVE and stored", func(t *testing.T) {
		c := New(memory.NewCacheStore())

		var calls atomic.Int32
		got, err := GetWithFallback(ctx, c, domain.NamespaceEmployer, "123", counting(&calls, acme, nil), 0)
		require.NoError(t, err)
		assert.Equal(t, domain.OriginLive, got.Origin)
		assert.Equal(t, acme, got.Data)
		assert.Equal(t, int32(1), calls.Load())

		again, err := GetWithFallback(ctx, c, domain.NamespaceEmployer, "123", counting(&calls, employer{}, errDown), 0)
		require.NoError(t, err)
		assert.Equal(t, domain.OriginCache, again.Origin)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("expired entry, failing fetch: EXPIRED_CACHE", func(t *testing.T) {
		clk := newClock()
		c := New(memory.NewCacheStore(), WithClock(clk.Now))
		Put(ctx, c, domain.NamespaceEmployer, "123", acme, time.Minute)
		clk.Advance(2 * time.Minute)

		var calls atomic.Int32
		got, err := GetWithFallback(ctx, c, domain.NamespaceEmployer, "123", counting(&calls, employer{}, errDown), 0)
		require.NoError(t, err)
		assert.Equal(t, domain.OriginExpiredCache, got.Origin)
		assert.Equal(t, acme, got.Data)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("no entry, failing fetch: error propagated", func(t *testing.T) {
		c := New(memory.NewCacheStore())

		var calls atomic.Int32
		_, err := GetWithFallback(ctx, c, domain.NamespaceEmployer, "123", counting(&calls, employer{}, errDown), 0)
		require.ErrorIs(t, err, errDown)
		assert.Equal(t, int32(1), calls.Load())
	})
}

func TestGetWithFallback_ExpiredRefetchedWhenFetchWorks(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	c := New(memory.NewCacheStore(), WithClock(clk.Now), WithTTL(domain.NamespaceEmployer, time.Minute))

	Put(ctx, c, domain.NamespaceEmployer, "123", employer{Name: "old"}, 0)
	clk.Advance(time.Minute + time.Second)

	var calls atomic.Int32
	got, err := GetWithFallback(ctx, c, domain.NamespaceEmployer, "123", counting(&calls, employer{Name: "new"}, nil), 0)
	require.NoError(t, err)
	assert.Equal(t, domain.OriginLive, got.Origin)
	assert.Equal(t, "new", got.Data.Name)
}

func TestGetWithFallback_BoundaryIsNotExpired(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	c := New(memory.NewCacheStore(), WithClock(clk.Now))

	Put(ctx, c, domain.NamespaceEvents, "k", employer{Name: "x"}, time.Minute)
	clk.Advance(time.Minute)

	var calls atomic.Int32
	got, err := GetWithFallback(ctx, c, domain.NamespaceEvents, "k", counting(&calls, employer{}, nil), 0)
	require.NoError(t, err)
	assert.Equal(t, domain.OriginCache, got.Origin)
}

func TestGetWithFallback_NamespacesAreIndependent(t *testing.T) {
	ctx := context.Background()
	c := New(memory.NewCacheStore(),
		WithDefaultTTL(time.Hour),
		WithTTL(domain.NamespaceEvents, time.Minute),
	)
	assert.Equal(t, time.Minute, c.TTL(domain.NamespaceEvents))
	assert.Equal(t, time.Hour, c.TTL(domain.NamespaceEmployer))

	Put(ctx, c, domain.NamespaceEmployer, "k", employer{Name: "employer"}, 0)
	Put(ctx, c, domain.NamespaceEvents, "k", employer{Name: "events"}, 0)

	require.NoError(t, c.Clear(ctx, domain.NamespaceEvents))

	keys, err := c.Keys(ctx, domain.NamespaceEmployer)
	require.NoError(t, err)
	assert.Equal(t, []string{"k"}, keys)
	keys, err = c.Keys(ctx, domain.NamespaceEvents)
	require.NoError(t, err)
	assert.Empty(t, keys)

	require.NoError(t, c.Invalidate(ctx, domain.NamespaceEmployer, "k"))
	var calls atomic.Int32
	_, err = GetWithFallback(ctx, c, domain.NamespaceEmployer, "k", counting(&calls, employer{}, errDown), 0)
	assert.ErrorIs(t, err, errDown)
}

func TestGetWithFallback_NoStoreDegradesToLive(t *testing.T) {
	ctx := context.Background()
	for _, c := range []*Cache{nil, New(nil)} {
		assert.False(t, c.Enabled())

		var calls atomic.Int32
		got, err := GetWithFallback(ctx, c, domain.NamespaceEmployer, "k", counting(&calls, employer{Name: "live"}, nil), 0)
		require.NoError(t, err)
		assert.Equal(t, domain.OriginLive, got.Origin)

		_, err = GetWithFallback(ctx, c, domain.NamespaceEmployer, "k", counting(&calls, employer{}, errDown), 0)
		assert.ErrorIs(t, err, errDown)
		assert.NoError(t, c.Clear(ctx, domain.NamespaceEmployer))
	}
}

func TestGetWithFallback_StoreErrorsDegrade(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockCacheStore(ctrl)
	storeErr := errors.New("disk unavailable")

	store.EXPECT().Get(gomock.Any(), domain.NamespaceEmployer, "123").Return(nil, storeErr).AnyTimes()
	store.EXPECT().Put(gomock.Any(), gomock.Any()).Return(storeErr).Times(1)

	c := New(store)
	ctx := context.Background()

	var calls atomic.Int32
	got, err := GetWithFallback(ctx, c, domain.NamespaceEmployer, "123", counting(&calls, employer{Name: "live"}, nil), 0)
	require.NoError(t, err)
	assert.Equal(t, domain.OriginLive, got.Origin)
	assert.Equal(t, "live", got.Data.Name)

	_, err = GetWithFallback(ctx, c, domain.NamespaceEmployer, "123", counting(&calls, employer{}, errDown), 0)
	assert.ErrorIs(t, err, errDown)
}

func TestGetWithFallback_CoalescesConcurrentMisses(t *testing.T) {
	c := New(memory.NewCacheStore())
	ctx := context.Background()

	release := make(chan struct{})
	var calls atomic.Int32
	fetch := func(context.Context) (employer, error) {
		calls.Add(1)
		<-release
		return employer{Name: "shared"}, nil
	}

	var wg sync.WaitGroup
	results := make([]Lookup[employer], 8)
	errs := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = GetWithFallback(ctx, c, domain.NamespaceRoster, "all", fetch, 0)
		}(i)
	}

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		assert.Equal(t, "shared", results[i].Data.Name)
	}
	assert.LessOrEqual(t, calls.Load(), int32(2))
}

func TestGetWithFallback_SurvivesRestartWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	open := func() *Cache {
		client, err := redisstore.NewClient(redisstore.Config{URL: "redis://" + mr.Addr()})
		require.NoError(t, err)
		t.Cleanup(func() { _ = client.Close() })
		return New(redisstore.NewCacheStore(client, time.Hour))
	}

	var calls atomic.Int32
	first, err := GetWithFallback(ctx, open(), domain.NamespaceEmployer, "123", counting(&calls, employer{Name: "ACME"}, nil), 0)
	require.NoError(t, err)
	assert.Equal(t, domain.OriginLive, first.Origin)

	second, err := GetWithFallback(ctx, open(), domain.NamespaceEmployer, "123", counting(&calls, employer{}, errDown), 0)
	require.NoError(t, err)
	assert.Equal(t, domain.OriginCache, second.Origin)
	assert.Equal(t, "ACME", second.Data.Name)
	assert.Equal(t, int32(1), calls.Load())
}
