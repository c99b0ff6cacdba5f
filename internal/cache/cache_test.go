package cache_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/suimax/sui-bot/internal/cache"
)

// fakeClock — управляемое время для проверки TTL.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func TestGetOrPopulateHitWithinTTL(t *testing.T) {
	clock := newFakeClock()
	c := cache.New(zap.NewNop(), cache.WithClock(clock.Now))

	var fetches atomic.Int32
	fetch := func(context.Context) (string, error) {
		fetches.Add(1)
		return "pool-data", nil
	}

	ctx := context.Background()
	v, err := cache.GetOrPopulate(ctx, c, cache.NSPool, "P1", 60*time.Second, fetch)
	require.NoError(t, err)
	assert.Equal(t, "pool-data", v)

	clock.Advance(30 * time.Second)
	v, err = cache.GetOrPopulate(ctx, c, cache.NSPool, "P1", 60*time.Second, fetch)
	require.NoError(t, err)
	assert.Equal(t, "pool-data", v)
	assert.Equal(t, int32(1), fetches.Load(), "второй вызов должен быть попаданием")

	// После истечения TTL — повторный fetch.
	clock.Advance(31 * time.Second)
	_, err = cache.GetOrPopulate(ctx, c, cache.NSPool, "P1", 60*time.Second, fetch)
	require.NoError(t, err)
	assert.Equal(t, int32(2), fetches.Load())
}

func TestGetOrPopulateFetchErrorNotCached(t *testing.T) {
	c := cache.New(zap.NewNop())
	boom := errors.New("rpc down")

	var fetches int
	fetch := func(context.Context) (int, error) {
		fetches++
		if fetches == 1 {
			return 0, boom
		}
		return 7, nil
	}

	_, err := cache.GetOrPopulate(context.Background(), c, cache.NSPrice, "P1", 0, fetch)
	assert.ErrorIs(t, err, boom)

	v, err := cache.GetOrPopulate(context.Background(), c, cache.NSPrice, "P1", 0, fetch)
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestHitRateZeroWithoutLookups(t *testing.T) {
	c := cache.New(zap.NewNop())
	m := c.Stats()
	assert.Zero(t, m.Hits)
	assert.Zero(t, m.Misses)
	assert.Equal(t, 0.0, m.HitRate)
	assert.False(t, m.HitRate != m.HitRate, "hit rate не должен быть NaN")
}

func TestHitRateComputation(t *testing.T) {
	c := cache.New(zap.NewNop())
	fetch := func(context.Context) (string, error) { return "v", nil }

	ctx := context.Background()
	// 1 промах + 3 попадания → 75%.
	for i := 0; i < 4; i++ {
		_, err := cache.GetOrPopulate(ctx, c, cache.NSBalance, "addr", 0, fetch)
		require.NoError(t, err)
	}

	m := c.Stats()
	assert.Equal(t, uint64(3), m.Hits)
	assert.Equal(t, uint64(1), m.Misses)
	assert.InDelta(t, 0.75, m.HitRate, 1e-9)
	assert.Equal(t, 1, m.Keys)
}

func TestInvalidate(t *testing.T) {
	c := cache.New(zap.NewNop())
	var fetches int
	fetch := func(context.Context) (string, error) {
		fetches++
		return "v", nil
	}

	ctx := context.Background()
	_, err := cache.GetOrPopulate(ctx, c, cache.NSPool, "P1", 0, fetch)
	require.NoError(t, err)

	c.Invalidate(cache.NSPool, "P1")
	_, err = cache.GetOrPopulate(ctx, c, cache.NSPool, "P1", 0, fetch)
	require.NoError(t, err)
	assert.Equal(t, 2, fetches)
}

func TestInvalidateNamespaceScoped(t *testing.T) {
	c := cache.New(zap.NewNop())
	fetch := func(context.Context) (string, error) { return "v", nil }

	ctx := context.Background()
	_, _ = cache.GetOrPopulate(ctx, c, cache.NSPool, "P1", 0, fetch)
	_, _ = cache.GetOrPopulate(ctx, c, cache.NSPrice, "P1", 0, fetch)

	c.InvalidateNamespace(cache.NSPool)

	var poolFetches, priceFetches int
	_, _ = cache.GetOrPopulate(ctx, c, cache.NSPool, "P1", 0, func(context.Context) (string, error) {
		poolFetches++
		return "v", nil
	})
	_, _ = cache.GetOrPopulate(ctx, c, cache.NSPrice, "P1", 0, func(context.Context) (string, error) {
		priceFetches++
		return "v", nil
	})

	assert.Equal(t, 1, poolFetches, "pool namespace сброшен")
	assert.Equal(t, 0, priceFetches, "price namespace не тронут")
}

func TestInvalidatePoolDropsDerivedData(t *testing.T) {
	c := cache.New(zap.NewNop())
	fetch := func(context.Context) (string, error) { return "v", nil }

	ctx := context.Background()
	for _, ns := range []cache.Namespace{cache.NSPool, cache.NSPrice, cache.NSLiquidity} {
		_, _ = cache.GetOrPopulate(ctx, c, ns, "P1", 0, fetch)
	}

	c.InvalidatePool("P1")
	assert.Equal(t, 0, c.Stats().Keys)
}

func TestConcurrentMissesCollapse(t *testing.T) {
	c := cache.New(zap.NewNop())

	var fetches atomic.Int32
	release := make(chan struct{})
	fetch := func(context.Context) (string, error) {
		fetches.Add(1)
		<-release
		return "v", nil
	}

	const goroutines = 16
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			v, err := cache.GetOrPopulate(context.Background(), c, cache.NSLiquidity, "P1", 0, fetch)
			assert.NoError(t, err)
			assert.Equal(t, "v", v)
		}()
	}

	close(start)
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	// Дубликаты fetch безопасны, но при работающем коллапсе их сильно меньше,
	// чем вызывающих; обычно ровно один.
	assert.Less(t, fetches.Load(), int32(goroutines))
}

func TestCleanupRemovesExpired(t *testing.T) {
	clock := newFakeClock()
	c := cache.New(zap.NewNop(), cache.WithClock(clock.Now))
	fetch := func(context.Context) (string, error) { return "v", nil }

	ctx := context.Background()
	_, _ = cache.GetOrPopulate(ctx, c, cache.NSOpportunity, "arb", 10*time.Second, fetch)
	_, _ = cache.GetOrPopulate(ctx, c, cache.NSBalance, "addr", 300*time.Second, fetch)

	clock.Advance(15 * time.Second)
	removed := c.Cleanup()
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, c.Stats().Keys)
}
