package memcache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestTiered_LocalOnly(t *testing.T) {
	local := New[string](Config{MaxEntries: 10}, zap.NewNop())
	tc := NewTiered(local, nil, "t:", time.Minute, zap.NewNop())
	ctx := context.Background()

	tc.Set(ctx, "a", "alpha", 5)
	v, ok := tc.Get(ctx, "a")
	require.True(t, ok)
	assert.Equal(t, "alpha", v)

	_, ok = tc.Get(ctx, "missing")
	assert.False(t, ok)
}

func TestTiered_RedisBackfill(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()

	writer := NewTiered(New[string](Config{MaxEntries: 10}, zap.NewNop()), rdb, "t:", time.Minute, zap.NewNop())
	writer.Set(ctx, "a", "alpha", 5)

	// A second process with a cold local cache hits the Redis tier.
	readerLocal := New[string](Config{MaxEntries: 10}, zap.NewNop())
	reader := NewTiered(readerLocal, rdb, "t:", time.Minute, zap.NewNop())

	v, ok := reader.Get(ctx, "a")
	require.True(t, ok)
	assert.Equal(t, "alpha", v)

	// Backfilled locally, so a redis outage no longer matters.
	_, ok = readerLocal.Get("a")
	assert.True(t, ok)
}

func TestTiered_Invalidate(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()

	tc := NewTiered(New[string](Config{MaxEntries: 10}, zap.NewNop()), rdb, "t:", time.Minute, zap.NewNop())
	tc.Set(ctx, "a", "alpha", 5)
	tc.Invalidate(ctx, "a")

	_, ok := tc.Get(ctx, "a")
	assert.False(t, ok)

	cold := NewTiered(New[string](Config{MaxEntries: 10}, zap.NewNop()), rdb, "t:", time.Minute, zap.NewNop())
	_, ok = cold.Get(ctx, "a")
	assert.False(t, ok, "invalidate must remove the redis copy too")
}

func TestFetcher_CachesFetchResult(t *testing.T) {
	local := New[string](Config{MaxEntries: 10}, zap.NewNop())
	tc := NewTiered(local, nil, "t:", time.Minute, zap.NewNop())

	var calls atomic.Int64
	f := NewFetcher(tc, func(ctx context.Context, key string) (string, int64, error) {
		calls.Add(1)
		return "content-" + key, 10, nil
	})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		v, err := f.Get(ctx, "doc")
		require.NoError(t, err)
		assert.Equal(t, "content-doc", v)
	}
	assert.Equal(t, int64(1), calls.Load(), "repeat lookups must not refetch")
}

func TestFetcher_ErrorNotCached(t *testing.T) {
	tc := NewTiered(New[string](Config{MaxEntries: 10}, zap.NewNop()), nil, "t:", time.Minute, zap.NewNop())

	var calls atomic.Int64
	f := NewFetcher(tc, func(ctx context.Context, key string) (string, int64, error) {
		if calls.Add(1) == 1 {
			return "", 0, errors.New("upstream down")
		}
		return "ok", 2, nil
	})

	ctx := context.Background()
	_, err := f.Get(ctx, "doc")
	require.Error(t, err)

	v, err := f.Get(ctx, "doc")
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestFetcher_SingleflightCollapsesConcurrentMisses(t *testing.T) {
	tc := NewTiered(New[string](Config{MaxEntries: 10}, zap.NewNop()), nil, "t:", time.Minute, zap.NewNop())

	var calls atomic.Int64
	release := make(chan struct{})
	f := NewFetcher(tc, func(ctx context.Context, key string) (string, int64, error) {
		calls.Add(1)
		<-release
		return "shared", 6, nil
	})

	ctx := context.Background()
	var wg sync.WaitGroup
	results := make([]string, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := f.Get(ctx, "doc")
			assert.NoError(t, err)
			results[i] = v
		}(i)
	}

	// Give all goroutines time to reach the singleflight gate.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int64(1), calls.Load(), "concurrent misses for one key must fetch once")
	for _, v := range results {
		assert.Equal(t, "shared", v)
	}
}
