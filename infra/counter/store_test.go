package counter

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	store, _ := newRedisStoreWithServer(t)
	return store
}

func newRedisStoreWithServer(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(rdb, "test:"), mr
}

func stores(t *testing.T) map[string]Store {
	return map[string]Store{
		"memory": NewMemoryStore(),
		"redis":  newRedisStore(t),
	}
}

func TestStore_TakeExactlyCapacity(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, capacity := range []int{1, 2, 5, 30} {
				key := name + "-bucket-" + strconv.Itoa(capacity)
				for i := 0; i < capacity; i++ {
					d, err := store.Take(ctx, key, capacity, time.Minute)
					require.NoError(t, err)
					require.True(t, d.Allowed, "call %d of %d should pass", i+1, capacity)
				}
				d, err := store.Take(ctx, key, capacity, time.Minute)
				require.NoError(t, err)
				assert.False(t, d.Allowed)
				assert.Positive(t, d.RetryAfter)
			}
		})
	}
}

func TestMemoryStore_Refill(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	store := NewMemoryStore().WithClock(func() time.Time { return now })
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		_, err := store.Take(ctx, "k", 6, time.Minute)
		require.NoError(t, err)
	}
	d, _ := store.Take(ctx, "k", 6, time.Minute)
	require.False(t, d.Allowed)
	assert.Equal(t, 10*time.Second, d.RetryAfter)

	// one token every 10s at 6 per minute
	now = now.Add(10 * time.Second)
	d, _ = store.Take(ctx, "k", 6, time.Minute)
	assert.True(t, d.Allowed)
	d, _ = store.Take(ctx, "k", 6, time.Minute)
	assert.False(t, d.Allowed)
}

func TestRedisStore_RefillUsesServerClock(t *testing.T) {
	store, mr := newRedisStoreWithServer(t)
	now := time.Unix(1_700_000_000, 0)
	mr.SetTime(now)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		_, err := store.Take(ctx, "k", 6, time.Minute)
		require.NoError(t, err)
	}
	d, err := store.Take(ctx, "k", 6, time.Minute)
	require.NoError(t, err)
	require.False(t, d.Allowed)
	assert.Equal(t, 10*time.Second, d.RetryAfter)

	mr.SetTime(now.Add(10 * time.Second))
	d, err = store.Take(ctx, "k", 6, time.Minute)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	d, _ = store.Take(ctx, "k", 6, time.Minute)
	assert.False(t, d.Allowed)
}

func TestStore_SetNXSingleWinner(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			var (
				wins int32
				wg   sync.WaitGroup
			)
			for i := 0; i < 50; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					ok, err := store.SetNX(context.Background(), "notified:gs-1:log-line", time.Hour)
					assert.NoError(t, err)
					if ok {
						atomic.AddInt32(&wins, 1)
					}
				}()
			}
			wg.Wait()
			assert.Equal(t, int32(1), wins)
		})
	}
}

func TestMemoryStore_SetNXExpires(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	store := NewMemoryStore().WithClock(func() time.Time { return now })
	ctx := context.Background()

	ok, _ := store.SetNX(ctx, "k", time.Hour)
	require.True(t, ok)
	ok, _ = store.SetNX(ctx, "k", time.Hour)
	require.False(t, ok)

	now = now.Add(time.Hour + time.Second)
	ok, _ = store.SetNX(ctx, "k", time.Hour)
	assert.True(t, ok)
}

func TestStore_InvalidCapacity(t *testing.T) {
	_, err := NewMemoryStore().Take(context.Background(), "k", 0, time.Minute)
	assert.Error(t, err)
}
