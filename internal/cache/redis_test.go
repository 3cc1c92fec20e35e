package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisCache(mr *miniredis.Miniredis, maxRetries int) *RedisCache {
	return NewRedisCacheFromClient(NewRedisClient(&CacheConfig{Addr: mr.Addr(), MaxRetries: maxRetries}))
}

func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	cache := newRedisCache(mr, -1)
	t.Cleanup(func() { cache.client.Close() })
	return cache, mr
}

func TestDefaultCacheConfig(t *testing.T) {
	config := DefaultCacheConfig()

	assert.Equal(t, "localhost:6379", config.Addr)
	assert.Equal(t, 10, config.PoolSize)
	assert.Equal(t, 3, config.MaxRetries)
	assert.Equal(t, 5*time.Second, config.DialTimeout)
	assert.Equal(t, 3*time.Second, config.ReadTimeout)
}

func TestNewRedisClient_NilConfigUsesDefaults(t *testing.T) {
	client := NewRedisClient(nil)
	defer client.Close()

	assert.Equal(t, "localhost:6379", client.Options().Addr)
}

func TestRedisCache_StoresTasksAsJSON(t *testing.T) {
	cache, mr := setupTestRedis(t)

	require.NoError(t, cache.Set("task:1", cachedTask{ID: 1, Title: "Ship release"}, time.Minute))

	raw, err := mr.Get(KeyPrefix + "task:1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":1,"title":"Ship release"}`, raw)
	assert.Equal(t, time.Minute, mr.TTL(KeyPrefix+"task:1"))

	var got cachedTask
	require.NoError(t, cache.Get("task:1", &got))
	assert.Equal(t, "Ship release", got.Title)
}

func TestRedisCache_MissAndExpiry(t *testing.T) {
	cache, mr := setupTestRedis(t)

	var got cachedTask
	assert.Equal(t, ErrCacheMiss, cache.Get("task:404", &got))

	require.NoError(t, cache.Set("task:2", cachedTask{ID: 2}, time.Second))
	mr.FastForward(2 * time.Second)
	assert.Equal(t, ErrCacheMiss, cache.Get("task:2", &got))
}

func TestRedisCache_RejectsBadValues(t *testing.T) {
	cache, mr := setupTestRedis(t)

	assert.Error(t, cache.Set("task:3", make(chan int), time.Minute))

	require.NoError(t, mr.Set(KeyPrefix+"task:3", "not-json"))
	var got cachedTask
	err := cache.Get("task:3", &got)
	require.Error(t, err)
	assert.NotEqual(t, ErrCacheMiss, err)
}

func TestRedisCache_DeleteAndPattern(t *testing.T) {
	cache, mr := setupTestRedis(t)

	for _, key := range []string{"task:1", "task:2", "tasks:all"} {
		require.NoError(t, cache.Set(key, cachedTask{Title: key}, time.Minute))
	}
	require.NoError(t, mr.Set("task:1", "outside the cache namespace"))

	require.NoError(t, cache.Delete("tasks:all"))
	assert.False(t, mr.Exists(KeyPrefix+"tasks:all"))

	require.NoError(t, cache.DeletePattern("task:*"))
	for _, key := range []string{"task:1", "task:2"} {
		assert.False(t, mr.Exists(KeyPrefix+key), key)
	}
	assert.True(t, mr.Exists("task:1"), "keys without the prefix are left alone")
}

func TestRedisCache_HealthAndStats(t *testing.T) {
	cache, mr := setupTestRedis(t)

	require.NoError(t, cache.Set("task:1", cachedTask{ID: 1}, time.Minute))
	require.NoError(t, cache.Health(context.Background()))

	stats := cache.Stats()
	assert.Contains(t, stats, "pool_total")
	assert.Equal(t, 1, stats["keys"])

	mr.Close()
	assert.True(t, errors.Is(cache.Health(context.Background()), ErrCacheDown))
	assert.NotContains(t, cache.Stats(), "keys")
}

func TestRedisCache_ClosedClientFailsWrites(t *testing.T) {
	cache, _ := setupTestRedis(t)

	require.NoError(t, cache.client.Close())
	assert.Error(t, cache.Set("task:1", cachedTask{}, time.Minute))
}

func BenchmarkRedisCache_GetTask(b *testing.B) {
	mr := miniredis.NewMiniRedis()
	if err := mr.Start(); err != nil {
		b.Fatalf("failed to start miniredis: %v", err)
	}
	defer mr.Close()

	cache := newRedisCache(mr, 0)
	if err := cache.Set("task:1", cachedTask{ID: 1, Title: "bench"}, time.Minute); err != nil {
		b.Fatalf("failed to seed cache: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		var got cachedTask
		if err := cache.Get("task:1", &got); err != nil {
			b.Fatalf("failed to read cache: %v", err)
		}
	}
}
