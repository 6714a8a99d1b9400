package redis

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketplace-core/pkg/config"
)

type memoryCmdable struct {
	data    map[string]string
	counts  map[string]int64
	expires map[string]time.Duration
	failOn  string
}

func newMemoryCmdable() *memoryCmdable {
	return &memoryCmdable{
		data:    map[string]string{},
		counts:  map[string]int64{},
		expires: map[string]time.Duration{},
	}
}

func (m *memoryCmdable) Ping(context.Context) *redis.StatusCmd {
	return redis.NewStatusResult("PONG", nil)
}

func (m *memoryCmdable) Set(_ context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	m.data[key] = fmt.Sprint(value)
	return redis.NewStatusResult("OK", nil)
}

func (m *memoryCmdable) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *memoryCmdable) SetNX(_ context.Context, key string, value any, _ time.Duration) *redis.BoolCmd {
	if _, exists := m.data[key]; exists {
		return redis.NewBoolResult(false, nil)
	}
	m.data[key] = fmt.Sprint(value)
	return redis.NewBoolResult(true, nil)
}

func (m *memoryCmdable) Incr(_ context.Context, key string) *redis.IntCmd {
	if m.failOn == "incr" {
		return redis.NewIntResult(0, errors.New("connection reset"))
	}
	m.counts[key]++
	return redis.NewIntResult(m.counts[key], nil)
}

func (m *memoryCmdable) ExpireNX(_ context.Context, key string, ttl time.Duration) *redis.BoolCmd {
	if _, set := m.expires[key]; set {
		return redis.NewBoolResult(false, nil)
	}
	m.expires[key] = ttl
	return redis.NewBoolResult(true, nil)
}

func (m *memoryCmdable) Del(_ context.Context, keys ...string) *redis.IntCmd {
	for _, key := range keys {
		delete(m.data, key)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func TestFixedWindowAllow(t *testing.T) {
	ctx := context.Background()
	mem := newMemoryCmdable()
	client := &Client{store: mem}

	for want := int64(1); want <= 2; want++ {
		allowed, count, err := client.FixedWindowAllow(ctx, "checkout:user-1", 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed)
		assert.Equal(t, want, count)
	}
	allowed, count, err := client.FixedWindowAllow(ctx, "checkout:user-1", 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, int64(3), count)
	assert.Equal(t, map[string]time.Duration{"mv:rate_limit:checkout:user-1": time.Minute}, mem.expires)

	allowed, _, err = client.FixedWindowAllow(ctx, "checkout:user-2", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed, "windows are per scope")
}

func TestFixedWindowAllowSurfacesErrors(t *testing.T) {
	mem := newMemoryCmdable()
	mem.failOn = "incr"
	_, _, err := (&Client{store: mem}).FixedWindowAllow(context.Background(), "s", 1, time.Second)
	assert.ErrorContains(t, err, "connection reset")

	_, _, err = (&Client{}).FixedWindowAllow(context.Background(), "s", 1, time.Second)
	assert.ErrorIs(t, err, errNotConnected)
}

func TestCachedMapsMissingKey(t *testing.T) {
	ctx := context.Background()
	client := &Client{store: newMemoryCmdable()}
	key := client.CacheKey("shipping", "151", "153")

	_, err := client.Cached(ctx, key)
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, client.Set(ctx, key, "quote", 10*time.Minute))
	value, err := client.Cached(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "quote", value)

	require.NoError(t, client.Del(ctx, key))
	_, err = client.Get(ctx, key)
	assert.ErrorIs(t, err, redis.Nil)
}

func TestKeyFamilies(t *testing.T) {
	client := &Client{}
	assert.Equal(t, "mv:idempotency:midtrans-notification:MV-1:settlement:trx", client.IdempotencyKey("midtrans-notification", "MV-1:settlement:trx"))
	assert.Equal(t, "mv:rate_limit:checkout", client.RateLimitKey("checkout"))
	assert.Equal(t, "mv:cache:shipping:151:jne", client.CacheKey("shipping", "151", " ", "jne"))
	assert.Equal(t, "mv:lock:cron:staging", client.LockKey("cron:staging"))

	staging := &Client{prefix: "mv-staging"}
	assert.Equal(t, "mv-staging:lock:cron", staging.LockKey("cron"))
}

func TestOptionsFromConfig(t *testing.T) {
	_, err := optionsFromConfig(config.RedisConfig{})
	assert.Error(t, err)

	opts, err := optionsFromConfig(config.RedisConfig{
		URL:         "redis://:pw@cache:6380/2",
		DB:          5,
		PoolSize:    7,
		DialTimeout: 3 * time.Second,
	})
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, "pw", opts.Password)
	assert.Equal(t, 2, opts.DB, "the url database wins")
	assert.Equal(t, 7, opts.PoolSize)
	assert.Equal(t, 3*time.Second, opts.DialTimeout)

	opts, err = optionsFromConfig(config.RedisConfig{Address: "localhost:6379", DB: 1})
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opts.Addr)
	assert.Equal(t, 1, opts.DB)
}
