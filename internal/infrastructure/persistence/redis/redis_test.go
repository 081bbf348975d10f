package redis

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewClientFromRedis(rdb), mr
}

func TestCacheSetGet(t *testing.T) {
	client, _ := newTestClient(t)
	cache := NewCache(client)
	ctx := context.Background()

	_, err := cache.Get(ctx, "missing")
	assert.True(t, IsNil(err))

	require.NoError(t, cache.Set(ctx, "k", map[string]int{"a": 1}, time.Minute))
	val, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(val))
}

func TestCacheGetOrLoadSafeLoadsOnce(t *testing.T) {
	client, _ := newTestClient(t)
	cache := NewCache(client)
	ctx := context.Background()

	var loads int32
	loader := func() (interface{}, error) {
		atomic.AddInt32(&loads, 1)
		return []string{"x"}, nil
	}

	for i := 0; i < 3; i++ {
		val, err := cache.GetOrLoadSafe(ctx, "stats", time.Minute, loader)
		require.NoError(t, err)
		assert.JSONEq(t, `["x"]`, string(val))
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&loads))
}

func TestCacheInvalidatePattern(t *testing.T) {
	client, _ := newTestClient(t)
	cache := NewCache(client)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "namegen:memo:a", 1, time.Minute))
	require.NoError(t, cache.Set(ctx, "namegen:memo:b", 1, time.Minute))
	require.NoError(t, cache.Set(ctx, "other", 1, time.Minute))

	n, err := cache.InvalidatePattern(ctx, "namegen:memo:*")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	_, err = cache.Get(ctx, "other")
	assert.NoError(t, err)
}

var quotaWindows = []Window{
	{Name: "hourly", Size: time.Hour, Limit: 2},
	{Name: "daily", Size: 24 * time.Hour, Limit: 3},
}

func fixedCounter(client *Client, at *time.Time) *Counter {
	c := NewCounter(client)
	c.now = func() time.Time { return *at }
	return c
}

func TestCounterAcquireAllOrNothing(t *testing.T) {
	client, mr := newTestClient(t)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c := fixedCounter(client, &now)
	ctx := context.Background()

	for i := 1; i <= 2; i++ {
		res, err := c.Acquire(ctx, "u1", "generate", quotaWindows)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, i, res.Counts[0].Used)
		now = now.Add(time.Second)
	}

	res, err := c.Acquire(ctx, "u1", "generate", quotaWindows)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, "hourly", res.Exceeded)
	assert.Equal(t, 2, res.Counts[1].Used, "rejected acquire must not touch the daily window")

	// 一小时后小时窗口释放，日窗口仍然累计
	now = now.Add(time.Hour)
	res, err = c.Acquire(ctx, "u1", "generate", quotaWindows)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 1, res.Counts[0].Used)
	assert.Equal(t, 3, res.Counts[1].Used)

	res, err = c.Acquire(ctx, "u1", "generate", quotaWindows)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, "daily", res.Exceeded)

	assert.True(t, mr.Exists(CounterKey("u1", "generate", "hourly")))
}

// hashTag 集群按 {} 内的内容计算 slot
func hashTag(key string) string {
	start := strings.IndexByte(key, '{')
	if start < 0 {
		return key
	}
	end := strings.IndexByte(key[start+1:], '}')
	if end <= 0 {
		return key
	}
	return key[start+1 : start+1+end]
}

func TestCounterKeysShareClusterSlot(t *testing.T) {
	assert.Equal(t, "ratelimit:{u1}:generate:hourly", CounterKey("u1", "generate", "hourly"))
	assert.Equal(t, "u1", hashTag(CounterKey("u1", "generate", "daily")))

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "spend", hashTag(DayKey(now)))
	assert.Equal(t, hashTag(DayKey(now)), hashTag(MonthKey(now)))
}

func TestCounterConcurrentAcquireNeverOvershoots(t *testing.T) {
	client, _ := newTestClient(t)
	c := NewCounter(client)
	ctx := context.Background()
	windows := []Window{{Name: "hourly", Size: time.Hour, Limit: 5}}

	var allowed int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := c.Acquire(ctx, "u2", "generate", windows)
			if err == nil && res.Allowed {
				atomic.AddInt32(&allowed, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(5), allowed)
}

func TestCounterUsageIsReadOnly(t *testing.T) {
	client, _ := newTestClient(t)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c := fixedCounter(client, &now)
	ctx := context.Background()

	_, err := c.Acquire(ctx, "u1", "generate", quotaWindows)
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		usage, err := c.Usage(ctx, "u1", "generate", quotaWindows)
		require.NoError(t, err)
		assert.Equal(t, 1, usage[0].Used)
		assert.Equal(t, 1, usage[1].Used)
	}

	require.NoError(t, c.Reset(ctx, "u1", "generate", quotaWindows))
	usage, err := c.Usage(ctx, "u1", "generate", quotaWindows)
	require.NoError(t, err)
	assert.Zero(t, usage[0].Used)
}

func TestSpendCounter(t *testing.T) {
	client, mr := newTestClient(t)
	s := NewSpendCounter(client)
	s.now = func() time.Time { return time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	cur, err := s.Current(ctx)
	require.NoError(t, err)
	assert.Zero(t, cur.DayCents)

	_, err = s.Add(ctx, 40)
	require.NoError(t, err)
	spend, err := s.Add(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(42), spend.DayCents)
	assert.Equal(t, int64(42), spend.MonthCents)
	assert.Equal(t, "2026-03-01", spend.Day)

	assert.True(t, mr.Exists("budget:{spend}:2026-03-01"))
	assert.True(t, mr.Exists("budget:{spend}:2026-03"))
	assert.Greater(t, mr.TTL("budget:{spend}:2026-03-01"), time.Duration(0))

	cur, err = s.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(42), cur.MonthCents)

	first, err := s.MarkAlerted(ctx, "daily", spend.Day)
	require.NoError(t, err)
	again, err := s.MarkAlerted(ctx, "daily", spend.Day)
	require.NoError(t, err)
	assert.True(t, first)
	assert.False(t, again)
}

func TestCancelBusDeliversSessionID(t *testing.T) {
	client, _ := newTestClient(t)
	bus := NewCancelBus(client)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan string, 1)
	closer, err := bus.Subscribe(ctx, func(_ context.Context, id string) { got <- id })
	require.NoError(t, err)
	defer closer.Close()

	n, err := bus.Publish(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	select {
	case id := <-got:
		assert.Equal(t, "sess-1", id)
	case <-time.After(2 * time.Second):
		t.Fatal("cancel broadcast not delivered")
	}
}
