package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
)

// acquireScript 多窗口滑动计数：先清理过期成员并检查所有窗口，全部未超限才同时写入
// KEYS: 各窗口键
// ARGV: now_ms, member, 然后每个窗口依次为 cutoff_ms, limit, window_ms
// 返回: {allowed, exceeded_index, count_1, count_2, ...}
var acquireScript = redis.NewScript(`
local now = ARGV[1]
local member = ARGV[2]
local result = {1, 0}
for i, key in ipairs(KEYS) do
  local base = 3 * i
  redis.call('ZREMRANGEBYSCORE', key, '-inf', ARGV[base])
  local count = redis.call('ZCARD', key)
  result[i + 2] = count
  if result[1] == 1 and count >= tonumber(ARGV[base + 1]) then
    result[1] = 0
    result[2] = i
  end
end
if result[1] == 1 then
  for i, key in ipairs(KEYS) do
    redis.call('ZADD', key, now, member)
    redis.call('PEXPIRE', key, ARGV[3 * i + 2])
    result[i + 2] = result[i + 2] + 1
  end
end
return result
`)

// Window 计数窗口
type Window struct {
	Name  string
	Size  time.Duration
	Limit int
}

// WindowCount 窗口内的当前计数
type WindowCount struct {
	Window
	Used int
}

// AcquireResult 计数结果；Exceeded 为首个超限窗口名
type AcquireResult struct {
	Allowed  bool
	Exceeded string
	Counts   []WindowCount
}

// Counter 基于有序集合的多窗口滑动计数器
type Counter struct {
	client *Client
	now    func() time.Time
}

// NewCounter 创建计数器
func NewCounter(client *Client) *Counter {
	return &Counter{client: client, now: time.Now}
}

// CounterKey 构建计数键 ratelimit:{subject}:action:window。
// subject 作为 hash tag，同一主体的各窗口落在同一 slot，Acquire 脚本在集群下可用
func CounterKey(subject, action, window string) string {
	return fmt.Sprintf("ratelimit:{%s}:%s:%s", subject, action, window)
}

// Acquire 原子地在所有窗口各占用一次；任一窗口已满则全部不写入
func (c *Counter) Acquire(ctx context.Context, subject, action string, windows []Window) (*AcquireResult, error) {
	ctx, span := tracer.Start(ctx, "counter.Acquire")
	span.SetAttributes(
		attribute.String("counter.subject", subject),
		attribute.String("counter.action", action),
		attribute.Int("counter.windows", len(windows)),
	)
	defer span.End()

	if len(windows) == 0 {
		return &AcquireResult{Allowed: true}, nil
	}

	now := c.now().UnixMilli()
	keys := make([]string, len(windows))
	args := make([]interface{}, 0, 2+3*len(windows))
	args = append(args, strconv.FormatInt(now, 10), fmt.Sprintf("%d-%s", now, uuid.NewString()))
	for i, w := range windows {
		keys[i] = CounterKey(subject, action, w.Name)
		args = append(args,
			strconv.FormatInt(now-w.Size.Milliseconds(), 10),
			strconv.Itoa(w.Limit),
			strconv.FormatInt(w.Size.Milliseconds(), 10),
		)
	}

	vals, err := acquireScript.Run(ctx, c.client.rdb, keys, args...).Int64Slice()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to acquire counter: %w", err)
	}
	if len(vals) != 2+len(windows) {
		return nil, fmt.Errorf("unexpected counter reply length %d", len(vals))
	}

	res := &AcquireResult{Allowed: vals[0] == 1, Counts: make([]WindowCount, len(windows))}
	for i, w := range windows {
		res.Counts[i] = WindowCount{Window: w, Used: int(vals[i+2])}
	}
	if idx := int(vals[1]); idx > 0 {
		res.Exceeded = windows[idx-1].Name
	}

	span.SetAttributes(attribute.Bool("counter.allowed", res.Allowed))
	return res, nil
}

// Usage 只读查询各窗口计数
func (c *Counter) Usage(ctx context.Context, subject, action string, windows []Window) ([]WindowCount, error) {
	ctx, span := tracer.Start(ctx, "counter.Usage")
	span.SetAttributes(attribute.String("counter.subject", subject))
	defer span.End()

	now := c.now().UnixMilli()
	pipe := c.client.rdb.Pipeline()
	cmds := make([]*redis.IntCmd, len(windows))
	for i, w := range windows {
		min := "(" + strconv.FormatInt(now-w.Size.Milliseconds(), 10)
		cmds[i] = pipe.ZCount(ctx, CounterKey(subject, action, w.Name), min, "+inf")
	}
	if _, err := pipe.Exec(ctx); err != nil && !IsNil(err) {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to read counter: %w", err)
	}

	out := make([]WindowCount, len(windows))
	for i, w := range windows {
		out[i] = WindowCount{Window: w, Used: int(cmds[i].Val())}
	}
	return out, nil
}

// Reset 清空计数
func (c *Counter) Reset(ctx context.Context, subject, action string, windows []Window) error {
	keys := make([]string, len(windows))
	for i, w := range windows {
		keys[i] = CounterKey(subject, action, w.Name)
	}
	return c.client.Del(ctx, keys...)
}

// Allow 单窗口限流，供接口级限流中间件使用；key 为完整计数键前缀
func (c *Counter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	res, err := c.Acquire(ctx, key, "http", []Window{{Name: window.String(), Size: window, Limit: limit}})
	if err != nil {
		return false, err
	}
	return res.Allowed, nil
}
