package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

var cacheTracer = otel.Tracer("redis.cache")

// scanBatch 按模式失效时每轮 SCAN 的建议条数
const scanBatch = 500

// Cache JSON 值缓存：记忆化结果与统计快照共用
type Cache struct {
	client *Client
	group  singleflight.Group
}

// NewCache 创建缓存
func NewCache(client *Client) *Cache {
	return &Cache{client: client}
}

func (c *Cache) span(ctx context.Context, op, key string) (context.Context, trace.Span) {
	return cacheTracer.Start(ctx, "cache."+op, trace.WithAttributes(attribute.String("cache.key", key)))
}

// Get 读取原始 JSON；未命中返回 redis.Nil
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, span := c.span(ctx, "Get", key)
	defer span.End()

	val, err := c.client.rdb.Get(ctx, key).Bytes()
	span.SetAttributes(attribute.Bool("cache.hit", err == nil))
	if err != nil && !IsNil(err) {
		span.RecordError(err)
	}
	return val, err
}

// Set 以 JSON 写入
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	ctx, span := c.span(ctx, "Set", key)
	defer span.End()

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	if err := c.client.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

// GetOrLoadSafe 未命中时由 loader 计算并回填。
// 同一键的并发加载只执行一次；加载不受单个调用方取消的影响
func (c *Cache) GetOrLoadSafe(ctx context.Context, key string, ttl time.Duration, loader func() (interface{}, error)) ([]byte, error) {
	ctx, span := c.span(ctx, "GetOrLoadSafe", key)
	defer span.End()

	val, err := c.client.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return val, nil
	case !IsNil(err):
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	loadCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (interface{}, error) {
		if val, err := c.client.rdb.Get(loadCtx, key).Bytes(); err == nil {
			return val, nil
		}
		data, err := loader()
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s: %w", key, err)
		}
		// 回填失败不影响本次结果
		_ = c.client.rdb.Set(loadCtx, key, raw, ttl).Err()
		return raw, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		span.SetAttributes(attribute.Bool("cache.shared", res.Shared))
		if res.Err != nil {
			span.RecordError(res.Err)
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}

// InvalidatePattern 删除匹配模式的全部键，返回删除数量
func (c *Cache) InvalidatePattern(ctx context.Context, pattern string) (int, error) {
	ctx, span := c.span(ctx, "InvalidatePattern", pattern)
	defer span.End()

	var (
		cursor  uint64
		deleted int
	)
	for {
		keys, next, err := c.client.rdb.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			span.RecordError(err)
			return deleted, err
		}
		if len(keys) > 0 {
			n, err := c.client.rdb.Unlink(ctx, keys...).Result()
			if err != nil {
				span.RecordError(err)
				return deleted, err
			}
			deleted += int(n)
		}
		if next == 0 {
			break
		}
		cursor = next
	}

	span.SetAttributes(attribute.Int("cache.invalidated_count", deleted))
	return deleted, nil
}
