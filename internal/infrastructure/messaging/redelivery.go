package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"namesmith-ai-api/pkg/logger"
	"namesmith-ai-api/pkg/metrics"
)

// pendingScan 每轮检查的 PEL 条数
const pendingScan = 20

var errRetriesExhausted = errors.New("message exceeded max retries")

// deadLetter 死信流中的记录
type deadLetter struct {
	Stream   string   `json:"original_stream"`
	Message  *Message `json:"data"`
	Error    string   `json:"error"`
	FailedAt int64    `json:"failed_at"`
}

func (c *Consumer) maintainLoop(ctx context.Context, stop <-chan struct{}) {
	tick := time.NewTicker(max(c.cfg.Backoff.Initial, 100*time.Millisecond))
	defer tick.Stop()
	lastReclaim := time.Time{}

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-tick.C:
		}

		c.redeliverDue(ctx)
		if time.Since(lastReclaim) >= c.cfg.ClaimInterval {
			c.reclaimStale(ctx)
			lastReclaim = time.Now()
		}
	}
}

// onFailure 投递次数耗尽时转入死信，否则留在 PEL 等待退避后重投
func (c *Consumer) onFailure(ctx context.Context, id string, msg *Message, cause error) {
	attempts := c.deliveries(ctx, id)
	if attempts < c.cfg.RetryLimit {
		logger.Info(ctx, "message left pending for retry", "message_id", msg.ID, "deliveries", attempts)
		return
	}
	logger.Warn(ctx, "message dead-lettered", "message_id", msg.ID, "deliveries", attempts)
	c.deadLetter(ctx, id, msg, cause)
}

// deliveries XPENDING 记录的投递次数
func (c *Consumer) deliveries(ctx context.Context, id string) int {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: c.stream(),
		Group:  c.group(),
		Start:  id,
		End:    id,
		Count:  1,
	}).Result()
	if err != nil || len(pending) == 0 {
		return 0
	}
	return int(pending[0].RetryCount)
}

// deadLetter 写入死信流并确认原消息；写入失败时保留原消息
func (c *Consumer) deadLetter(ctx context.Context, id string, msg *Message, cause error) {
	body, _ := json.Marshal(deadLetter{
		Stream:   c.stream(),
		Message:  msg,
		Error:    cause.Error(),
		FailedAt: time.Now().Unix(),
	})
	err := c.client.XAdd(ctx, &redis.XAddArgs{
		Stream: c.cfg.Stream.DLQStream(),
		Values: map[string]any{"data": string(body)},
	}).Err()
	if err != nil {
		logger.Error(ctx, "failed to write dead letter", err, "entry_id", id)
		return
	}
	c.settle(ctx, id, "dead_lettered")
}

func (c *Consumer) pending(ctx context.Context, owner string) []redis.XPendingExt {
	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream:   c.stream(),
		Group:    c.group(),
		Start:    "-",
		End:      "+",
		Count:    pendingScan,
		Consumer: owner,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		logger.Error(ctx, "failed to list pending entries", err, "stream", c.stream())
	}
	return pending
}

// redeliverDue 重投本成员名下退避已到期的消息
func (c *Consumer) redeliverDue(ctx context.Context) {
	for _, p := range c.pending(ctx, c.cfg.ConsumerName) {
		if int(p.RetryCount) >= c.cfg.RetryLimit {
			c.claim(ctx, p.ID, 0, true)
			continue
		}
		if wait := c.cfg.Backoff.CalculateBackoff(int(p.RetryCount)); p.Idle >= wait {
			c.claim(ctx, p.ID, wait, false)
		}
	}
}

// reclaimStale 接管其他成员长时间未确认的消息
func (c *Consumer) reclaimStale(ctx context.Context) {
	for _, p := range c.pending(ctx, "") {
		if p.Consumer == c.cfg.ConsumerName || p.Idle < c.reclaimIdle {
			continue
		}
		c.claim(ctx, p.ID, c.reclaimIdle, int(p.RetryCount) >= c.cfg.RetryLimit)
	}
}

// claim XCLAIM 后重新处理；exhausted 时直接转入死信
func (c *Consumer) claim(ctx context.Context, id string, minIdle time.Duration, exhausted bool) {
	entries, err := c.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   c.stream(),
		Group:    c.group(),
		Consumer: c.cfg.ConsumerName,
		MinIdle:  minIdle,
		Messages: []string{id},
	}).Result()
	if err != nil {
		logger.Error(ctx, "failed to claim entry", err, "entry_id", id)
		return
	}

	for _, entry := range entries {
		if !exhausted {
			c.handle(ctx, entry)
			continue
		}
		msg, err := decode(entry)
		if err != nil {
			c.settle(ctx, entry.ID, "invalid")
			continue
		}
		c.deadLetter(ctx, entry.ID, msg, errRetriesExhausted)
	}
	metrics.RedisStreamClaimed.WithLabelValues(c.stream()).Add(float64(len(entries)))
}
