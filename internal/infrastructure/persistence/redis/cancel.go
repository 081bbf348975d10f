package redis

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel/attribute"

	"namesmith-ai-api/pkg/logger"
)

// CancelChannel 跨进程取消广播频道
const CancelChannel = "namegen:cancel"

// CancelBus 通过 Pub/Sub 广播会话取消
type CancelBus struct {
	client  *Client
	channel string
}

// NewCancelBus 创建取消广播
func NewCancelBus(client *Client) *CancelBus {
	return &CancelBus{client: client, channel: CancelChannel}
}

// Publish 广播取消请求，返回收到消息的订阅者数量
func (b *CancelBus) Publish(ctx context.Context, sessionID string) (int64, error) {
	ctx, span := tracer.Start(ctx, "cancel.Publish")
	span.SetAttributes(attribute.String("session.id", sessionID))
	defer span.End()

	n, err := b.client.rdb.Publish(ctx, b.channel, sessionID).Result()
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to publish cancel: %w", err)
	}
	return n, nil
}

// Subscribe 订阅取消请求，直到 ctx 结束或返回的 Closer 被关闭
func (b *CancelBus) Subscribe(ctx context.Context, handler func(ctx context.Context, sessionID string)) (io.Closer, error) {
	ps := b.client.rdb.Subscribe(ctx, b.channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("failed to subscribe %s: %w", b.channel, err)
	}

	ch := ps.Channel()
	go func() {
		for {
			select {
			case <-ctx.Done():
				_ = ps.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				logger.Debug(ctx, "cancel broadcast received", "session_id", msg.Payload)
				handler(ctx, msg.Payload)
			}
		}
	}()

	return ps, nil
}
