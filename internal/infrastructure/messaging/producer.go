package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"namesmith-ai-api/pkg/metrics"
	"namesmith-ai-api/pkg/tracer"
)

const defaultMaxLen = 100000

// Producer 向流追加消息，流长度近似裁剪到 maxLen
type Producer struct {
	client *redis.Client
	maxLen int64
}

func NewProducer(client *redis.Client, maxLen int64) *Producer {
	if maxLen <= 0 {
		maxLen = defaultMaxLen
	}
	return &Producer{client: client, maxLen: maxLen}
}

// Publish 追加一条消息并返回流内 ID；当前 trace 写入信封头
func (p *Producer) Publish(ctx context.Context, stream Stream, msg *Message) (string, error) {
	ctx, span := tracer.Start(ctx, "messaging.Publish", trace.WithAttributes(
		attribute.String("messaging.stream", string(stream)),
		attribute.String("messaging.type", msg.Type),
	))
	defer span.End()

	if msg.Headers == nil {
		msg.Headers = map[string]string{}
	}
	tracer.Inject(ctx, msg.Headers)

	body, err := json.Marshal(msg)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to encode message %s: %w", msg.ID, err)
	}

	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: string(stream),
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]any{"data": string(body)},
	}).Result()
	if err != nil {
		span.RecordError(err)
		metrics.RedisStreamProcessed.WithLabelValues(string(stream), "publish_failed").Inc()
		return "", fmt.Errorf("failed to append to %s: %w", stream, err)
	}

	metrics.RedisStreamProcessed.WithLabelValues(string(stream), "published").Inc()
	span.SetAttributes(attribute.String("messaging.entry_id", id))
	return id, nil
}

// PublishDispatch 把会话交给 worker 执行
func (p *Producer) PublishDispatch(ctx context.Context, d *DispatchMessage) (string, error) {
	msg, err := NewMessage(d.SessionID, TypeSessionDispatch, d)
	if err != nil {
		return "", err
	}
	msg.WithHeader(HeaderSessionID, d.SessionID).
		WithHeader(HeaderUserID, d.UserID).
		WithHeader(HeaderProjectID, d.ProjectID).
		WithHeader(HeaderRequestID, d.RequestID)
	return p.Publish(ctx, StreamDispatch, msg)
}

// PublishBudgetAlert 发布预算告警
func (p *Producer) PublishBudgetAlert(ctx context.Context, a *BudgetAlertMessage) (string, error) {
	msg, err := NewMessage(uuid.NewString(), TypeBudgetAlert, a)
	if err != nil {
		return "", err
	}
	msg.WithHeader(HeaderWindow, a.Window)
	return p.Publish(ctx, StreamBudgetAlert, msg)
}
