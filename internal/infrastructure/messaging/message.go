// Package messaging 基于 Redis Streams 的会话派发与预算告警通道
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"namesmith-ai-api/pkg/logger"
)

// Stream 流名称
type Stream string

const (
	StreamDispatch    Stream = "stream:namegen:dispatch"
	StreamBudgetAlert Stream = "stream:namegen:alerts"
)

// DLQStream 死信流名称
func (s Stream) DLQStream() string {
	return "dlq:" + string(s)
}

// ConsumerGroup 消费者组名称
type ConsumerGroup string

const ConsumerGroupGenWorker ConsumerGroup = "cg-gen-worker"

const (
	TypeSessionDispatch = "session_dispatch"
	TypeBudgetAlert     = "budget_alert"
)

// 信封头；trace 传播使用的 traceparent 等键由 tracer 写入同一个 map
const (
	HeaderRequestID = "request_id"
	HeaderUserID    = "user_id"
	HeaderProjectID = "project_id"
	HeaderSessionID = "session_id"
	HeaderWindow    = "window"
)

// headerLogKeys 消费时写回日志上下文的信封头
var headerLogKeys = map[string]logger.ContextKey{
	HeaderRequestID: logger.RequestIDKey,
	HeaderUserID:    logger.UserIDKey,
	HeaderProjectID: logger.ProjectIDKey,
	HeaderSessionID: logger.SessionIDKey,
}

// Message 流上传输的信封；XADD 时整体序列化进 data 字段
type Message struct {
	ID          string            `json:"id"`
	Type        string            `json:"type"`
	Payload     json.RawMessage   `json:"payload"`
	Headers     map[string]string `json:"headers,omitempty"`
	PublishedAt time.Time         `json:"published_at"`
}

// NewMessage 封装载荷
func NewMessage(id, msgType string, payload any) (*Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", msgType, err)
	}
	return &Message{
		ID:          id,
		Type:        msgType,
		Payload:     raw,
		Headers:     map[string]string{},
		PublishedAt: time.Now().UTC(),
	}, nil
}

// WithHeader 设置信封头，空值跳过
func (m *Message) WithHeader(key, value string) *Message {
	if value != "" {
		if m.Headers == nil {
			m.Headers = map[string]string{}
		}
		m.Headers[key] = value
	}
	return m
}

// Header 读取信封头
func (m *Message) Header(key string) string {
	return m.Headers[key]
}

// UnmarshalPayload 解析载荷
func (m *Message) UnmarshalPayload(v any) error {
	return json.Unmarshal(m.Payload, v)
}

// logContext 把信封头中的身份信息带进日志上下文
func (m *Message) logContext(ctx context.Context) context.Context {
	for header, key := range headerLogKeys {
		if v := m.Header(header); v != "" {
			ctx = logger.WithContext(ctx, key, v)
		}
	}
	return ctx
}

// DispatchMessage 会话派发载荷；worker 据此加载并执行会话
type DispatchMessage struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	ProjectID string `json:"project_id,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	TraceID   string `json:"trace_id,omitempty"`
}

// BudgetAlertMessage 预算越过告警阈值
type BudgetAlertMessage struct {
	Window     string  `json:"window"`
	Period     string  `json:"period"`
	SpentCents int64   `json:"spent_cents"`
	LimitCents int64   `json:"limit_cents"`
	Ratio      float64 `json:"ratio"`
}

// BackoffConfig 失败消息的重投间隔
type BackoffConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{Initial: time.Second, Max: time.Minute, Multiplier: 2}
}

// CalculateBackoff 已投递 attempts 次后，下一次重投前至少空闲多久
func (c BackoffConfig) CalculateBackoff(attempts int) time.Duration {
	wait := c.Initial
	for ; attempts > 0 && wait < c.Max; attempts-- {
		wait = time.Duration(float64(wait) * c.Multiplier)
	}
	return min(wait, c.Max)
}
