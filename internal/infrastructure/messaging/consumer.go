package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"namesmith-ai-api/pkg/logger"
	"namesmith-ai-api/pkg/metrics"
	"namesmith-ai-api/pkg/tracer"
)

// MessageHandler 处理一条消息；返回错误时消息留在 PEL 等待重投
type MessageHandler func(ctx context.Context, msg *Message) error

const (
	defaultBlockTimeout  = 5 * time.Second
	defaultClaimInterval = 30 * time.Second
	defaultRetryLimit    = 3
	readBatch            = 10
	readErrorPause       = time.Second
)

// ConsumerConfig 消费者配置，零值字段取默认
type ConsumerConfig struct {
	Stream        Stream
	Group         ConsumerGroup
	ConsumerName  string
	BlockTimeout  time.Duration
	ClaimInterval time.Duration
	RetryLimit    int
	Backoff       BackoffConfig
}

func (cfg ConsumerConfig) withDefaults() ConsumerConfig {
	if cfg.Group == "" {
		cfg.Group = ConsumerGroupGenWorker
	}
	if cfg.BlockTimeout <= 0 {
		cfg.BlockTimeout = defaultBlockTimeout
	}
	if cfg.ClaimInterval <= 0 {
		cfg.ClaimInterval = defaultClaimInterval
	}
	if cfg.RetryLimit <= 0 {
		cfg.RetryLimit = defaultRetryLimit
	}
	if cfg.Backoff.Initial <= 0 {
		cfg.Backoff = DefaultBackoffConfig()
	}
	return cfg
}

// Consumer 消费者组成员。
// 读循环只处理新消息；维护循环负责到期重投、接管其他成员的滞留消息以及死信转移
type Consumer struct {
	client *redis.Client
	cfg    ConsumerConfig
	// reclaimIdle 其他成员的消息空闲超过该时长才会被接管
	reclaimIdle time.Duration

	mu       sync.RWMutex
	handlers map[string]MessageHandler
	stopCh   chan struct{}
}

// NewConsumer 创建消费者
func NewConsumer(client *redis.Client, cfg ConsumerConfig) *Consumer {
	cfg = cfg.withDefaults()
	return &Consumer{
		client:      client,
		cfg:         cfg,
		reclaimIdle: max(5*time.Minute, 2*cfg.Backoff.Max),
		handlers:    make(map[string]MessageHandler),
	}
}

// RegisterHandler 按消息类型注册处理器
func (c *Consumer) RegisterHandler(msgType string, handler MessageHandler) {
	c.mu.Lock()
	c.handlers[msgType] = handler
	c.mu.Unlock()
}

func (c *Consumer) handler(msgType string) (MessageHandler, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.handlers[msgType]
	return h, ok
}

func (c *Consumer) stream() string { return string(c.cfg.Stream) }
func (c *Consumer) group() string  { return string(c.cfg.Group) }

// EnsureGroup 创建消费者组，可重复调用
func (c *Consumer) EnsureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.stream(), c.group(), "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create group %s on %s: %w", c.group(), c.stream(), err)
	}
	return nil
}

// Start 启动读循环与维护循环
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.stopCh != nil {
		c.mu.Unlock()
		return errors.New("consumer already running")
	}
	stop := make(chan struct{})
	c.stopCh = stop
	c.mu.Unlock()

	if err := c.EnsureGroup(ctx); err != nil {
		c.Stop()
		return err
	}

	logger.Info(ctx, "consumer started", "stream", c.stream(), "group", c.group(), "consumer", c.cfg.ConsumerName)
	go c.readLoop(ctx, stop)
	go c.maintainLoop(ctx, stop)
	return nil
}

// Stop 停止循环；正在执行的处理器不会被中断
func (c *Consumer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopCh != nil {
		close(c.stopCh)
		c.stopCh = nil
	}
}

func (c *Consumer) readLoop(ctx context.Context, stop <-chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			logger.Info(ctx, "consumer stopped", "stream", c.stream())
			return
		default:
		}

		if _, err := c.Poll(ctx, readBatch); err != nil && ctx.Err() == nil {
			logger.Error(ctx, "stream read failed", err, "stream", c.stream())
			time.Sleep(readErrorPause)
		}
	}
}

// Poll 读取并处理一批新消息，返回处理条数
func (c *Consumer) Poll(ctx context.Context, count int64) (int, error) {
	res, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group(),
		Consumer: c.cfg.ConsumerName,
		Streams:  []string{c.stream(), ">"},
		Count:    count,
		Block:    c.cfg.BlockTimeout,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	handled := 0
	for _, s := range res {
		for _, entry := range s.Messages {
			c.handle(ctx, entry)
			handled++
		}
	}
	return handled, nil
}

func decode(entry redis.XMessage) (*Message, error) {
	raw, ok := entry.Values["data"].(string)
	if !ok {
		return nil, fmt.Errorf("entry %s has no data field", entry.ID)
	}
	var msg Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return nil, fmt.Errorf("entry %s: %w", entry.ID, err)
	}
	return &msg, nil
}

// handle 处理单条消息。无法解码或无人处理的消息直接确认，避免反复重投
func (c *Consumer) handle(ctx context.Context, entry redis.XMessage) {
	msg, err := decode(entry)
	if err != nil {
		logger.Error(ctx, "dropping undecodable entry", err, "stream", c.stream())
		c.settle(ctx, entry.ID, "invalid")
		return
	}

	ctx = msg.logContext(tracer.Extract(ctx, msg.Headers))
	ctx, span := tracer.Start(ctx, "messaging.Handle", trace.WithAttributes(
		attribute.String("messaging.stream", c.stream()),
		attribute.String("messaging.entry_id", entry.ID),
		attribute.String("messaging.type", msg.Type),
	))
	defer span.End()

	h, ok := c.handler(msg.Type)
	if !ok {
		logger.Warn(ctx, "no handler registered", "type", msg.Type)
		c.settle(ctx, entry.ID, "unhandled")
		return
	}

	if err := h(ctx, msg); err != nil {
		span.RecordError(err)
		logger.Error(ctx, "message handler failed", err, "message_id", msg.ID)
		metrics.RedisStreamProcessed.WithLabelValues(c.stream(), "failed").Inc()
		c.onFailure(ctx, entry.ID, msg, err)
		return
	}
	c.settle(ctx, entry.ID, "success")
}

// settle 确认消息并按结果计数
func (c *Consumer) settle(ctx context.Context, id, outcome string) {
	if err := c.client.XAck(ctx, c.stream(), c.group(), id).Err(); err != nil {
		logger.Error(ctx, "failed to ack entry", err, "entry_id", id)
	}
	metrics.RedisStreamProcessed.WithLabelValues(c.stream(), outcome).Inc()
}

// Monitor 周期上报 PEL 长度，死信积压超过阈值时告警
func (c *Consumer) Monitor(ctx context.Context, interval time.Duration, dlqThreshold int64) {
	c.mu.RLock()
	stop := c.stopCh
	c.mu.RUnlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
		}

		if summary, err := c.client.XPending(ctx, c.stream(), c.group()).Result(); err == nil {
			metrics.RedisStreamLag.WithLabelValues(c.stream(), c.group()).Set(float64(summary.Count))
		}
		dlq := c.cfg.Stream.DLQStream()
		if n, err := c.client.XLen(ctx, dlq).Result(); err == nil && n > dlqThreshold {
			logger.Warn(ctx, "dead letter backlog above threshold", "stream", dlq, "count", n)
		}
	}
}
