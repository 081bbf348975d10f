package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

const (
	dayKeyTTL   = 48 * time.Hour
	monthKeyTTL = 32 * 24 * time.Hour
)

// Spend 当前日、月累计花费（分）
type Spend struct {
	DayCents   int64
	MonthCents int64
	Day        string
	Month      string
}

// SpendCounter 全局花费计数器，按 UTC 自然日与自然月分桶
type SpendCounter struct {
	client *Client
	now    func() time.Time
}

// NewSpendCounter 创建花费计数器
func NewSpendCounter(client *Client) *SpendCounter {
	return &SpendCounter{client: client, now: time.Now}
}

// spendKeyPrefix 日、月键共用 hash tag，事务与 MGET 在集群下不跨 slot
const spendKeyPrefix = "budget:{spend}:"

// DayKey budget:{spend}:yyyy-mm-dd
func DayKey(t time.Time) string {
	return spendKeyPrefix + t.UTC().Format("2006-01-02")
}

// MonthKey budget:{spend}:yyyy-mm
func MonthKey(t time.Time) string {
	return spendKeyPrefix + t.UTC().Format("2006-01")
}

// Add 累加花费并返回累加后的数值
func (s *SpendCounter) Add(ctx context.Context, cents int64) (*Spend, error) {
	ctx, span := tracer.Start(ctx, "budget.Add")
	span.SetAttributes(attribute.Int64("budget.cents", cents))
	defer span.End()

	now := s.now()
	dayKey, monthKey := DayKey(now), MonthKey(now)

	pipe := s.client.rdb.TxPipeline()
	day := pipe.IncrBy(ctx, dayKey, cents)
	pipe.Expire(ctx, dayKey, dayKeyTTL)
	month := pipe.IncrBy(ctx, monthKey, cents)
	pipe.Expire(ctx, monthKey, monthKeyTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to add spend: %w", err)
	}

	return &Spend{
		DayCents:   day.Val(),
		MonthCents: month.Val(),
		Day:        now.UTC().Format("2006-01-02"),
		Month:      now.UTC().Format("2006-01"),
	}, nil
}

// Current 读取当前花费；键不存在视为 0
func (s *SpendCounter) Current(ctx context.Context) (*Spend, error) {
	ctx, span := tracer.Start(ctx, "budget.Current")
	defer span.End()

	now := s.now()
	vals, err := s.client.rdb.MGet(ctx, DayKey(now), MonthKey(now)).Result()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to read spend: %w", err)
	}

	spend := &Spend{Day: now.UTC().Format("2006-01-02"), Month: now.UTC().Format("2006-01")}
	spend.DayCents = parseCents(vals[0])
	spend.MonthCents = parseCents(vals[1])
	return spend, nil
}

// MarkAlerted 每个窗口周期只告警一次；首次标记返回 true
func (s *SpendCounter) MarkAlerted(ctx context.Context, window, period string) (bool, error) {
	key := fmt.Sprintf("budget:alert:%s:%s", window, period)
	ttl := dayKeyTTL
	if window == "monthly" {
		ttl = monthKeyTTL
	}
	return s.client.rdb.SetNX(ctx, key, 1, ttl).Result()
}

func parseCents(v interface{}) int64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
