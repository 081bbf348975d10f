// Package repository 定义数据访问层接口
package repository

import (
	"context"
	"time"

	"namesmith-ai-api/internal/domain/entity"
)

// UsageSummary 用量汇总
type UsageSummary struct {
	Attempts     int64   `json:"attempts"`
	Successes    int64   `json:"successes"`
	Names        int64   `json:"names"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	CostCents    int64   `json:"cost_cents"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
}

// ModelUsageStats 单模型用量统计
type ModelUsageStats struct {
	ModelID      string  `json:"model_id"`
	Attempts     int64   `json:"attempts"`
	Successes    int64   `json:"successes"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
}

// UsageRepository 用量记录仓储接口（只追加）
type UsageRepository interface {
	// Create 追加一条用量记录
	Create(ctx context.Context, record *entity.UsageRecord) error

	// ListBySession 获取会话的用量记录
	ListBySession(ctx context.Context, sessionID string) ([]*entity.UsageRecord, error)

	// DeleteBySession 随会话一起删除
	DeleteBySession(ctx context.Context, sessionID string) error

	// GetTokenUsage 获取用户在指定时间范围内的 Token 使用量（input + output）
	GetTokenUsage(ctx context.Context, userID string, r TimeRange) (int64, error)

	// Summary 汇总时间范围内的用量，userID 为空时统计全部用户
	Summary(ctx context.Context, userID string, r TimeRange) (*UsageSummary, error)

	// ModelStats 按模型分组的调用统计
	ModelStats(ctx context.Context, since time.Time) ([]ModelUsageStats, error)
}
