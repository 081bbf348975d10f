package postgres

import (
	"context"
	"fmt"
	"time"

	"namesmith-ai-api/internal/domain/entity"
	"namesmith-ai-api/internal/domain/repository"
)

// UsageRepository 用量记录仓储实现
type UsageRepository struct {
	client *Client
}

// NewUsageRepository 创建用量记录仓储
func NewUsageRepository(client *Client) *UsageRepository {
	return &UsageRepository{client: client}
}

// Create 追加用量记录
func (r *UsageRepository) Create(ctx context.Context, record *entity.UsageRecord) error {
	ctx, span := tracer.Start(ctx, "postgres.UsageRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(record).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create usage record: %w", err)
	}
	return nil
}

// ListBySession 获取会话的用量记录
func (r *UsageRepository) ListBySession(ctx context.Context, sessionID string) ([]*entity.UsageRecord, error) {
	ctx, span := tracer.Start(ctx, "postgres.UsageRepository.ListBySession")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var records []*entity.UsageRecord
	if err := db.Where("session_id = ?", sessionID).Order("created_at ASC").Find(&records).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list usage records: %w", err)
	}
	return records, nil
}

// DeleteBySession 删除会话的用量记录
func (r *UsageRepository) DeleteBySession(ctx context.Context, sessionID string) error {
	ctx, span := tracer.Start(ctx, "postgres.UsageRepository.DeleteBySession")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Where("session_id = ?", sessionID).Delete(&entity.UsageRecord{}).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete usage records: %w", err)
	}
	return nil
}

// GetTokenUsage 获取用户在时间范围内的 Token 用量
func (r *UsageRepository) GetTokenUsage(ctx context.Context, userID string, tr repository.TimeRange) (int64, error) {
	ctx, span := tracer.Start(ctx, "postgres.UsageRepository.GetTokenUsage")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var total int64
	if err := db.Model(&entity.UsageRecord{}).
		Select("COALESCE(SUM(input_tokens + output_tokens), 0)").
		Where("user_id = ? AND created_at >= ? AND created_at < ?", userID, tr.Start.UTC(), tr.End.UTC()).
		Scan(&total).Error; err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to sum token usage: %w", err)
	}
	return total, nil
}

// Summary 汇总时间范围内的用量
func (r *UsageRepository) Summary(ctx context.Context, userID string, tr repository.TimeRange) (*repository.UsageSummary, error) {
	ctx, span := tracer.Start(ctx, "postgres.UsageRepository.Summary")
	defer span.End()

	db := getDB(ctx, r.client.db)
	query := db.Model(&entity.UsageRecord{}).
		Select(`COUNT(*) AS attempts,
			COALESCE(SUM(CASE WHEN success = ? THEN 1 ELSE 0 END), 0) AS successes,
			COALESCE(SUM(names_count), 0) AS names,
			COALESCE(SUM(input_tokens), 0) AS input_tokens,
			COALESCE(SUM(output_tokens), 0) AS output_tokens,
			COALESCE(SUM(cost_cents), 0) AS cost_cents,
			COALESCE(AVG(latency_ms), 0) AS avg_latency_ms`, true).
		Where("created_at >= ? AND created_at < ?", tr.Start.UTC(), tr.End.UTC())
	if userID != "" {
		query = query.Where("user_id = ?", userID)
	}

	var summary repository.UsageSummary
	if err := query.Scan(&summary).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to summarize usage: %w", err)
	}
	return &summary, nil
}

// ModelStats 按模型分组统计 since 之后的调用
func (r *UsageRepository) ModelStats(ctx context.Context, since time.Time) ([]repository.ModelUsageStats, error) {
	ctx, span := tracer.Start(ctx, "postgres.UsageRepository.ModelStats")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var rows []repository.ModelUsageStats
	if err := db.Model(&entity.UsageRecord{}).
		Select(`model_id,
			COUNT(*) AS attempts,
			COALESCE(SUM(CASE WHEN success = ? THEN 1 ELSE 0 END), 0) AS successes,
			COALESCE(AVG(latency_ms), 0) AS avg_latency_ms`, true).
		Where("created_at >= ?", since.UTC()).
		Group("model_id").
		Order("model_id").
		Scan(&rows).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to compute model stats: %w", err)
	}
	return rows, nil
}
