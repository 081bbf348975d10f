package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"namesmith-ai-api/internal/domain/entity"
	"namesmith-ai-api/internal/domain/repository"
)

// SessionRepository 生成会话仓储实现
type SessionRepository struct {
	client *Client
}

// NewSessionRepository 创建会话仓储
func NewSessionRepository(client *Client) *SessionRepository {
	return &SessionRepository{client: client}
}

// Create 创建会话
func (r *SessionRepository) Create(ctx context.Context, session *entity.GenerationSession) error {
	ctx, span := tracer.Start(ctx, "postgres.SessionRepository.Create")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Create(session).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetByID 根据 ID 获取会话
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*entity.GenerationSession, error) {
	ctx, span := tracer.Start(ctx, "postgres.SessionRepository.GetByID")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var session entity.GenerationSession
	if err := db.First(&session, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &session, nil
}

// Update 保存会话
func (r *SessionRepository) Update(ctx context.Context, session *entity.GenerationSession) error {
	ctx, span := tracer.Start(ctx, "postgres.SessionRepository.Update")
	defer span.End()

	// 只更新已存在的行，已删除的会话不会被迟到的快照重新写回
	db := getDB(ctx, r.client.db)
	res := db.Model(session).Select("*").Omit("created_at").Updates(session)
	if res.Error != nil {
		span.RecordError(res.Error)
		return fmt.Errorf("failed to update session: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("failed to update session %s: %w", session.ID, gorm.ErrRecordNotFound)
	}
	return nil
}

// Delete 删除会话
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "postgres.SessionRepository.Delete")
	defer span.End()

	db := getDB(ctx, r.client.db)
	if err := db.Delete(&entity.GenerationSession{}, "id = ?", id).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// ListByUser 获取用户会话列表
func (r *SessionRepository) ListByUser(ctx context.Context, userID string, filter *repository.SessionFilter, pagination repository.Pagination) (*repository.PagedResult[*entity.GenerationSession], error) {
	ctx, span := tracer.Start(ctx, "postgres.SessionRepository.ListByUser")
	defer span.End()

	db := getDB(ctx, r.client.db)
	query := db.Model(&entity.GenerationSession{}).Where("user_id = ?", userID)

	if filter != nil {
		if filter.Status != "" {
			query = query.Where("status = ?", filter.Status)
		}
		if filter.ProjectID != "" {
			query = query.Where("project_id = ?", filter.ProjectID)
		}
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count sessions: %w", err)
	}

	var sessions []*entity.GenerationSession
	if err := query.Order("created_at DESC").
		Offset(pagination.Offset()).
		Limit(pagination.Limit()).
		Find(&sessions).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	return repository.NewPagedResult(sessions, total, pagination), nil
}

type statusCount struct {
	Status entity.SessionStatus
	Count  int64
}

func toStatusMap(rows []statusCount) map[entity.SessionStatus]int64 {
	out := make(map[entity.SessionStatus]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Count
	}
	return out
}

// CountByStatus 按当前状态统计
func (r *SessionRepository) CountByStatus(ctx context.Context) (map[entity.SessionStatus]int64, error) {
	ctx, span := tracer.Start(ctx, "postgres.SessionRepository.CountByStatus")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var rows []statusCount
	if err := db.Model(&entity.GenerationSession{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count sessions by status: %w", err)
	}
	return toStatusMap(rows), nil
}

// CountFinishedSince 统计 since 之后结束的会话
func (r *SessionRepository) CountFinishedSince(ctx context.Context, since time.Time) (map[entity.SessionStatus]int64, error) {
	ctx, span := tracer.Start(ctx, "postgres.SessionRepository.CountFinishedSince")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var rows []statusCount
	if err := db.Model(&entity.GenerationSession{}).
		Select("status, COUNT(*) AS count").
		Where("completed_at IS NOT NULL AND completed_at >= ?", since.UTC()).
		Group("status").
		Scan(&rows).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to count finished sessions: %w", err)
	}
	return toStatusMap(rows), nil
}

// CountCreatedSince 统计用户 since 之后创建的会话
func (r *SessionRepository) CountCreatedSince(ctx context.Context, userID string, since time.Time) (int64, error) {
	ctx, span := tracer.Start(ctx, "postgres.SessionRepository.CountCreatedSince")
	defer span.End()

	db := getDB(ctx, r.client.db)
	var total int64
	if err := db.Model(&entity.GenerationSession{}).
		Where("user_id = ? AND created_at >= ?", userID, since.UTC()).
		Count(&total).Error; err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return total, nil
}
