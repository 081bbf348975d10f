// Package repository 定义数据访问层接口
package repository

import (
	"context"
	"time"

	"namesmith-ai-api/internal/domain/entity"
)

// SessionFilter 会话过滤条件
type SessionFilter struct {
	Status    entity.SessionStatus
	ProjectID string
}

// SessionRepository 生成会话仓储接口
type SessionRepository interface {
	// Create 创建会话
	Create(ctx context.Context, session *entity.GenerationSession) error

	// GetByID 根据 ID 获取会话，不存在时返回 nil, nil
	GetByID(ctx context.Context, id string) (*entity.GenerationSession, error)

	// Update 保存会话当前状态
	Update(ctx context.Context, session *entity.GenerationSession) error

	// Delete 删除会话
	Delete(ctx context.Context, id string) error

	// ListByUser 获取用户的会话列表
	ListByUser(ctx context.Context, userID string, filter *SessionFilter, pagination Pagination) (*PagedResult[*entity.GenerationSession], error)

	// CountByStatus 按当前状态统计会话数量
	CountByStatus(ctx context.Context) (map[entity.SessionStatus]int64, error)

	// CountFinishedSince 统计某时间之后结束的会话，按状态分组
	CountFinishedSince(ctx context.Context, since time.Time) (map[entity.SessionStatus]int64, error)

	// CountCreatedSince 统计用户在某时间之后创建的会话数
	CountCreatedSince(ctx context.Context, userID string, since time.Time) (int64, error)
}
