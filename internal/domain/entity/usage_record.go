// Package entity 定义领域实体
package entity

import (
	"time"

	"github.com/google/uuid"
)

// UsageRecord 每个 (会话, 模型) 一次实际调用的用量记录，只追加不修改
type UsageRecord struct {
	ID           string      `json:"id" gorm:"type:varchar(36);primaryKey"`
	SessionID    string      `json:"session_id" gorm:"type:varchar(36);index;not null"`
	UserID       string      `json:"user_id" gorm:"type:varchar(64);index;not null"`
	ModelID      string      `json:"model_id" gorm:"type:varchar(64);index;not null"`
	Provider     string      `json:"provider" gorm:"type:varchar(32);not null"`
	InputTokens  int         `json:"input_tokens" gorm:"not null;default:0"`
	OutputTokens int         `json:"output_tokens" gorm:"not null;default:0"`
	CostCents    int64       `json:"cost_cents" gorm:"not null;default:0"`
	LatencyMs    int64       `json:"latency_ms" gorm:"not null;default:0"`
	Success      bool        `json:"success" gorm:"not null"`
	NamesCount   int         `json:"names_count" gorm:"not null;default:0"`
	ErrorKind    FailureKind `json:"error_kind,omitempty" gorm:"type:varchar(32)"`
	CreatedAt    time.Time   `json:"created_at" gorm:"index"`
}

func (UsageRecord) TableName() string {
	return "usage_records"
}

// NewUsageRecord 创建用量记录
func NewUsageRecord(sessionID, userID, modelID, provider string) *UsageRecord {
	return &UsageRecord{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		UserID:    userID,
		ModelID:   modelID,
		Provider:  provider,
		CreatedAt: time.Now().UTC(),
	}
}
