package dto

import (
	"time"

	"namesmith-ai-api/internal/domain/entity"
)

// StartSessionRequest 创建生成会话请求
type StartSessionRequest struct {
	Prompt       string         `json:"prompt" binding:"required"`
	Models       []string       `json:"models"`
	Mode         string         `json:"mode"`
	DeepThinking bool           `json:"deep_thinking"`
	ProjectID    string         `json:"project_id"`
	Parameters   map[string]any `json:"parameters"`
}

// StartSessionResponse 创建生成会话响应
type StartSessionResponse struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
}

// CancelSessionResponse 取消会话响应
type CancelSessionResponse struct {
	SessionID string `json:"session_id"`
	Cancelled bool   `json:"cancelled"`
}

// SessionSummary 会话列表项
type SessionSummary struct {
	SessionID       string                `json:"session_id"`
	ProjectID       string                `json:"project_id,omitempty"`
	Status          entity.SessionStatus  `json:"status"`
	Prompt          string                `json:"prompt"`
	Mode            entity.GenerationMode `json:"mode"`
	RequestedModels []string              `json:"requested_models"`
	TotalNames      int                   `json:"total_names"`
	TotalCostCents  int64                 `json:"total_cost_cents"`
	CreatedAt       time.Time             `json:"created_at"`
	CompletedAt     *time.Time            `json:"completed_at,omitempty"`
}

// ToSessionSummary 实体转列表项
func ToSessionSummary(s *entity.GenerationSession) SessionSummary {
	return SessionSummary{
		SessionID:       s.ID,
		ProjectID:       s.ProjectID,
		Status:          s.Status,
		Prompt:          s.Prompt,
		Mode:            s.Mode,
		RequestedModels: s.RequestedModels,
		TotalNames:      s.TotalNames(),
		TotalCostCents:  s.TotalCostCents(),
		CreatedAt:       s.CreatedAt,
		CompletedAt:     s.CompletedAt,
	}
}

// ToSessionSummaries 批量转换
func ToSessionSummaries(items []*entity.GenerationSession) []SessionSummary {
	out := make([]SessionSummary, 0, len(items))
	for _, s := range items {
		out = append(out, ToSessionSummary(s))
	}
	return out
}
