package dto

import (
	"namesmith-ai-api/internal/application/quota"
	"namesmith-ai-api/internal/domain/entity"
)

// ModelResponse 可选模型
type ModelResponse struct {
	ID                string  `json:"id"`
	Provider          string  `json:"provider"`
	DisplayName       string  `json:"display_name"`
	SupportsStreaming bool    `json:"supports_streaming"`
	InputCostPer1K    float64 `json:"input_cost_per_1k"`
	OutputCostPer1K   float64 `json:"output_cost_per_1k"`
	Available         bool    `json:"available"`
	Reason            string  `json:"reason,omitempty"`
}

// ToModelResponse 描述符转响应；reason 为空表示可用
func ToModelResponse(d entity.ModelDescriptor, reason string) ModelResponse {
	return ModelResponse{
		ID:                d.ID,
		Provider:          d.Provider,
		DisplayName:       d.DisplayName,
		SupportsStreaming: d.SupportsStreaming,
		InputCostPer1K:    d.InputCostPer1K,
		OutputCostPer1K:   d.OutputCostPer1K,
		Available:         reason == "",
		Reason:            reason,
	}
}

// QuoteRequest 费用报价请求
type QuoteRequest struct {
	Prompt string   `json:"prompt" binding:"required"`
	Models []string `json:"models" binding:"required,min=1"`
}

// QuotaResponse 当前用户配额视图
type QuotaResponse struct {
	UserID          string              `json:"user_id"`
	Windows         []quota.WindowUsage `json:"windows"`
	Budget          *quota.BudgetStatus `json:"budget,omitempty"`
	TokensUsedToday int64               `json:"tokens_used_today"`
	TokensPerDay    int64               `json:"tokens_per_day"`
}
