package service

import (
	"context"

	"namesmith-ai-api/internal/domain/entity"
)

// UsageInput 一次模型调用的可计费与可观测数据
type UsageInput struct {
	SessionID string
	UserID    string
	ModelID   string
	Provider  string

	InputTokens  int
	OutputTokens int
	CostCents    int64
	LatencyMs    int64
	NamesCount   int
	Success      bool
	ErrorKind    entity.FailureKind
}

// UsageRecorder 记录用量（流水落库 + 预算累计 + 指标）。
// 约定：实现应为 best-effort，不应阻塞或影响生成流程。
type UsageRecorder interface {
	Record(ctx context.Context, in UsageInput) error
}
