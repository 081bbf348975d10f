package quota

import (
	"context"
	"fmt"
	"strings"

	"namesmith-ai-api/internal/domain/entity"
	"namesmith-ai-api/internal/domain/repository"
	"namesmith-ai-api/internal/domain/service"
	"namesmith-ai-api/pkg/logger"
	"namesmith-ai-api/pkg/metrics"
)

// UsageRecorder 写入用量流水、累计花费并上报指标；任何失败只记日志
type UsageRecorder struct {
	usageRepo repository.UsageRepository
	gate      *Gate
}

// NewUsageRecorder 创建用量记录器；gate 为 nil 时不累计花费
func NewUsageRecorder(usageRepo repository.UsageRepository, gate *Gate) *UsageRecorder {
	return &UsageRecorder{usageRepo: usageRepo, gate: gate}
}

// Record 实现 service.UsageRecorder
func (r *UsageRecorder) Record(ctx context.Context, in service.UsageInput) error {
	if r == nil {
		return nil
	}
	if in.InputTokens < 0 || in.OutputTokens < 0 {
		return fmt.Errorf("invalid token usage")
	}

	provider := strings.TrimSpace(in.Provider)
	model := strings.TrimSpace(in.ModelID)

	status := "success"
	if !in.Success {
		status = string(in.ErrorKind)
	}
	metrics.LLMCallTotal.WithLabelValues(provider, model, status).Inc()
	if in.InputTokens > 0 {
		metrics.LLMTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(in.InputTokens))
	}
	if in.OutputTokens > 0 {
		metrics.LLMTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(in.OutputTokens))
	}
	if in.CostCents > 0 {
		metrics.LLMCostCents.WithLabelValues(provider, model).Add(float64(in.CostCents))
	}
	if in.Success && in.NamesCount > 0 {
		metrics.GenerationNamesTotal.WithLabelValues(model).Add(float64(in.NamesCount))
	}

	if r.usageRepo != nil {
		rec := entity.NewUsageRecord(in.SessionID, in.UserID, model, provider)
		rec.InputTokens = in.InputTokens
		rec.OutputTokens = in.OutputTokens
		rec.CostCents = in.CostCents
		rec.LatencyMs = in.LatencyMs
		rec.Success = in.Success
		rec.NamesCount = in.NamesCount
		rec.ErrorKind = in.ErrorKind
		if err := r.usageRepo.Create(ctx, rec); err != nil {
			logger.Error(ctx, "failed to write usage record", err, "session_id", in.SessionID, "model", model)
		}
	}

	if r.gate != nil {
		if err := r.gate.RecordSpend(ctx, in.CostCents); err != nil {
			logger.Error(ctx, "failed to record spend", err, "session_id", in.SessionID, "cents", in.CostCents)
		}
	}
	return nil
}
