package llm

import (
	"context"
	"encoding/json"
	"time"

	"namesmith-ai-api/internal/application/prompt"
	"namesmith-ai-api/internal/domain/service"
	"namesmith-ai-api/pkg/logger"
	"namesmith-ai-api/pkg/metrics"
)

// MemoStore 记忆化结果存储（缓存协作方）
type MemoStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

type memoEntry struct {
	Names        []string `json:"names"`
	InputTokens  int      `json:"input_tokens"`
	OutputTokens int      `json:"output_tokens"`
	LatencyMs    int64    `json:"latency_ms"`
}

// MemoizingAdapter 对相同 (模型, 规范化提示词, 风格, 深度思考) 复用历史结果
// 缓存读写失败只降级为实时调用
type MemoizingAdapter struct {
	next  service.NameGenerator
	store MemoStore
	ttl   time.Duration
}

// NewMemoizingAdapter 包装适配器
func NewMemoizingAdapter(next service.NameGenerator, store MemoStore, ttl time.Duration) *MemoizingAdapter {
	return &MemoizingAdapter{next: next, store: store, ttl: ttl}
}

// Generate 实现 NameGenerator
func (a *MemoizingAdapter) Generate(ctx context.Context, req service.GenerationRequest) (*service.GenerationResult, error) {
	key := prompt.CacheKey(req.ModelID, req.BasePrompt, req.Mode, req.DeepThinking)

	if data, err := a.store.Get(ctx, key); err == nil {
		var entry memoEntry
		if json.Unmarshal(data, &entry) == nil && len(entry.Names) > 0 {
			metrics.LLMMemoHits.WithLabelValues(req.ModelID).Inc()
			names := entry.Names
			if req.MaxNames > 0 && len(names) > req.MaxNames {
				names = names[:req.MaxNames]
			}
			return &service.GenerationResult{
				Names:        names,
				InputTokens:  entry.InputTokens,
				OutputTokens: entry.OutputTokens,
				Memoized:     true,
				Latency:      time.Duration(entry.LatencyMs) * time.Millisecond,
			}, nil
		}
	}

	start := time.Now()
	res, err := a.next.Generate(ctx, req)
	if err != nil {
		return nil, err
	}

	entry := memoEntry{
		Names:        res.Names,
		InputTokens:  res.InputTokens,
		OutputTokens: res.OutputTokens,
		LatencyMs:    time.Since(start).Milliseconds(),
	}
	if err := a.store.Set(ctx, key, entry, a.ttl); err != nil {
		logger.Warn(ctx, "failed to memoize generation result", "model", req.ModelID, "error", err.Error())
	}
	return res, nil
}
