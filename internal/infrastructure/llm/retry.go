package llm

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"namesmith-ai-api/internal/config"
	"namesmith-ai-api/internal/domain/entity"
	"namesmith-ai-api/internal/domain/service"
	"namesmith-ai-api/pkg/logger"
)

// RetryPolicy 适配器重试策略
type RetryPolicy struct {
	MaxAttempts int
	Initial     time.Duration
	Max         time.Duration
	Multiplier  float64
}

// PolicyFromConfig 从配置构建重试策略
func PolicyFromConfig(cfg config.RetryConfig) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: cfg.MaxAttempts,
		Initial:     cfg.Initial,
		Max:         cfg.Max,
		Multiplier:  cfg.Multiplier,
	}
}

func (p RetryPolicy) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if p.Initial > 0 {
		b.InitialInterval = p.Initial
	}
	if p.Max > 0 {
		b.MaxInterval = p.Max
	}
	if p.Multiplier > 1 {
		b.Multiplier = p.Multiplier
	}
	return b
}

// RetryingAdapter 有界重试；不可用与不可恢复错误不重试
type RetryingAdapter struct {
	next   service.NameGenerator
	policy RetryPolicy
}

// NewRetryingAdapter 包装适配器
func NewRetryingAdapter(next service.NameGenerator, policy RetryPolicy) *RetryingAdapter {
	return &RetryingAdapter{next: next, policy: policy}
}

// Generate 实现 NameGenerator
func (a *RetryingAdapter) Generate(ctx context.Context, req service.GenerationRequest) (*service.GenerationResult, error) {
	if a.policy.MaxAttempts <= 1 {
		return a.next.Generate(ctx, req)
	}

	attempt := 0
	op := func() (*service.GenerationResult, error) {
		attempt++
		res, err := a.next.Generate(ctx, req)
		if err == nil {
			return res, nil
		}
		ge := service.ClassifyError(req.ModelID, err)
		if ge.Kind == entity.FailureUnavailable || isPermanentError(ge.Err) || ctx.Err() != nil {
			return nil, backoff.Permanent(ge)
		}
		logger.Warn(ctx, "llm call failed, will retry",
			"model", req.ModelID,
			"attempt", attempt,
			"max_attempts", a.policy.MaxAttempts,
			"error", err.Error(),
		)
		return nil, ge
	}

	res, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(a.policy.backOff()),
		backoff.WithMaxTries(uint(a.policy.MaxAttempts)),
	)
	if err != nil {
		return nil, service.ClassifyError(req.ModelID, err)
	}
	return res, nil
}
