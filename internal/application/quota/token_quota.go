package quota

import (
	"context"
	"fmt"
	"time"

	"namesmith-ai-api/internal/config"
	"namesmith-ai-api/internal/domain/repository"
	apperrors "namesmith-ai-api/pkg/errors"
)

// TokenQuotaExceededError 用户 Token 日配额已耗尽
type TokenQuotaExceededError struct {
	UserID string
	Max    int64
	Used   int64
}

func (e TokenQuotaExceededError) Error() string {
	return fmt.Sprintf("token quota exceeded: user=%s used=%d max=%d", e.UserID, e.Used, e.Max)
}

// TokenQuota 按用量记录检查用户当日 Token 配额
type TokenQuota struct {
	usageRepo repository.UsageRepository
	cfg       *config.Manager
	now       func() time.Time
}

// NewTokenQuota 创建 Token 配额检查器
func NewTokenQuota(usageRepo repository.UsageRepository, cfg *config.Manager) *TokenQuota {
	return &TokenQuota{usageRepo: usageRepo, cfg: cfg, now: time.Now}
}

// CheckDailyTokens 返回 used/max；max 为 0 表示不限制。超限时返回 RateLimited
func (q *TokenQuota) CheckDailyTokens(ctx context.Context, userID string) (used int64, max int64, err error) {
	max = q.cfg.Current().Quota.MaxTokensPerDay
	if max <= 0 {
		return 0, 0, nil
	}

	used, err = q.usageRepo.GetTokenUsage(ctx, userID, repository.Day(q.now()))
	if err != nil {
		return 0, max, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to read token usage")
	}

	if used >= max {
		exceeded := TokenQuotaExceededError{UserID: userID, Max: max, Used: used}
		return used, max, apperrors.ErrRateLimited.WithDetail(exceeded.Error()).WithError(exceeded)
	}
	return used, max, nil
}
