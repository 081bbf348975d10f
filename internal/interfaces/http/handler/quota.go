package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"namesmith-ai-api/internal/application/quota"
	"namesmith-ai-api/internal/interfaces/http/dto"
	"namesmith-ai-api/internal/interfaces/http/middleware"
	apperrors "namesmith-ai-api/pkg/errors"
	"namesmith-ai-api/pkg/logger"
)

// QuotaReader 配额与预算视图
type QuotaReader interface {
	CheckRate(ctx context.Context, userID string) ([]quota.WindowUsage, error)
	Budget(ctx context.Context) (*quota.BudgetStatus, error)
}

// TokenChecker 用户 Token 日配额
type TokenChecker interface {
	CheckDailyTokens(ctx context.Context, userID string) (used int64, max int64, err error)
}

// QuotaHandler 配额查询处理器
type QuotaHandler struct {
	gate   QuotaReader
	tokens TokenChecker
}

// NewQuotaHandler 创建配额查询处理器
func NewQuotaHandler(gate QuotaReader, tokens TokenChecker) *QuotaHandler {
	return &QuotaHandler{gate: gate, tokens: tokens}
}

// Get 当前用户的窗口用量、全局预算与 Token 用量。
// 预算读取失败不影响窗口用量的返回
// @Summary 配额查询
// @Tags Quota
// @Produce json
// @Success 200 {object} dto.Response[dto.QuotaResponse]
// @Router /v1/quota [get]
func (h *QuotaHandler) Get(c *gin.Context) {
	ctx := c.Request.Context()
	userID := middleware.UserID(c)

	windows, err := h.gate.CheckRate(ctx, userID)
	if err != nil {
		fail(c, err)
		return
	}
	resp := dto.QuotaResponse{UserID: userID, Windows: windows}

	if budget, err := h.gate.Budget(ctx); err != nil {
		logger.Warn(ctx, "budget unavailable", "error", err.Error())
	} else {
		resp.Budget = budget
	}

	if h.tokens != nil {
		used, max, err := h.tokens.CheckDailyTokens(ctx, userID)
		if err != nil && !apperrors.Is(err, apperrors.ErrRateLimited) {
			fail(c, err)
			return
		}
		resp.TokensUsedToday, resp.TokensPerDay = used, max
	}

	dto.Success(c, resp)
}
