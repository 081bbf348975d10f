package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"namesmith-ai-api/internal/application/monitoring"
	"namesmith-ai-api/internal/interfaces/http/dto"
	"namesmith-ai-api/internal/interfaces/http/middleware"
)

// StatsReader 运行统计
type StatsReader interface {
	Snapshot(ctx context.Context) (*monitoring.Snapshot, error)
	ModelHealth(ctx context.Context) ([]monitoring.ModelHealth, error)
	UserStats(ctx context.Context, userID string) (*monitoring.UserStats, error)
}

// DashboardHandler 运行统计处理器
type DashboardHandler struct {
	stats StatsReader
}

// NewDashboardHandler 创建运行统计处理器
func NewDashboardHandler(stats StatsReader) *DashboardHandler {
	return &DashboardHandler{stats: stats}
}

// Snapshot 系统运行快照
// @Summary 运行快照
// @Tags Dashboard
// @Produce json
// @Success 200 {object} dto.Response[monitoring.Snapshot]
// @Router /v1/dashboard/snapshot [get]
func (h *DashboardHandler) Snapshot(c *gin.Context) {
	snap, err := h.stats.Snapshot(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	dto.Success(c, snap)
}

// Models 各模型健康度
// @Summary 模型健康度
// @Tags Dashboard
// @Produce json
// @Success 200 {object} dto.Response[[]monitoring.ModelHealth]
// @Router /v1/dashboard/models [get]
func (h *DashboardHandler) Models(c *gin.Context) {
	health, err := h.stats.ModelHealth(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	dto.Success(c, health)
}

// Usage 当前用户用量
func (h *DashboardHandler) Usage(c *gin.Context) {
	stats, err := h.stats.UserStats(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	dto.Success(c, stats)
}
