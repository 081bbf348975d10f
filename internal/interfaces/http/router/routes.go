package router

import (
	"github.com/gin-gonic/gin"
)

// RegisterV1Routes 注册 v1 版本路由
func RegisterV1Routes(v1 *gin.RouterGroup, h Handlers) {
	// 生成会话
	if h.Session != nil {
		sessions := v1.Group("/sessions")
		{
			sessions.POST("", h.Session.Start)
			sessions.GET("", h.Session.List)
			sessions.GET("/:sid", h.Session.Get)
			sessions.GET("/:sid/stream", h.Session.Stream)
			sessions.POST("/:sid/cancel", h.Session.Cancel)
			sessions.DELETE("/:sid", h.Session.Delete)
		}
	}

	// 模型目录与报价
	if h.Catalog != nil {
		v1.GET("/models", h.Catalog.ListModels)
		v1.POST("/quotes", h.Catalog.Quote)
	}

	if h.Quota != nil {
		v1.GET("/quota", h.Quota.Get)
	}

	// 运行统计
	if h.Dashboard != nil {
		dashboard := v1.Group("/dashboard")
		{
			dashboard.GET("/snapshot", h.Dashboard.Snapshot)
			dashboard.GET("/models", h.Dashboard.Models)
			dashboard.GET("/usage", h.Dashboard.Usage)
		}
	}
}
