// Package router 提供 HTTP 路由配置
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"namesmith-ai-api/internal/config"
	"namesmith-ai-api/internal/interfaces/http/handler"
	"namesmith-ai-api/internal/interfaces/http/middleware"
)

// Handlers 路由所需的处理器
type Handlers struct {
	Health    *handler.HealthHandler
	Session   *handler.SessionHandler
	Catalog   *handler.CatalogHandler
	Quota     *handler.QuotaHandler
	Dashboard *handler.DashboardHandler
}

// Router HTTP 路由器
type Router struct {
	engine   *gin.Engine
	cfg      *config.Manager
	handlers Handlers
	limiter  middleware.RateLimiter
}

// New 创建路由器；limiter 为 nil 时不做接口限流
func New(cfg *config.Manager, handlers Handlers, limiter middleware.RateLimiter) *Router {
	if cfg.Current().App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := &Router{
		engine:   gin.New(),
		cfg:      cfg,
		handlers: handlers,
		limiter:  limiter,
	}
	r.setupMiddleware()
	r.setupRoutes()
	return r
}

// Engine 返回 Gin Engine
func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func (r *Router) setupMiddleware() {
	cfg := r.cfg.Current()

	r.engine.Use(middleware.Recovery())
	r.engine.Use(middleware.RequestID())
	r.engine.Use(middleware.CORS(cfg.Security.CORS))

	if cfg.Observability.Tracing.Enabled {
		r.engine.Use(middleware.Trace(cfg.App.Name))
		r.engine.Use(middleware.TraceContext())
	}
	if cfg.Observability.Metrics.Enabled {
		r.engine.Use(middleware.Metrics())
	}
	r.engine.Use(middleware.AccessLog(middleware.AccessLogSkipPaths...))
}

func (r *Router) setupRoutes() {
	cfg := r.cfg.Current()

	if h := r.handlers.Health; h != nil {
		r.engine.GET("/health", h.Health)
		r.engine.GET("/ready", h.Ready)
		r.engine.GET("/live", h.Live)
	}

	if cfg.Observability.Metrics.Enabled {
		path := cfg.Observability.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.engine.GET(path, gin.WrapH(promhttp.Handler()))
	}

	v1 := r.engine.Group("/v1")
	v1.Use(middleware.Identity())
	v1.Use(middleware.RateLimit(r.cfg, r.limiter))
	RegisterV1Routes(v1, r.handlers)
}
