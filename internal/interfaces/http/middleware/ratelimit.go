package middleware

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"namesmith-ai-api/internal/config"
	"namesmith-ai-api/internal/interfaces/http/dto"
	apperrors "namesmith-ai-api/pkg/errors"
	"namesmith-ai-api/pkg/logger"
)

// RateLimiter 固定窗口限流器
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// RateLimit 接口级限流，按用户（无身份时按来源 IP）与路由计数。
// 与生成配额相互独立；限流器故障时放行
func RateLimit(cfg *config.Manager, limiter RateLimiter) gin.HandlerFunc {
	if limiter == nil {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		rl := cfg.Current().Security.RateLimit
		if !rl.Enabled {
			c.Next()
			return
		}
		limit := rl.RequestsPerSecond
		if limit <= 0 {
			limit = 100
		}
		// 允许短时突发
		if rl.Burst > limit {
			limit = rl.Burst
		}

		subject := UserID(c)
		if subject == "" {
			subject = "ip:" + c.ClientIP()
		}
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		key := subject + ":" + c.Request.Method + " " + route

		allowed, err := limiter.Allow(c.Request.Context(), key, limit, time.Second)
		if err != nil {
			logger.Warn(c.Request.Context(), "rate limiter unavailable, allowing request", "error", err.Error())
			c.Next()
			return
		}
		if !allowed {
			c.Header("Retry-After", strconv.Itoa(1))
			dto.AbortWithError(c, apperrors.ErrRateLimited.WithDetail("too many requests"))
			return
		}

		c.Next()
	}
}
