package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"namesmith-ai-api/pkg/logger"
)

// AccessLogSkipPaths 不记录访问日志的路径
var AccessLogSkipPaths = []string{
	"/health",
	"/ready",
	"/live",
	"/metrics",
}

// AccessLog 访问日志中间件；5xx 记为 warn
func AccessLog(skipPaths ...string) gin.HandlerFunc {
	skip := make(map[string]bool, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = true
	}

	return func(c *gin.Context) {
		if skip[c.Request.URL.Path] {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"route", c.FullPath(),
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
			"ip", c.ClientIP(),
			"session_id", c.Param("sid"),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, "errors", c.Errors.String())
		}

		if status >= 500 {
			logger.Warn(c.Request.Context(), "http request failed", fields...)
			return
		}
		logger.Info(c.Request.Context(), "http request", fields...)
	}
}
