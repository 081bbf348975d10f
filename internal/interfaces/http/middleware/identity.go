package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"namesmith-ai-api/internal/interfaces/http/dto"
	apperrors "namesmith-ai-api/pkg/errors"
	"namesmith-ai-api/pkg/logger"
)

const (
	// UserIDHeader 上游网关注入的用户标识
	UserIDHeader = "X-User-ID"
	// ProjectIDHeader 可选的项目标识
	ProjectIDHeader = "X-Project-ID"

	ctxUserID    = "user_id"
	ctxProjectID = "project_id"

	maxIdentityLength = 64
)

// Identity 从请求头读取调用方身份。鉴权由上游完成，这里只要求身份存在
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(UserIDHeader))
		if userID == "" {
			dto.AbortWithError(c, apperrors.ErrUnauthorized.WithDetail("missing "+UserIDHeader+" header"))
			return
		}
		projectID := strings.TrimSpace(c.GetHeader(ProjectIDHeader))
		if len(userID) > maxIdentityLength || len(projectID) > maxIdentityLength {
			dto.AbortWithError(c, apperrors.ErrInvalidParam.WithDetail("identity header too long"))
			return
		}

		c.Set(ctxUserID, userID)
		ctx := logger.WithContext(c.Request.Context(), logger.UserIDKey, userID)
		if projectID != "" {
			c.Set(ctxProjectID, projectID)
			ctx = logger.WithContext(ctx, logger.ProjectIDKey, projectID)
		}
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// UserID 当前请求的用户 ID
func UserID(c *gin.Context) string {
	return c.GetString(ctxUserID)
}

// ProjectID 当前请求的项目 ID，可能为空
func ProjectID(c *gin.Context) string {
	return c.GetString(ctxProjectID)
}
