// Package handler 提供 HTTP 请求处理器
package handler

import (
	"github.com/gin-gonic/gin"

	"namesmith-ai-api/internal/interfaces/http/dto"
	apperrors "namesmith-ai-api/pkg/errors"
	"namesmith-ai-api/pkg/logger"
)

// fail 写出错误响应；非预期错误记录日志
func fail(c *gin.Context, err error) {
	appErr := apperrors.AsAppError(err)
	if appErr.HTTPStatus >= 500 || !apperrors.IsAppError(err) {
		logger.Error(c.Request.Context(), "request failed", err,
			"path", c.FullPath(),
			"code", string(appErr.Code),
		)
	}
	_ = c.Error(err)
	dto.Error(c, err)
}

// bindJSON 绑定请求体，失败时写出 400
func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		dto.Error(c, apperrors.ErrInvalidParam.WithDetail(err.Error()))
		return false
	}
	return true
}
