package dto

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"namesmith-ai-api/internal/domain/repository"
)

// BindPage ?page=&page_size=，缺失或非数字时交给 NewPagination 取默认
func BindPage(c *gin.Context) repository.Pagination {
	return repository.NewPagination(queryInt(c, "page"), queryInt(c, "page_size"))
}

// BindSessionID 路径参数 :sid
func BindSessionID(c *gin.Context) string {
	return c.Param("sid")
}

func queryInt(c *gin.Context, key string) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return 0
	}
	return n
}
