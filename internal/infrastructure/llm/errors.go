package llm

import (
	"context"
	"errors"
	"regexp"
	"strings"
)

// permanentMarkers 上游错误文本中出现即不再重试：凭证、权限、内容策略
var permanentMarkers = []string{
	"unauthorized",
	"permission",
	"invalid api key", "invalid_api_key",
	"content policy", "safety",
}

var (
	authStatus       = regexp.MustCompile(`\b40[13]\b`)
	badRequestStatus = regexp.MustCompile(`\b400\b`)
)

// isPermanentError 重试也不会成功的错误。
// 400 通常是请求本身有问题，但部分提供商用 400 表示限流
func isPermanentError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	text := strings.ToLower(err.Error())
	for _, m := range permanentMarkers {
		if strings.Contains(text, m) {
			return true
		}
	}
	if authStatus.MatchString(text) {
		return true
	}
	return badRequestStatus.MatchString(text) && !strings.Contains(text, "rate")
}
