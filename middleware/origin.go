package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
)

// Origin 校验 WebSocket 握手的 Origin 头；allowed 为空或含 "*" 时放行所有来源。
// 没有 Origin 头的请求（非浏览器客户端）放行。
func Origin(path string, allowed []string) gin.HandlerFunc {
	allowed = lo.FilterMap(allowed, func(o string, _ int) (string, bool) {
		o = strings.ToLower(strings.TrimRight(strings.TrimSpace(o), "/"))
		return o, o != ""
	})
	open := len(allowed) == 0 || lo.Contains(allowed, "*")

	return func(c *gin.Context) {
		if open || c.Request.Method != http.MethodGet || c.Request.URL.Path != path {
			return
		}
		origin := strings.ToLower(strings.TrimRight(c.GetHeader("Origin"), "/"))
		if origin != "" && !lo.Contains(allowed, origin) {
			c.AbortWithStatus(http.StatusForbidden)
		}
	}
}
