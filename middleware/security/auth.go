package security

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// context key
// 升级前拿到的 token 放在这里，ws 处理器据此做预认证
const (
	CtxTokenKey = "dyad.token"
)

type Options struct {
	// 读取哪个请求头
	HeaderToken               string // 默认 "X-Dyad-Token"
	QueryParam                string // 默认 "token"，浏览器 WebSocket 无法自定义请求头
	EnableAuthorizationBearer bool   // 默认 true
}

func DefaultOptions() *Options {
	return &Options{
		HeaderToken:               "X-Dyad-Token",
		QueryParam:                "token",
		EnableAuthorizationBearer: true,
	}
}

// Middleware 只提取 token，不拦截：没带 token 的连接仍可在连接内发 auth 帧
func Middleware(opts *Options) gin.HandlerFunc {
	if opts == nil {
		opts = DefaultOptions()
	}
	return func(c *gin.Context) {
		if token := extract(c, opts); token != "" {
			c.Set(CtxTokenKey, token)
		}
	}
}

func extract(c *gin.Context, opts *Options) string {
	if opts.HeaderToken != "" {
		if token := strings.TrimSpace(c.GetHeader(opts.HeaderToken)); token != "" {
			return token
		}
	}
	// 兼容 Authorization: Bearer xxx
	if opts.EnableAuthorizationBearer {
		if authz := strings.TrimSpace(c.GetHeader("Authorization")); authz != "" {
			if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
				return strings.TrimSpace(authz[len("bearer "):])
			}
		}
	}
	if opts.QueryParam != "" {
		return strings.TrimSpace(c.Query(opts.QueryParam))
	}
	return ""
}

// TokenFrom 取 Middleware 放进去的 token，没有则为空
func TokenFrom(c *gin.Context) string {
	return c.GetString(CtxTokenKey)
}
