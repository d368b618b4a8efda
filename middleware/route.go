package middleware

import (
	midsec "dyadchat/middleware/security"

	"github.com/gin-gonic/gin"
)

// 配置选项
type RouteOpt struct {
	// WithToken 挂上 token 提取中间件
	WithToken bool
	Security  *midsec.Options
}

func (o RouteOpt) chain(handler gin.HandlerFunc) []gin.HandlerFunc {
	if o.WithToken {
		return []gin.HandlerFunc{midsec.Middleware(o.Security), handler}
	}
	return []gin.HandlerFunc{handler}
}

// 封装 GET
func GET(r gin.IRoutes, path string, handler gin.HandlerFunc, opt RouteOpt) {
	r.GET(path, opt.chain(handler)...)
}
