package api

import (
	"github.com/gin-gonic/gin"
)

// hstsValue 只在 HTTPS 请求上下发
const hstsValue = "max-age=31536000; includeSubDomains"

// SecurityHeadersMiddleware 安全头中间件
// 接口只返回 JSON 与导出文件, 因此 CSP 全部禁止
func SecurityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		// 评分与合格名单不允许被中间代理缓存
		h.Set("Cache-Control", "no-store")

		if c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https" {
			h.Set("Strict-Transport-Security", hstsValue)
		}

		c.Next()
	}
}
