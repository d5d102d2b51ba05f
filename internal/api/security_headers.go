package api

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// apiContentSecurityPolicy JSON 响应不需要加载任何资源
const apiContentSecurityPolicy = "default-src 'none'; frame-ancestors 'none'"

// SecurityHeadersMiddleware 安全头中间件
// 前端页面允许同源嵌入,API 响应禁止一切资源加载
func SecurityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if isAPIPath(c.Request.URL.Path) {
			c.Header("X-Frame-Options", "DENY")
			c.Header("Content-Security-Policy", apiContentSecurityPolicy)
		} else {
			c.Header("X-Frame-Options", "SAMEORIGIN")
		}

		// 仅在 HTTPS 下发送 HSTS,包括反向代理终止 TLS 的情况
		if c.Request.TLS != nil || strings.EqualFold(c.GetHeader("X-Forwarded-Proto"), "https") {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}

func isAPIPath(path string) bool {
	return path == "/api" || strings.HasPrefix(path, "/api/")
}
