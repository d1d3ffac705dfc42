// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"net/http"

	"doccatalog-go/internal/session"

	"github.com/gin-gonic/gin"
)

// AdminAuthMiddleware 检查请求是否携带已认证的会话。
// 单共享密码模型下没有独立的管理员角色，admin 分组复用与受保护分组
// 相同的会话认证结果，此中间件必须在 session.Middleware 之后使用。
func AdminAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		payload, ok := session.FromContext(c)
		if !ok || !payload.Auth {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "认证信息缺失或无效"})
			return
		}
		c.Next()
	}
}
