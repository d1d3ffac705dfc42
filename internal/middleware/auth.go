// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"net/http"
	"strings"

	"doccatalog-go/internal/authtoken"
	"doccatalog-go/internal/session"

	"github.com/gin-gonic/gin"
)

const bearerScopeKey = "bearer_scopes"

// BearerOrSession 放行携带有效会话 cookie 的请求，或携带有效 Bearer token 的请求，
// 兼容脚本化/API 调用方在没有浏览器 cookie 的情况下访问受保护端点，保留了原
// JWT 鉴权链路作为会话 cookie 之外的第二认证通道。
func BearerOrSession(tokens *authtoken.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if payload, ok := session.FromContext(c); ok && payload.Auth {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		const bearerPrefix = "Bearer "
		if authHeader == "" || !strings.HasPrefix(authHeader, bearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "缺少有效的会话或授权头"})
			return
		}

		tokenString := strings.TrimPrefix(authHeader, bearerPrefix)
		claims, err := tokens.Verify(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "无效或已过期的 token"})
			return
		}
		c.Set(bearerScopeKey, claims.Scopes)
		c.Next()
	}
}
