package handler

import (
	"net/http"

	"doccatalog-go/internal/session"

	"github.com/gin-gonic/gin"
)

// HealthHandler 负责暴露进程与会话存储的健康检查端点。
type HealthHandler struct {
	sessions *session.Store
}

// NewHealthHandler 创建一个新的 HealthHandler 实例。
func NewHealthHandler(sessions *session.Store) *HealthHandler {
	return &HealthHandler{sessions: sessions}
}

// Health 是最简单的存活探针，供负载均衡器/编排系统使用。
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// Session 报告会话存储的后端可达性、加密自检结果以及是否处于内存降级模式。
func (h *HealthHandler) Session(c *gin.Context) {
	backendUp, encryptionOk := h.sessions.Health(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"backend_up":    backendUp,
		"encryption_ok": encryptionOk,
		"fallback":      h.sessions.InFallback(),
	})
}
