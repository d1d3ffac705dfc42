package handler

import (
	"net/http"

	"doccatalog-go/internal/ai"
	"doccatalog-go/internal/broker"
	"doccatalog-go/internal/repository"

	"github.com/gin-gonic/gin"
)

// AdminHandler 负责处理管理面板相关的只读统计请求，采纳自
// original_source/api/dashboard.py 的分析面板但去除了其组织/用户维度。
type AdminHandler struct {
	repo    repository.DocumentRepository
	broker  broker.Broker
	gateway *ai.Gateway
	queue   string
}

// NewAdminHandler 创建一个新的 AdminHandler 实例。
func NewAdminHandler(repo repository.DocumentRepository, b broker.Broker, gateway *ai.Gateway, queue string) *AdminHandler {
	return &AdminHandler{repo: repo, broker: b, gateway: gateway, queue: queue}
}

// Stats 返回按状态分组的文档计数与队列深度。
func (h *AdminHandler) Stats(c *gin.Context) {
	statuses := []string{"PENDING", "QUEUED", "PROCESSING", "COMPLETED", "FAILED"}
	byStatus := make(map[string]int64, len(statuses))
	for _, status := range statuses {
		_, total, err := h.repo.QueryDocuments(repository.DocumentFilter{Status: status}, repository.SortCreatedAt, true, 1, 1)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": "统计文档状态失败"})
			return
		}
		byStatus[status] = total
	}

	depth, err := h.broker.QueueDepth(c.Request.Context(), h.queue)
	if err != nil {
		depth = -1
	}
	brokerUp, latencyMs := h.broker.Health(c.Request.Context())

	c.JSON(http.StatusOK, gin.H{
		"code": http.StatusOK,
		"data": gin.H{
			"documents_by_status": byStatus,
			"queue_depth":         depth,
			"broker_healthy":      brokerUp,
			"broker_latency_ms":   latencyMs,
			"provider_circuits":   h.gateway.CircuitStates(),
		},
	})
}
