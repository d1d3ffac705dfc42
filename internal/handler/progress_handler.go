package handler

import (
	"net/http"
	"time"

	"doccatalog-go/internal/authtoken"
	"doccatalog-go/internal/repository"
	"doccatalog-go/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var progressUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

const progressPollInterval = 2 * time.Second

// ProgressHandler streams a single document's processing status over a
// WebSocket connection: the same upgrade-then-push-until-terminal loop used
// for chat streaming, repurposed to poll document status instead of
// relaying LLM tokens.
type ProgressHandler struct {
	repo   repository.DocumentRepository
	tokens *authtoken.Manager
}

// NewProgressHandler 创建一个新的 ProgressHandler 实例。
func NewProgressHandler(repo repository.DocumentRepository, tokens *authtoken.Manager) *ProgressHandler {
	return &ProgressHandler{repo: repo, tokens: tokens}
}

// Handle upgrades the connection and pushes the document's status/progress
// every progressPollInterval until it reaches a terminal state or the client
// disconnects. Auth is via a short-lived bearer token in the URL (browsers
// cannot set an Authorization header on a WebSocket handshake), issued by
// authtoken.Manager.
func (h *ProgressHandler) Handle(c *gin.Context) {
	tokenString := c.Query("token")
	if _, err := h.tokens.Verify(tokenString); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效的 token"})
		return
	}

	id, ok := parseDocID(c)
	if !ok {
		return
	}

	conn, err := progressUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Errorf("[ProgressHandler] websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(progressPollInterval)
	defer ticker.Stop()

	for {
		doc, err := h.repo.Get(id)
		if err != nil {
			_ = conn.WriteJSON(map[string]any{"error": "文档不存在"})
			return
		}
		if err := conn.WriteJSON(map[string]any{
			"document_id": doc.ID,
			"status":      doc.Status,
			"progress":    doc.Progress,
			"error":       doc.Error,
		}); err != nil {
			log.Warnf("[ProgressHandler] write failed for document %d: %v", id, err)
			return
		}
		if doc.Status == "COMPLETED" || doc.Status == "FAILED" {
			return
		}
		select {
		case <-ticker.C:
			continue
		case <-c.Request.Context().Done():
			return
		}
	}
}

// IssueToken mints a short-lived bearer token scoped to progress streaming
// for an already-authenticated session, used by the frontend to open the
// WebSocket handshake without exposing the session cookie to it.
func (h *ProgressHandler) IssueToken(c *gin.Context) {
	token, err := h.tokens.Issue("progress-stream", []string{"document:progress"})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "生成令牌失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "data": gin.H{"token": token}})
}
