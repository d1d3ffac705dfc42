// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"fmt"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"doccatalog-go/internal/apperr"
	"doccatalog-go/internal/config"
	"doccatalog-go/internal/pipeline"
	"doccatalog-go/internal/repository"
	"doccatalog-go/pkg/blob"
	"doccatalog-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// DocumentHandler 负责处理所有与文档管理相关的 API 请求。
type DocumentHandler struct {
	repo     repository.DocumentRepository
	enqueuer *pipeline.Enqueuer
	blobs    blob.Store
	cfg      config.PipelineConfig
}

// NewDocumentHandler 创建一个新的 DocumentHandler 实例。
func NewDocumentHandler(repo repository.DocumentRepository, enqueuer *pipeline.Enqueuer, blobs blob.Store, cfg config.PipelineConfig) *DocumentHandler {
	return &DocumentHandler{repo: repo, enqueuer: enqueuer, blobs: blobs, cfg: cfg}
}

// allowedUploadExtensions is the whitelist enforced on every uploaded
// filename.
var allowedUploadExtensions = map[string]bool{
	".pdf": true, ".jpg": true, ".jpeg": true, ".png": true, ".txt": true, ".docx": true,
}

// Upload 处理多文件上传请求: 逐个校验文件名/扩展名/大小、写入 Blob Store、
// 创建 Document 并入队。
func (h *DocumentHandler) Upload(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的多文件上传请求"})
		return
	}
	files := form.File["files[]"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少上传文件"})
		return
	}

	if err := h.enqueuer.CheckBackpressure(c.Request.Context()); err != nil {
		c.Header("Retry-After", "30")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "处理队列繁忙，请稍后重试"})
		return
	}

	type uploaded struct {
		ID       uint   `json:"id"`
		Filename string `json:"filename"`
		Status   string `json:"status"`
	}
	results := make([]uploaded, 0, len(files))

	stagger := time.Duration(h.cfg.UploadBatchStaggerS) * time.Second

	for i, fileHeader := range files {
		if err := h.validateUpload(fileHeader); err != nil {
			results = append(results, uploaded{Filename: fileHeader.Filename, Status: "REJECTED: " + err.Error()})
			continue
		}

		file, err := fileHeader.Open()
		if err != nil {
			results = append(results, uploaded{Filename: fileHeader.Filename, Status: "REJECTED: 无法读取文件"})
			continue
		}

		key := blob.NewKey(fileHeader.Filename)
		putErr := h.blobs.Put(c.Request.Context(), key, file, fileHeader.Size, fileHeader.Header.Get("Content-Type"))
		file.Close()
		if putErr != nil {
			log.Errorf("[DocumentHandler] Upload: failed to store blob for %s: %v", fileHeader.Filename, putErr)
			results = append(results, uploaded{Filename: fileHeader.Filename, Status: "REJECTED: 存储失败"})
			continue
		}

		size := fileHeader.Size
		docID, err := h.enqueuer.UploadDelayed(c.Request.Context(), fileHeader.Filename, key, &size, stagger*time.Duration(i))
		if err != nil {
			log.Errorf("[DocumentHandler] Upload: failed to enqueue document %s: %v", fileHeader.Filename, err)
			results = append(results, uploaded{Filename: fileHeader.Filename, Status: "REJECTED: 入队失败"})
			continue
		}

		results = append(results, uploaded{ID: docID, Filename: fileHeader.Filename, Status: "QUEUED"})
	}

	c.JSON(http.StatusCreated, gin.H{
		"code":    http.StatusCreated,
		"message": "上传处理完成",
		"data":    gin.H{"documents": results},
	})
}

// validateUpload rejects a file before it ever reaches the Blob Store:
// traversal/null-byte filenames, zero length, disallowed extension, or size
// over the configured ceiling.
func (h *DocumentHandler) validateUpload(fh *multipart.FileHeader) error {
	if fh.Filename == "" || strings.Contains(fh.Filename, "..") || strings.ContainsRune(fh.Filename, 0) {
		return fmt.Errorf("非法文件名")
	}
	if fh.Size <= 0 {
		return fmt.Errorf("文件为空")
	}
	if fh.Size > h.cfg.MaxFileSizeBytes {
		return fmt.Errorf("文件大小超过上限")
	}
	ext := strings.ToLower(filepath.Ext(fh.Filename))
	if !allowedUploadExtensions[ext] {
		return fmt.Errorf("不支持的文件类型: %s", ext)
	}
	return nil
}

// Get 返回一个文档的元数据与处理结果。
func (h *DocumentHandler) Get(c *gin.Context) {
	id, ok := parseDocID(c)
	if !ok {
		return
	}
	doc, err := h.repo.Get(id)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": "文档不存在"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": doc})
}

// Status 返回一个文档的处理状态与进度，供前端轮询。
func (h *DocumentHandler) Status(c *gin.Context) {
	id, ok := parseDocID(c)
	if !ok {
		return
	}
	doc, err := h.repo.Get(id)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": "文档不存在"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code": http.StatusOK,
		"data": gin.H{
			"document_id": doc.ID,
			"status":      doc.Status,
			"progress":    doc.Progress,
			"error":       doc.Error,
		},
	})
}

// Download 生成一个预签名下载链接并重定向到它。
func (h *DocumentHandler) Download(c *gin.Context) {
	id, ok := parseDocID(c)
	if !ok {
		return
	}
	doc, err := h.repo.Get(id)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": "文档不存在"})
		return
	}
	url, err := h.blobs.PresignedGet(c.Request.Context(), doc.BlobKey, 15*time.Minute)
	if err != nil {
		log.Errorf("[DocumentHandler] Download: failed to presign url for document %d: %v", id, err)
		c.JSON(statusFor(err), gin.H{"error": "生成下载链接失败"})
		return
	}
	c.Redirect(http.StatusFound, url)
}

// Preview 返回文档的抽取文本，供前端预览面板使用（无专用预览渲染）。
func (h *DocumentHandler) Preview(c *gin.Context) {
	id, ok := parseDocID(c)
	if !ok {
		return
	}
	doc, err := h.repo.Get(id)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": "文档不存在"})
		return
	}
	text := ""
	if doc.ExtractedText != nil {
		text = *doc.ExtractedText
	}
	analysis, _ := doc.GetAIAnalysis()
	c.JSON(http.StatusOK, gin.H{
		"code": http.StatusOK,
		"data": gin.H{
			"document_id":    doc.ID,
			"extracted_text": text,
			"analysis":       analysis,
		},
	})
}

// Reprocess 将一个 COMPLETED 或 FAILED 文档重置并重新加入处理队列。
func (h *DocumentHandler) Reprocess(c *gin.Context) {
	id, ok := parseDocID(c)
	if !ok {
		return
	}
	if err := h.repo.ResetForReprocessing(id); err != nil {
		c.JSON(statusFor(err), gin.H{"error": apperr.KindOf(err)})
		return
	}
	doc, err := h.repo.Get(id)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": "文档不存在"})
		return
	}
	if err := h.enqueuer.Requeue(c.Request.Context(), doc.ID); err != nil {
		log.Errorf("[DocumentHandler] Reprocess: failed to re-enqueue document %d: %v", id, err)
		c.JSON(statusFor(err), gin.H{"error": "重新入队失败"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"code":    http.StatusAccepted,
		"message": "文档已重新加入处理队列",
		"data":    gin.H{"success": true, "document_id": doc.ID},
	})
}

// List 分页查询文档，支持按状态/分类过滤，供管理面板使用。
func (h *DocumentHandler) List(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 || perPage > 100 {
		perPage = 20
	}

	filter := repository.DocumentFilter{
		Status:          c.Query("status"),
		CanonicalTerm:   c.Query("canonical_term"),
		PrimaryCategory: c.Query("primary_category"),
		FreeText:        c.Query("q"),
	}

	docs, total, err := h.repo.QueryDocuments(filter, repository.SortCreatedAt, true, page, perPage)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": "查询文档失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code": http.StatusOK,
		"data": gin.H{"documents": docs, "total": total, "page": page, "per_page": perPage},
	})
}

func parseDocID(c *gin.Context) (uint, bool) {
	idStr := c.Param("id")
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("无效的文档 ID: %s", idStr)})
		return 0, false
	}
	return uint(id), true
}

// statusFor maps an apperr.Kind to its HTTP status, shared by every handler
// in this package.
func statusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case apperr.KindAuth:
		return http.StatusUnauthorized
	case apperr.KindNotFound, apperr.KindBlobMissing:
		return http.StatusNotFound
	case apperr.KindConflictingState:
		return http.StatusConflict
	case apperr.KindRateLimited:
		return http.StatusTooManyRequests
	case apperr.KindBackpressure:
		return http.StatusServiceUnavailable
	case apperr.KindCacheUnavailable, apperr.KindProviderUnavailable, apperr.KindTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
