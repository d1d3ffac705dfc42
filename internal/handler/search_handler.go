package handler

import (
	"net/http"
	"strconv"

	"doccatalog-go/internal/search"
	"doccatalog-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// SearchHandler 结构体定义了搜索相关的处理器。
type SearchHandler struct {
	searchService *search.Service
}

// NewSearchHandler 创建一个新的 SearchHandler 实例。
func NewSearchHandler(searchService *search.Service) *SearchHandler {
	return &SearchHandler{searchService: searchService}
}

// Search 是处理混合搜索请求的 Gin 处理函数。
func (h *SearchHandler) Search(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "12"))

	req := search.Request{
		Q:               c.Query("q"),
		CanonicalTerm:   c.Query("canonical_term"),
		PrimaryCategory: c.Query("primary_category"),
		SortBy:          c.Query("sort_by"),
		SortDirection:   c.Query("sort_direction"),
		Page:            page,
		PerPage:         perPage,
	}

	resp, err := h.searchService.Search(c.Request.Context(), req)
	if err != nil {
		log.Errorf("[SearchHandler] Search: query %q failed: %v", req.Q, err)
		c.JSON(statusFor(err), gin.H{"error": "搜索失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": resp})
}

// TopQueries 返回过去 7 天内最热门的查询词。
func (h *SearchHandler) TopQueries(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	rows, err := h.searchService.TopQueries(limit)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": "获取热门查询失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": rows})
}
