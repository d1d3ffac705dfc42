package handler

import (
	"net/http"
	"sort"
	"strconv"

	"doccatalog-go/internal/taxonomy"

	"github.com/gin-gonic/gin"
)

// TaxonomyHandler 负责处理分类/关键词体系相关的只读查询请求。
type TaxonomyHandler struct {
	engine *taxonomy.Engine
}

// NewTaxonomyHandler 创建一个新的 TaxonomyHandler 实例。
func NewTaxonomyHandler(engine *taxonomy.Engine) *TaxonomyHandler {
	return &TaxonomyHandler{engine: engine}
}

// Hierarchy 返回 primary_category -> subcategory -> [term] 的完整层级。
func (h *TaxonomyHandler) Hierarchy(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": h.engine.Hierarchy()})
}

// Categories 返回全部一级分类名称。
func (h *TaxonomyHandler) Categories(c *gin.Context) {
	hierarchy := h.engine.Hierarchy()
	categories := make([]string, 0, len(hierarchy))
	for category := range hierarchy {
		categories = append(categories, category)
	}
	sort.Strings(categories)
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": categories})
}

// CanonicalTerms 返回全部规范术语。
func (h *TaxonomyHandler) CanonicalTerms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": h.engine.CanonicalTerms()})
}

// Search 返回名称包含给定子串的术语，供自动补全使用。
func (h *TaxonomyHandler) Search(c *gin.Context) {
	q := c.Query("q")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": h.engine.Search(q, limit)})
}

// initializeRow is the wire shape of one taxonomy.Row in an Initialize request.
type initializeRow struct {
	PrimaryCategory string   `json:"primary_category"`
	Subcategory     string   `json:"subcategory"`
	Term            string   `json:"term" binding:"required"`
	ParentTerm      string   `json:"parent_term"`
	Synonyms        []string `json:"synonyms"`
}

// initializeRequest is the body accepted by Initialize: a tabular taxonomy
// source submitted as JSON rows.
type initializeRequest struct {
	Rows []initializeRow `json:"rows" binding:"required,min=1"`
}

// Initialize bulk-loads a taxonomy hierarchy, creating missing terms and
// synonyms and wiring parent_id links, rejecting any row that would close a
// cycle in the parent relation.
func (h *TaxonomyHandler) Initialize(c *gin.Context) {
	var req initializeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": err.Error()})
		return
	}

	rows := make([]taxonomy.Row, 0, len(req.Rows))
	for _, r := range req.Rows {
		rows = append(rows, taxonomy.Row{
			PrimaryCategory: r.PrimaryCategory,
			Subcategory:     r.Subcategory,
			Term:            r.Term,
			ParentTerm:      r.ParentTerm,
			Synonyms:        r.Synonyms,
		})
	}

	counts, err := h.engine.Initialize(rows)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "加载分类体系失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": counts})
}
