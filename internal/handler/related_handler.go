package handler

import (
	"net/http"
	"strconv"

	"feedscope-go/internal/service"
	"feedscope-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// RelatedHandler 结构体定义了相关文章缓存相关的处理器。
type RelatedHandler struct {
	relatedService service.RelatedService
}

// NewRelatedHandler 创建一个新的 RelatedHandler 实例。
func NewRelatedHandler(relatedService service.RelatedService) *RelatedHandler {
	return &RelatedHandler{
		relatedService: relatedService,
	}
}

// GetRelated 返回某篇文章的相关文章列表（缓存优先）。
func (h *RelatedHandler) GetRelated(c *gin.Context) {
	articleID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || articleID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的文章 id"})
		return
	}
	userID := parseUintQuery(c, "userId", 0)
	if userID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId 参数缺失或无效"})
		return
	}
	limit := parseIntQuery(c, "limit", 0)

	related, err := h.relatedService.GetRelatedArticles(c.Request.Context(), uint(articleID), userID, limit)
	if err != nil {
		log.Errorf("[RelatedHandler] 获取相关文章失败, articleId: %d: %v", articleID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "获取相关文章失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": related, "message": "success"})
}

// RefreshRelated 强制重算某篇文章的相关文章列表。
func (h *RelatedHandler) RefreshRelated(c *gin.Context) {
	articleID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || articleID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的文章 id"})
		return
	}
	userID := parseUintQuery(c, "userId", 0)
	if userID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId 参数缺失或无效"})
		return
	}
	limit := parseIntQuery(c, "limit", 0)

	related, err := h.relatedService.RefreshRelatedArticles(c.Request.Context(), uint(articleID), userID, limit)
	if err != nil {
		log.Errorf("[RelatedHandler] 刷新相关文章失败, articleId: %d: %v", articleID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "刷新相关文章失败"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": related, "message": "success"})
}

// BatchRefresh 触发一次过期条目扫描刷新，同步返回逐项回执。
func (h *RelatedHandler) BatchRefresh(c *gin.Context) {
	userID := parseUintQuery(c, "userId", 0)
	if userID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId 参数缺失或无效"})
		return
	}
	limit := parseIntQuery(c, "limit", 0)

	results := h.relatedService.BatchRefresh(c.Request.Context(), userID, service.RefreshOptions{Limit: limit})

	type itemDTO struct {
		ArticleID uint   `json:"articleId"`
		Success   bool   `json:"success"`
		Error     string `json:"error,omitempty"`
	}
	items := make([]itemDTO, 0, len(results))
	for _, r := range results {
		item := itemDTO{ArticleID: r.ArticleID, Success: r.Success}
		if r.Err != nil {
			item.Error = r.Err.Error()
		}
		items = append(items, item)
	}
	log.Infof("[RelatedHandler] 周期刷新触发完成, user: %d, 共 %d 项", userID, len(items))
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": items, "message": "success"})
}
