// Package handler 存放 Gin 的 HTTP 处理器。
package handler

import (
	"net/http"
	"strconv"

	"feedscope-go/internal/config"
	"feedscope-go/internal/model"
	"feedscope-go/internal/service"
	"feedscope-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// SearchHandler 结构体定义了检索相关的处理器。
type SearchHandler struct {
	searchService service.SearchService
	searchCfg     config.SearchConfig
}

// NewSearchHandler 创建一个新的 SearchHandler 实例。
func NewSearchHandler(searchService service.SearchService, searchCfg config.SearchConfig) *SearchHandler {
	return &SearchHandler{
		searchService: searchService,
		searchCfg:     searchCfg,
	}
}

// Search 是统一的检索入口，四种模式通过 mode 参数区分。
// 发生降级的请求仍返回 200，由 fallback 字段标记质量退化。
func (h *SearchHandler) Search(c *gin.Context) {
	userID := parseUintQuery(c, "userId", 0)
	if userID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId 参数缺失或无效"})
		return
	}

	mode := model.SearchMode(c.DefaultQuery("mode", string(model.ModeHybrid)))
	req := model.SearchRequest{
		Mode:            mode,
		UserID:          userID,
		Query:           c.Query("query"),
		ArticleID:       parseUintQuery(c, "articleId", 0),
		Limit:           parseIntQuery(c, "limit", 0),
		Offset:          parseIntQuery(c, "offset", 0),
		SemanticWeight:  parseFloatQuery(c, "semanticWeight", 0),
		KeywordWeight:   parseFloatQuery(c, "keywordWeight", 0),
		NormalizeScores: parseBoolQuery(c, "normalizeScores", true),
		UseCache:        parseBoolQuery(c, "useCache", true),
		RefreshCache:    parseBoolQuery(c, "refreshCache", false),
		FallbackEnabled: parseBoolQuery(c, "fallback", h.searchCfg.FallbackEnabled),
	}
	log.Infof("[SearchHandler] 收到检索请求, mode: %s, user: %d, query: '%s'", req.Mode, req.UserID, req.Query)

	resp, err := h.searchService.Search(c.Request.Context(), req)
	if err != nil {
		log.Errorf("[SearchHandler] 检索服务返回错误: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "检索失败"})
		return
	}

	log.Infof("[SearchHandler] 检索成功, mode: %s, 返回 %d 条结果, fallback: %v", resp.Mode, len(resp.Results), resp.Fallback)
	c.JSON(http.StatusOK, gin.H{"code": 200, "data": resp, "message": "success"})
}

// parseUintQuery 解析无符号整数查询参数，非法时返回默认值。
func parseUintQuery(c *gin.Context, key string, fallback uint) uint {
	value, err := strconv.ParseUint(c.Query(key), 10, 64)
	if err != nil {
		return fallback
	}
	return uint(value)
}

func parseIntQuery(c *gin.Context, key string, fallback int) int {
	value, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return fallback
	}
	return value
}

func parseFloatQuery(c *gin.Context, key string, fallback float64) float64 {
	value, err := strconv.ParseFloat(c.Query(key), 64)
	if err != nil {
		return fallback
	}
	return value
}

func parseBoolQuery(c *gin.Context, key string, fallback bool) bool {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return value
}
