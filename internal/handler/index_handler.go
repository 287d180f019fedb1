package handler

import (
	"net/http"
	"strconv"

	"feedscope-go/pkg/kafka"
	"feedscope-go/pkg/log"
	"feedscope-go/pkg/tasks"

	"github.com/gin-gonic/gin"
)

// IndexHandler 结构体定义了向量索引相关的处理器。
// 索引是异步的：接口只负责把任务投递到 Kafka。
type IndexHandler struct{}

// NewIndexHandler 创建一个新的 IndexHandler 实例。
func NewIndexHandler() *IndexHandler {
	return &IndexHandler{}
}

// IndexArticle 将一篇文章排入向量索引队列。
func (h *IndexHandler) IndexArticle(c *gin.Context) {
	h.produce(c, tasks.OpIndex)
}

// DeleteArticle 将一篇文章的向量删除请求排入队列。
func (h *IndexHandler) DeleteArticle(c *gin.Context) {
	h.produce(c, tasks.OpDelete)
}

func (h *IndexHandler) produce(c *gin.Context, op string) {
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

	task := tasks.ArticleIndexTask{ArticleID: uint(articleID), UserID: userID, Op: op}
	if err := kafka.ProduceIndexTask(task); err != nil {
		log.Errorf("[IndexHandler] 投递索引任务失败, articleId: %d, op: %s: %v", articleID, op, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "投递索引任务失败"})
		return
	}

	log.Infof("[IndexHandler] 索引任务已投递, articleId: %d, user: %d, op: %s", articleID, userID, op)
	c.JSON(http.StatusAccepted, gin.H{"code": 202, "data": gin.H{"articleId": articleID, "op": op}, "message": "任务已接受"})
}
