// Package pipeline 定义了文章向量化写路径的核心流程。
package pipeline

import (
	"context"
	"fmt"
	"time"

	"feedscope-go/internal/repository"
	"feedscope-go/internal/vector"
	"feedscope-go/pkg/embedding"
	"feedscope-go/pkg/log"
	"feedscope-go/pkg/tasks"

	lru "github.com/hashicorp/golang-lru/v2"
)

// lastTextCacheSize 限制"上次索引文本"缓存的条目数。该缓存只是
// 跳过无变化重复索引的优化，淘汰不影响正确性。
const lastTextCacheSize = 4096

// Processor 封装了向量索引写路径的所有依赖和逻辑。
type Processor struct {
	articleRepo     repository.ArticleRepository
	relationRepo    repository.RelationRepository
	embeddingClient embedding.Client
	registry        *vector.Registry
	lastText        *lru.Cache[string, string]
}

// NewProcessor 创建一个新的 Processor 实例。
func NewProcessor(
	articleRepo repository.ArticleRepository,
	relationRepo repository.RelationRepository,
	embeddingClient embedding.Client,
	registry *vector.Registry,
) *Processor {
	lastText, err := lru.New[string, string](lastTextCacheSize)
	if err != nil {
		// 只在容量参数非法时发生
		panic(err)
	}
	return &Processor{
		articleRepo:     articleRepo,
		relationRepo:    relationRepo,
		embeddingClient: embeddingClient,
		registry:        registry,
		lastText:        lastText,
	}
}

// Process 是索引任务的主函数，按 Op 分发到索引或删除。
func (p *Processor) Process(ctx context.Context, task tasks.ArticleIndexTask) error {
	switch task.Op {
	case tasks.OpDelete:
		return p.deleteArticle(ctx, task.ArticleID, task.UserID)
	case tasks.OpIndex, "":
		return p.indexArticle(ctx, task.ArticleID, task.UserID)
	default:
		return fmt.Errorf("未知的索引任务类型: %s", task.Op)
	}
}

// indexArticle 加载文章、构建文本、向量化并覆盖写入向量库。
func (p *Processor) indexArticle(ctx context.Context, articleID, userID uint) error {
	log.Infof("[Processor] 开始索引文章, ArticleID: %d, UserID: %d", articleID, userID)

	// 1. 加载文章
	article, err := p.articleRepo.FindByID(articleID)
	if err != nil {
		log.Errorf("[Processor] 加载文章失败, ArticleID: %d, Error: %v", articleID, err)
		return fmt.Errorf("加载文章 %d 失败: %w", articleID, err)
	}

	// 2. 构建规范向量化文本
	document := BuildVectorText(article)
	if document == "" {
		log.Warnf("[Processor] 文章 %d 没有可向量化的文本, 处理中止", articleID)
		return fmt.Errorf("文章 %d 没有可向量化的文本", articleID)
	}

	recordID := vector.RecordID(userID, articleID)
	if previous, ok := p.lastText.Get(recordID); ok && previous == document {
		log.Infof("[Processor] 文章 %d 的文本未变化, 跳过重复索引", articleID)
		return nil
	}

	// 3. 向量化
	embeddingVec, err := p.embeddingClient.Embed(ctx, userID, document)
	if err != nil {
		log.Errorf("[Processor] 文章 %d 向量化失败, Error: %v", articleID, err)
		return fmt.Errorf("文章 %d 向量化失败: %w", articleID, err)
	}

	// 4. 覆盖写入向量库（同一记录主键, upsert 而非追加）
	store, err := p.registry.For(ctx, userID)
	if err != nil {
		return fmt.Errorf("获取用户 %d 的向量集合失败: %w", userID, err)
	}

	metadata := map[string]interface{}{
		"article_id":   articleID,
		"user_id":      userID,
		"title":        article.Title,
		"published_at": article.PublishedAt.Format(time.RFC3339),
		"source_name":  article.SourceName,
		"summary":      article.Summary,
	}
	err = store.Upsert(ctx,
		[]string{recordID},
		[][]float32{embeddingVec},
		[]map[string]interface{}{metadata},
		[]string{document},
	)
	if err != nil {
		log.Errorf("[Processor] 文章 %d 写入向量库失败, Error: %v", articleID, err)
		return fmt.Errorf("文章 %d 写入向量库失败: %w", articleID, err)
	}

	p.lastText.Add(recordID, document)
	log.Infof("[Processor] 文章索引成功, ArticleID: %d, 向量维度: %d", articleID, len(embeddingVec))
	return nil
}

// deleteArticle 删除向量记录，并保证该文章不再出现在任何缓存的
// 相关列表中。
func (p *Processor) deleteArticle(ctx context.Context, articleID, userID uint) error {
	log.Infof("[Processor] 开始删除文章向量, ArticleID: %d, UserID: %d", articleID, userID)

	store, err := p.registry.For(ctx, userID)
	if err != nil {
		return fmt.Errorf("获取用户 %d 的向量集合失败: %w", userID, err)
	}
	if err := store.Remove(ctx, []string{vector.RecordID(userID, articleID)}); err != nil {
		log.Errorf("[Processor] 删除文章 %d 的向量记录失败: %v", articleID, err)
		return fmt.Errorf("删除文章 %d 的向量记录失败: %w", articleID, err)
	}
	p.lastText.Remove(vector.RecordID(userID, articleID))

	// 缓存一致性：先删自己的条目，再从其他条目的相关列表中清除引用
	if err := p.relationRepo.Delete(articleID); err != nil {
		return fmt.Errorf("删除文章 %d 的缓存条目失败: %w", articleID, err)
	}
	if err := p.relationRepo.RemoveRelatedArticle(articleID); err != nil {
		return fmt.Errorf("清除文章 %d 的相关引用失败: %w", articleID, err)
	}

	log.Infof("[Processor] 文章删除完成, ArticleID: %d", articleID)
	return nil
}
