package service

import (
	"context"
	"sync"
	"time"

	"feedscope-go/internal/config"
	"feedscope-go/internal/model"
	"feedscope-go/internal/repository"
	"feedscope-go/pkg/log"
)

// RefreshResult 是单篇文章缓存刷新的回执。刷新始终是尽力而为：
// 失败只记录在回执里，从不上抛给调用方。
type RefreshResult struct {
	ArticleID uint
	Success   bool
	Err       error
}

// RefreshOptions 覆盖单次刷新的参数，零值字段回落到配置默认值。
type RefreshOptions struct {
	TopN     int
	MinScore float64
	Limit    int
}

// RelatedService 接口定义了相关文章缓存的读取与两类刷新触发。
type RelatedService interface {
	// GetRelatedArticles 优先读缓存，过期条目照常返回；缓存缺失时
	// 现算并建立条目。
	GetRelatedArticles(ctx context.Context, articleID, userID uint, limit int) ([]model.RelatedArticle, error)
	// RefreshRelatedArticles 强制重算并覆盖缓存后返回。
	RefreshRelatedArticles(ctx context.Context, articleID, userID uint, limit int) ([]model.RelatedArticle, error)
	// IncrementalRefresh 在一篇新文章处理完成后，刷新受它扰动的
	// 近邻文章的缓存条目。
	IncrementalRefresh(ctx context.Context, newArticleID, userID uint, opts RefreshOptions) []RefreshResult
	// BatchRefresh 周期性刷新过期条目。userID 为 0 时扫全部用户。
	BatchRefresh(ctx context.Context, userID uint, opts RefreshOptions) []RefreshResult
}

type relatedService struct {
	searchService SearchService
	relationRepo  repository.RelationRepository
	refreshCfg    config.RefreshConfig
}

// NewRelatedService 创建一个新的 RelatedService 实例。
func NewRelatedService(searchService SearchService, relationRepo repository.RelationRepository, refreshCfg config.RefreshConfig) RelatedService {
	return &relatedService{
		searchService: searchService,
		relationRepo:  relationRepo,
		refreshCfg:    refreshCfg,
	}
}

// GetRelatedArticles 读取某篇文章的相关文章列表（缓存优先）。
func (s *relatedService) GetRelatedArticles(ctx context.Context, articleID, userID uint, limit int) ([]model.RelatedArticle, error) {
	if limit <= 0 {
		limit = s.refreshCfg.RelatedPerEntry
	}
	resp, err := s.searchService.Search(ctx, model.SearchRequest{
		Mode:      model.ModeRelated,
		UserID:    userID,
		ArticleID: articleID,
		Limit:     limit,
		UseCache:  true,
	})
	if err != nil {
		return nil, err
	}
	return toRelatedArticles(resp.Results), nil
}

// RefreshRelatedArticles 强制重算某篇文章的相关文章列表。
func (s *relatedService) RefreshRelatedArticles(ctx context.Context, articleID, userID uint, limit int) ([]model.RelatedArticle, error) {
	if limit <= 0 {
		limit = s.refreshCfg.RelatedPerEntry
	}
	resp, err := s.searchService.Search(ctx, model.SearchRequest{
		Mode:         model.ModeRelated,
		UserID:       userID,
		ArticleID:    articleID,
		Limit:        limit,
		RefreshCache: true,
	})
	if err != nil {
		return nil, err
	}
	return toRelatedArticles(resp.Results), nil
}

// IncrementalRefresh 是事件触发的刷新：以新文章的向量查出最相似的
// 既有文章（取 2×topN 候选，保留得分 ≥ minScore 的前 topN 篇），
// 逐一重算它们的缓存条目，新文章自己的条目也在此路径建立。
// 老文章靠这条路径"得知"新内容的存在。
func (s *relatedService) IncrementalRefresh(ctx context.Context, newArticleID, userID uint, opts RefreshOptions) []RefreshResult {
	topN := opts.TopN
	if topN <= 0 {
		topN = s.refreshCfg.TopN
	}
	minScore := opts.MinScore
	if minScore <= 0 {
		minScore = s.refreshCfg.MinScore
	}

	log.Infof("[RelatedService] 开始增量刷新, 新文章: %d, 用户: %d, topN: %d, minScore: %.2f",
		newArticleID, userID, topN, minScore)

	// 近邻探测取 2×topN 个候选
	resp, err := s.searchService.Search(ctx, model.SearchRequest{
		Mode:         model.ModeRelated,
		UserID:       userID,
		ArticleID:    newArticleID,
		Limit:        2 * topN,
		RefreshCache: true,
	})
	if err != nil {
		log.Errorf("[RelatedService] 增量刷新查询新文章近邻失败, articleId: %d: %v", newArticleID, err)
		return []RefreshResult{{ArticleID: newArticleID, Success: false, Err: err}}
	}

	candidates := make([]uint, 0, topN)
	for _, result := range resp.Results {
		if result.Score < minScore {
			continue
		}
		candidates = append(candidates, result.ArticleID)
		if len(candidates) >= topN {
			break
		}
	}
	log.Infof("[RelatedService] 增量刷新筛出 %d 个候选", len(candidates))

	// 近邻探测把超宽的候选列表写进了新文章自己的条目，这里把它
	// 按正常条目大小重建一次，再逐一刷新受扰动的候选
	ids := make([]uint, 0, len(candidates)+1)
	ids = append(ids, newArticleID)
	ids = append(ids, candidates...)
	results := s.refreshBatches(ctx, ids, userID)
	s.logResults("增量刷新", results)
	return results
}

// BatchRefresh 是时间触发的刷新：选出 updatedAt 最旧且已过期的条目
// 逐批重算。
func (s *relatedService) BatchRefresh(ctx context.Context, userID uint, opts RefreshOptions) []RefreshResult {
	limit := opts.Limit
	if limit <= 0 {
		limit = s.refreshCfg.BatchLimit
	}
	staleBefore := time.Now().Add(-s.refreshCfg.StaleAfter)

	relations, err := s.relationRepo.FindStale(userID, staleBefore, limit)
	if err != nil {
		log.Errorf("[RelatedService] 周期刷新查询过期条目失败: %v", err)
		return nil
	}
	if len(relations) == 0 {
		log.Debugf("[RelatedService] 周期刷新没有过期条目")
		return nil
	}
	log.Infof("[RelatedService] 周期刷新选出 %d 个过期条目", len(relations))

	results := make([]RefreshResult, 0, len(relations))
	// 条目可能分属不同用户, 按条目记录的归属逐批处理
	ids := make([]uint, len(relations))
	owners := make(map[uint]uint, len(relations))
	for i, relation := range relations {
		ids[i] = relation.ArticleID
		owners[relation.ArticleID] = relation.UserID
	}
	results = s.refreshBatchesOwned(ctx, ids, owners)
	s.logResults("周期刷新", results)
	return results
}

// refreshBatches 按并发上限分批刷新同一用户的一组文章。
func (s *relatedService) refreshBatches(ctx context.Context, articleIDs []uint, userID uint) []RefreshResult {
	owners := make(map[uint]uint, len(articleIDs))
	for _, id := range articleIDs {
		owners[id] = userID
	}
	return s.refreshBatchesOwned(ctx, articleIDs, owners)
}

// refreshBatchesOwned 执行分批刷新：批内最多 concurrency 个并发，
// 全部落定后才开始下一批；单项失败只进回执，不会中断批次。
func (s *relatedService) refreshBatchesOwned(ctx context.Context, articleIDs []uint, owners map[uint]uint) []RefreshResult {
	concurrency := s.refreshCfg.Concurrency
	if concurrency <= 0 {
		concurrency = 3
	}

	results := make([]RefreshResult, len(articleIDs))
	for start := 0; start < len(articleIDs); start += concurrency {
		end := start + concurrency
		if end > len(articleIDs) {
			end = len(articleIDs)
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				articleID := articleIDs[i]
				_, err := s.searchService.Search(ctx, model.SearchRequest{
					Mode:         model.ModeRelated,
					UserID:       owners[articleID],
					ArticleID:    articleID,
					Limit:        s.refreshCfg.RelatedPerEntry,
					RefreshCache: true,
				})
				results[i] = RefreshResult{ArticleID: articleID, Success: err == nil, Err: err}
			}(i)
		}
		wg.Wait()
	}
	return results
}

// logResults 汇总记录一次刷新的成败计数。
func (s *relatedService) logResults(kind string, results []RefreshResult) {
	succeeded, failed := 0, 0
	for _, r := range results {
		if r.Success {
			succeeded++
		} else {
			failed++
			log.Warnf("[RelatedService] %s: 文章 %d 刷新失败: %v", kind, r.ArticleID, r.Err)
		}
	}
	log.Infof("[RelatedService] %s完成, 成功 %d, 失败 %d", kind, succeeded, failed)
}

// toRelatedArticles 把检索结果裁剪为相关文章条目。
func toRelatedArticles(results []model.SearchResult) []model.RelatedArticle {
	related := make([]model.RelatedArticle, 0, len(results))
	for _, r := range results {
		related = append(related, model.RelatedArticle{ArticleID: r.ArticleID, Score: r.Score})
	}
	return related
}
