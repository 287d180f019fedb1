// Package service 提供了检索相关的业务逻辑。
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"feedscope-go/internal/config"
	"feedscope-go/internal/model"
	"feedscope-go/internal/pipeline"
	"feedscope-go/internal/repository"
	"feedscope-go/internal/vector"
	"feedscope-go/pkg/embedding"
	"feedscope-go/pkg/log"
	"feedscope-go/pkg/rerank"

	"golang.org/x/sync/errgroup"
)

// ErrMissingQuery 表示文本检索模式缺少查询串。
var ErrMissingQuery = errors.New("query is required for this search mode")

// ErrMissingArticleID 表示 related 模式缺少文章 id。
var ErrMissingArticleID = errors.New("articleId is required for related search")

// SearchService 接口定义了四种检索模式的统一入口。
type SearchService interface {
	Search(ctx context.Context, req model.SearchRequest) (*model.SearchResponse, error)
}

type searchService struct {
	embeddingClient embedding.Client
	registry        *vector.Registry
	articleRepo     repository.ArticleRepository
	relationRepo    repository.RelationRepository
	rerankClient    rerank.Client
	searchCfg       config.SearchConfig
	rerankEnabled   bool
}

// NewSearchService 创建一个新的 SearchService 实例。
// rerankClient 传 nil 或 rerankEnabled 为 false 时不做重排。
func NewSearchService(
	embeddingClient embedding.Client,
	registry *vector.Registry,
	articleRepo repository.ArticleRepository,
	relationRepo repository.RelationRepository,
	rerankClient rerank.Client,
	searchCfg config.SearchConfig,
	rerankEnabled bool,
) SearchService {
	return &searchService{
		embeddingClient: embeddingClient,
		registry:        registry,
		articleRepo:     articleRepo,
		relationRepo:    relationRepo,
		rerankClient:    rerankClient,
		searchCfg:       searchCfg,
		rerankEnabled:   rerankEnabled && rerankClient != nil,
	}
}

// Search 按请求的模式分发检索。
func (s *searchService) Search(ctx context.Context, req model.SearchRequest) (*model.SearchResponse, error) {
	s.normalizeRequest(&req)
	log.Infof("[SearchService] 收到检索请求, mode: %s, user: %d, query: '%s', articleId: %d, limit: %d",
		req.Mode, req.UserID, req.Query, req.ArticleID, req.Limit)

	switch req.Mode {
	case model.ModeSemantic:
		return s.semanticSearch(ctx, req)
	case model.ModeKeyword:
		return s.keywordSearch(ctx, req)
	case model.ModeHybrid:
		return s.hybridSearch(ctx, req)
	case model.ModeRelated:
		return s.relatedSearch(ctx, req)
	default:
		return nil, fmt.Errorf("未知的检索模式: %s", req.Mode)
	}
}

// normalizeRequest 补齐缺省的 limit 与融合权重。
func (s *searchService) normalizeRequest(req *model.SearchRequest) {
	if req.Limit <= 0 {
		req.Limit = s.searchCfg.DefaultLimit
	}
	if req.Offset < 0 {
		req.Offset = 0
	}
	if req.SemanticWeight == 0 && req.KeywordWeight == 0 {
		req.SemanticWeight = s.searchCfg.SemanticWeight
		req.KeywordWeight = s.searchCfg.KeywordWeight
	}
}

// semanticSearch 执行纯语义检索，失败且允许降级时透明转为关键词检索。
func (s *searchService) semanticSearch(ctx context.Context, req model.SearchRequest) (*model.SearchResponse, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, ErrMissingQuery
	}

	results, err := s.semanticResults(ctx, req.UserID, req.Query, req.Limit+req.Offset)
	if err != nil {
		if !req.FallbackEnabled {
			return nil, err
		}
		log.Warnf("[SearchService] 语义检索失败, 降级为关键词检索: %v", err)
		resp, kwErr := s.keywordSearch(ctx, req)
		if kwErr != nil {
			return nil, kwErr
		}
		resp.Fallback = true
		return resp, nil
	}

	results = paginate(results, req.Offset, req.Limit)
	results = s.maybeRerank(ctx, req.Query, results)
	return &model.SearchResponse{Results: results, Mode: model.ModeSemantic}, nil
}

// keywordSearch 执行关系库 LIKE 检索。没有更低一级的降级路径，
// 关系库不可用时错误直接上抛。
func (s *searchService) keywordSearch(ctx context.Context, req model.SearchRequest) (*model.SearchResponse, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, ErrMissingQuery
	}

	results, err := s.keywordResults(req.UserID, req.Query, req.Limit, req.Offset)
	if err != nil {
		return nil, err
	}
	results = s.maybeRerank(ctx, req.Query, results)
	return &model.SearchResponse{Results: results, Mode: model.ModeKeyword}, nil
}

// hybridSearch 并行执行语义与关键词两路检索并融合。关键词一路
// 永远不跳过，它是语义后端不可用时的安全网。
func (s *searchService) hybridSearch(ctx context.Context, req model.SearchRequest) (*model.SearchResponse, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, ErrMissingQuery
	}

	// 两路各多取一倍候选，融合后再截断
	fetch := (req.Limit + req.Offset) * 2

	var (
		semResults []model.SearchResult
		kwResults  []model.SearchResult
		semErr     error
		kwErr      error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		semResults, semErr = s.semanticResults(gctx, req.UserID, req.Query, fetch)
		return nil
	})
	g.Go(func() error {
		kwResults, kwErr = s.keywordResults(req.UserID, req.Query, fetch, 0)
		return nil
	})
	_ = g.Wait()

	if semErr != nil && kwErr != nil {
		return nil, fmt.Errorf("混合检索两路均失败: semantic: %v, keyword: %w", semErr, kwErr)
	}

	// 语义一路失败：降级为纯关键词结果
	if semErr != nil {
		if !req.FallbackEnabled {
			return nil, semErr
		}
		log.Warnf("[SearchService] 混合检索语义一路失败, 降级为关键词结果: %v", semErr)
		results := paginate(kwResults, req.Offset, req.Limit)
		results = s.maybeRerank(ctx, req.Query, results)
		return &model.SearchResponse{Results: results, Mode: model.ModeKeyword, Fallback: true}, nil
	}

	// 关键词一路失败：退回纯语义结果
	if kwErr != nil {
		log.Warnf("[SearchService] 混合检索关键词一路失败, 退回语义结果: %v", kwErr)
		results := paginate(semResults, req.Offset, req.Limit)
		results = s.maybeRerank(ctx, req.Query, results)
		return &model.SearchResponse{Results: results, Mode: model.ModeSemantic, Fallback: true}, nil
	}

	fused := fuseResults(semResults, kwResults, req.SemanticWeight, req.KeywordWeight, req.NormalizeScores)
	fused = paginate(fused, req.Offset, req.Limit)
	fused = s.maybeRerank(ctx, req.Query, fused)
	return &model.SearchResponse{Results: fused, Mode: model.ModeHybrid}, nil
}

// relatedSearch 返回与给定文章最相似的文章，优先走缓存。
func (s *searchService) relatedSearch(ctx context.Context, req model.SearchRequest) (*model.SearchResponse, error) {
	if req.ArticleID == 0 {
		return nil, ErrMissingArticleID
	}

	// 过期条目照常返回：新鲜度只是建议信号，除非显式要求刷新
	if req.UseCache && !req.RefreshCache {
		_, items, err := s.relationRepo.Get(req.ArticleID)
		if err == nil {
			results, mdErr := s.resultsFromItems(items, req.Limit)
			if mdErr != nil {
				return nil, mdErr
			}
			log.Infof("[SearchService] related 命中缓存, articleId: %d, %d 条", req.ArticleID, len(results))
			return &model.SearchResponse{Results: results, Mode: model.ModeRelated, Cached: true}, nil
		}
		if !errors.Is(err, repository.ErrCacheMiss) {
			return nil, err
		}
	}

	results, err := s.computeRelated(ctx, req.ArticleID, req.UserID, req.Limit)
	if err != nil {
		return nil, err
	}

	// 计算结果写回缓存（首次查询建立条目，强制刷新覆盖条目）
	items := make([]model.RelatedItem, 0, len(results))
	for _, r := range results {
		items = append(items, model.RelatedItem{RelatedArticleID: r.ArticleID, Score: r.Score})
	}
	if err := s.relationRepo.Upsert(req.ArticleID, req.UserID, items, time.Now()); err != nil {
		// 缓存是优化层, 写入失败不影响本次响应
		log.Warnf("[SearchService] 写回相关文章缓存失败, articleId: %d: %v", req.ArticleID, err)
	}

	return &model.SearchResponse{Results: results, Mode: model.ModeRelated}, nil
}

// computeRelated 以文章自身的向量查询其近邻，排除自身，不做归一化。
func (s *searchService) computeRelated(ctx context.Context, articleID, userID uint, limit int) ([]model.SearchResult, error) {
	article, err := s.articleRepo.FindByID(articleID)
	if err != nil {
		return nil, err
	}

	document := pipeline.BuildVectorText(article)
	if document == "" {
		return nil, fmt.Errorf("文章 %d 没有可向量化的文本", articleID)
	}
	queryVec, err := s.embeddingClient.Embed(ctx, userID, document)
	if err != nil {
		return nil, err
	}

	store, err := s.registry.For(ctx, userID)
	if err != nil {
		return nil, err
	}
	// 多取一条，留出排除自身的余量
	hits, err := store.Query(ctx, queryVec, limit+1, nil)
	if err != nil {
		return nil, err
	}

	results := make([]model.SearchResult, 0, limit)
	for _, hit := range hits {
		if hit.ArticleID == 0 || hit.ArticleID == articleID {
			continue
		}
		results = append(results, hitToResult(hit))
		if len(results) >= limit {
			break
		}
	}
	return results, nil
}

// semanticResults 是语义一路的原始执行：向量化查询串后查近邻。
func (s *searchService) semanticResults(ctx context.Context, userID uint, query string, topK int) ([]model.SearchResult, error) {
	queryVec, err := s.embeddingClient.Embed(ctx, userID, query)
	if err != nil {
		return nil, err
	}
	store, err := s.registry.For(ctx, userID)
	if err != nil {
		return nil, err
	}
	hits, err := store.Query(ctx, queryVec, topK, nil)
	if err != nil {
		return nil, err
	}

	results := make([]model.SearchResult, 0, len(hits))
	for _, hit := range hits {
		if hit.ArticleID == 0 {
			// 缺失 article_id 的命中不可引用, 直接丢弃
			continue
		}
		results = append(results, hitToResult(hit))
	}
	return results, nil
}

// keywordResults 是关键词一路的原始执行：LIKE 过滤 + 启发式打分。
func (s *searchService) keywordResults(userID uint, query string, limit, offset int) ([]model.SearchResult, error) {
	terms := strings.Fields(query)
	articles, err := s.articleRepo.KeywordSearch(userID, terms, limit, offset)
	if err != nil {
		return nil, err
	}

	results := make([]model.SearchResult, 0, len(articles))
	for _, article := range articles {
		results = append(results, model.SearchResult{
			ArticleID: article.ID,
			Score:     keywordScore(query, article),
			Metadata: model.ResultMetadata{
				Title:       article.Title,
				URL:         article.URL,
				Summary:     article.Summary,
				SourceName:  article.SourceName,
				PublishedAt: article.PublishedAt,
			},
		})
	}
	// LIKE 过滤不产生排序信号, 按启发式得分排一遍
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return results, nil
}

// keywordScore 计算关键词一路的启发式相关度（只用于排序，不用于过滤）：
// 标题包含完整查询 +0.5，标题以查询开头再 +0.3，摘要包含 +0.2，封顶 1。
func keywordScore(query string, article *model.Article) float64 {
	q := strings.ToLower(strings.TrimSpace(query))
	title := strings.ToLower(article.Title)
	summary := strings.ToLower(article.Summary)

	score := 0.0
	if strings.Contains(title, q) {
		score += 0.5
	}
	if strings.HasPrefix(title, q) {
		score += 0.3
	}
	if strings.Contains(summary, q) {
		score += 0.2
	}
	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	return score
}

// fuseResults 融合语义与关键词两路结果：
//
//	combined = normalizedSemantic*semanticWeight + keywordScore*keywordWeight
//
// normalize 为 true 时语义得分按候选集内最大值归一化（最大值为 0 时取 0），
// 否则直接使用原始语义得分。只出现在一路中的文章，另一路得分按 0 计，
// 不会被丢弃。排序为 combined 降序，相同得分保持插入顺序。
func fuseResults(semResults, kwResults []model.SearchResult, semWeight, kwWeight float64, normalize bool) []model.SearchResult {
	type fusedEntry struct {
		result   model.SearchResult
		semantic float64
		keyword  float64
	}

	order := make([]uint, 0, len(semResults)+len(kwResults))
	entries := make(map[uint]*fusedEntry, len(semResults)+len(kwResults))

	for _, r := range semResults {
		entries[r.ArticleID] = &fusedEntry{result: r, semantic: r.Score}
		order = append(order, r.ArticleID)
	}
	for _, r := range kwResults {
		if entry, ok := entries[r.ArticleID]; ok {
			entry.keyword = r.Score
		} else {
			entries[r.ArticleID] = &fusedEntry{result: r, keyword: r.Score}
			order = append(order, r.ArticleID)
		}
	}

	maxSemantic := 0.0
	for _, entry := range entries {
		if entry.semantic > maxSemantic {
			maxSemantic = entry.semantic
		}
	}

	fused := make([]model.SearchResult, 0, len(order))
	for _, id := range order {
		entry := entries[id]
		semScore := entry.semantic
		if normalize {
			if maxSemantic == 0 {
				semScore = 0
			} else {
				semScore = entry.semantic / maxSemantic
			}
		}
		result := entry.result
		result.Score = semScore*semWeight + entry.keyword*kwWeight
		result.SemanticScore = entry.semantic
		result.KeywordScore = entry.keyword
		fused = append(fused, result)
	}

	sort.SliceStable(fused, func(i, j int) bool {
		return fused[i].Score > fused[j].Score
	})
	return fused
}

// maybeRerank 在启用重排时对已选出的候选集重新打分。重排只改变
// 顺序和得分，从不增删候选；失败时保留原有排序。
func (s *searchService) maybeRerank(ctx context.Context, query string, results []model.SearchResult) []model.SearchResult {
	if !s.rerankEnabled || len(results) < 2 {
		return results
	}

	documents := make([]string, len(results))
	for i, r := range results {
		documents[i] = pipeline.BuildVectorText(&model.Article{
			Title:   r.Metadata.Title,
			Summary: r.Metadata.Summary,
		})
	}

	ranked, err := s.rerankClient.Rerank(ctx, query, documents, len(documents))
	if err != nil {
		log.Warnf("[SearchService] 重排失败, 保留原有排序: %v", err)
		return results
	}

	reranked := make([]model.SearchResult, 0, len(results))
	seen := make(map[int]bool, len(results))
	for _, doc := range ranked {
		if seen[doc.Index] {
			continue
		}
		seen[doc.Index] = true
		result := results[doc.Index]
		result.Score = doc.Score
		reranked = append(reranked, result)
	}
	// 重排响应未覆盖的候选按原顺序补在尾部, 保证候选集不变
	for i, r := range results {
		if !seen[i] {
			reranked = append(reranked, r)
		}
	}
	return reranked
}

// resultsFromItems 把缓存条目还原为响应结果，元数据从关系库补齐。
func (s *searchService) resultsFromItems(items []model.RelatedItem, limit int) ([]model.SearchResult, error) {
	if len(items) > limit {
		items = items[:limit]
	}
	ids := make([]uint, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.RelatedArticleID)
	}
	articles, err := s.articleRepo.FindBatchByIDs(ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uint]*model.Article, len(articles))
	for _, a := range articles {
		byID[a.ID] = a
	}

	results := make([]model.SearchResult, 0, len(items))
	for _, item := range items {
		result := model.SearchResult{ArticleID: item.RelatedArticleID, Score: item.Score}
		if article, ok := byID[item.RelatedArticleID]; ok {
			result.Metadata = model.ResultMetadata{
				Title:       article.Title,
				URL:         article.URL,
				Summary:     article.Summary,
				SourceName:  article.SourceName,
				PublishedAt: article.PublishedAt,
			}
		}
		results = append(results, result)
	}
	return results, nil
}

// hitToResult 把向量命中转换为检索结果。
func hitToResult(hit vector.Hit) model.SearchResult {
	metadata := model.ResultMetadata{}
	if hit.Metadata != nil {
		if title, ok := hit.Metadata["title"].(string); ok {
			metadata.Title = title
		}
		if summary, ok := hit.Metadata["summary"].(string); ok {
			metadata.Summary = summary
		}
		if source, ok := hit.Metadata["source_name"].(string); ok {
			metadata.SourceName = source
		}
		if published, ok := hit.Metadata["published_at"].(string); ok {
			if t, err := time.Parse(time.RFC3339, published); err == nil {
				metadata.PublishedAt = t
			}
		}
	}
	return model.SearchResult{
		ArticleID:     hit.ArticleID,
		Score:         hit.Similarity,
		SemanticScore: hit.Similarity,
		Metadata:      metadata,
	}
}

// paginate 对结果应用 offset/limit。
func paginate(results []model.SearchResult, offset, limit int) []model.SearchResult {
	if offset >= len(results) {
		return nil
	}
	results = results[offset:]
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}
