package model

import "time"

// SearchMode 标识一次检索请求走哪条路径。
type SearchMode string

const (
	ModeSemantic SearchMode = "semantic"
	ModeKeyword  SearchMode = "keyword"
	ModeHybrid   SearchMode = "hybrid"
	ModeRelated  SearchMode = "related"
)

// SearchRequest 定义了一次检索请求的全部参数。
// 文本模式使用 Query，related 模式使用 ArticleID。
type SearchRequest struct {
	Mode      SearchMode `json:"mode"`
	UserID    uint       `json:"userId"`
	Query     string     `json:"query"`
	ArticleID uint       `json:"articleId"`
	Limit     int        `json:"limit"`
	Offset    int        `json:"offset"`

	// 融合权重，默认 0.7 / 0.3。
	SemanticWeight float64 `json:"semanticWeight"`
	KeywordWeight  float64 `json:"keywordWeight"`
	// NormalizeScores 为 true 时语义得分按候选集最大值归一化后再融合。
	NormalizeScores bool `json:"normalizeScores"`

	// related 模式的缓存控制。
	UseCache     bool `json:"useCache"`
	RefreshCache bool `json:"refreshCache"`

	// 语义检索失败时是否透明降级为关键词检索。
	FallbackEnabled bool `json:"fallbackEnabled"`
}

// SearchResult 是单条检索结果。SemanticScore/KeywordScore 仅在混合
// 模式下填充，用于调试展示。
type SearchResult struct {
	ArticleID     uint           `json:"articleId"`
	Score         float64        `json:"score"`
	SemanticScore float64        `json:"semanticScore,omitempty"`
	KeywordScore  float64        `json:"keywordScore,omitempty"`
	Metadata      ResultMetadata `json:"metadata"`
}

// ResultMetadata 是结果条目携带的文章元信息。
type ResultMetadata struct {
	Title       string    `json:"title,omitempty"`
	URL         string    `json:"url,omitempty"`
	Summary     string    `json:"summary,omitempty"`
	SourceName  string    `json:"sourceName,omitempty"`
	PublishedAt time.Time `json:"publishedAt,omitempty"`
}

// SearchResponse 是检索请求的响应。Mode 为实际采用的模式，
// 发生降级时会与请求的模式不同。
type SearchResponse struct {
	Results  []SearchResult `json:"results"`
	Mode     SearchMode     `json:"mode"`
	Cached   bool           `json:"cached"`
	Fallback bool           `json:"fallback"`
}

// RelatedArticle 是相关文章接口返回的条目。
type RelatedArticle struct {
	ArticleID uint    `json:"articleId"`
	Score     float64 `json:"score"`
}
