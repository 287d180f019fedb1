// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

// 索引任务的操作类型。
const (
	OpIndex  = "index"
	OpDelete = "delete"
)

// ArticleIndexTask represents the data structure for a vector indexing job.
type ArticleIndexTask struct {
	ArticleID uint   `json:"article_id"`
	UserID    uint   `json:"user_id"`
	Op        string `json:"op"`
}

// RelatedRefreshTask 表示一次增量刷新任务：一篇新文章处理完成后，
// 它的近邻条目需要重新计算。
type RelatedRefreshTask struct {
	ArticleID uint `json:"article_id"`
	UserID    uint `json:"user_id"`
}
