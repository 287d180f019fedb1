package model

import "time"

// ArticleRelation 对应于数据库中的 article_relations 表，按文章主键缓存
// 一份"相关文章"列表。Related 列存放 JSON 数组，仓储层负责编解码，
// 业务层只接触 []RelatedItem。
type ArticleRelation struct {
	ArticleID uint      `gorm:"primaryKey;column:article_id" json:"articleId"`
	UserID    uint      `gorm:"not null;index" json:"userId"`
	Related   string    `gorm:"type:json" json:"-"`
	UpdatedAt time.Time `gorm:"column:updated_at;index" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (ArticleRelation) TableName() string {
	return "article_relations"
}

// RelatedItem 是缓存条目中单条相关文章记录的结构化表示。
type RelatedItem struct {
	RelatedArticleID uint    `json:"related_article_id"`
	Score            float64 `json:"score"`
}
