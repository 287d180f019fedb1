package repository

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"feedscope-go/internal/model"
	"feedscope-go/pkg/log"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrCacheMiss 表示相关文章缓存中没有该文章的条目。
// 这是正常的控制流信号，不是故障。
var ErrCacheMiss = errors.New("related cache miss")

// RelationRepository 接口定义了相关文章缓存表的数据操作。
// Related 列中的 JSON 在本层编解码，调用方只接触 []model.RelatedItem。
type RelationRepository interface {
	Get(articleID uint) (*model.ArticleRelation, []model.RelatedItem, error)
	Upsert(articleID, userID uint, items []model.RelatedItem, updatedAt time.Time) error
	Delete(articleID uint) error
	// FindStale 返回 updatedAt 早于 staleBefore 的缓存条目，只包含
	// 已通过过滤且处理完成的文章，按最旧优先排序。userID 为 0 时不限用户。
	FindStale(userID uint, staleBefore time.Time, limit int) ([]model.ArticleRelation, error)
	// RemoveRelatedArticle 把被删除的文章从所有其他条目的相关列表中清除。
	RemoveRelatedArticle(relatedID uint) error
}

// relationRepository 是 RelationRepository 接口的 GORM 实现。
type relationRepository struct {
	db *gorm.DB
}

// NewRelationRepository 创建一个新的 RelationRepository 实例。
func NewRelationRepository(db *gorm.DB) RelationRepository {
	return &relationRepository{db: db}
}

// Get 按文章主键读取缓存条目并解码相关列表。
func (r *relationRepository) Get(articleID uint) (*model.ArticleRelation, []model.RelatedItem, error) {
	var relation model.ArticleRelation
	if err := r.db.First(&relation, "article_id = ?", articleID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrCacheMiss
		}
		return nil, nil, err
	}

	items, err := decodeItems(relation.Related)
	if err != nil {
		// 损坏的条目按缓存缺失处理，下一次刷新会覆盖它
		log.Warnf("[RelationRepository] 文章 %d 的缓存条目无法解析, 视为缺失: %v", articleID, err)
		return nil, nil, ErrCacheMiss
	}
	return &relation, items, nil
}

// Upsert 按主键覆盖写入缓存条目（只覆盖，从不追加）。
func (r *relationRepository) Upsert(articleID, userID uint, items []model.RelatedItem, updatedAt time.Time) error {
	encoded, err := encodeItems(items)
	if err != nil {
		return fmt.Errorf("编码相关列表失败: %w", err)
	}

	relation := model.ArticleRelation{
		ArticleID: articleID,
		UserID:    userID,
		Related:   encoded,
		UpdatedAt: updatedAt,
	}
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "article_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "related", "updated_at"}),
	}).Create(&relation).Error
}

// Delete 删除某篇文章自己的缓存条目。
func (r *relationRepository) Delete(articleID uint) error {
	return r.db.Delete(&model.ArticleRelation{}, "article_id = ?", articleID).Error
}

// FindStale 选出待周期刷新的过期条目。
func (r *relationRepository) FindStale(userID uint, staleBefore time.Time, limit int) ([]model.ArticleRelation, error) {
	query := r.db.Model(&model.ArticleRelation{}).
		Joins("JOIN articles ON articles.id = article_relations.article_id").
		Where("article_relations.updated_at < ?", staleBefore).
		Where("articles.filter_status = ?", model.FilterStatusAccepted).
		Where("articles.process_status = ?", model.ProcessStatusCompleted)
	if userID != 0 {
		query = query.Where("article_relations.user_id = ?", userID)
	}

	var relations []model.ArticleRelation
	err := query.Order("article_relations.updated_at ASC").Limit(limit).
		Select("article_relations.*").Find(&relations).Error
	return relations, err
}

// RemoveRelatedArticle 清除所有相关列表中对已删除文章的引用。
// LIKE 只用来缩小候选集，是否真正包含该 id 由解码后精确判断，
// 避免 id 前缀（如 1 与 12）引起误删。
func (r *relationRepository) RemoveRelatedArticle(relatedID uint) error {
	pattern := fmt.Sprintf("%%\"related_article_id\":%d%%", relatedID)
	var candidates []model.ArticleRelation
	if err := r.db.Where("related LIKE ?", pattern).Find(&candidates).Error; err != nil {
		return err
	}

	for _, relation := range candidates {
		items, err := decodeItems(relation.Related)
		if err != nil {
			log.Warnf("[RelationRepository] 清除引用时无法解析文章 %d 的条目: %v", relation.ArticleID, err)
			continue
		}
		pruned, changed := pruneItems(items, relatedID)
		if !changed {
			continue
		}
		encoded, err := encodeItems(pruned)
		if err != nil {
			return fmt.Errorf("重编码文章 %d 的相关列表失败: %w", relation.ArticleID, err)
		}
		// 只改列表内容，不触碰 updated_at：清除引用不等于刷新
		if err := r.db.Model(&model.ArticleRelation{}).
			Where("article_id = ?", relation.ArticleID).
			UpdateColumn("related", encoded).Error; err != nil {
			return err
		}
	}
	return nil
}

// decodeItems 解码 Related 列中的 JSON 数组。
func decodeItems(encoded string) ([]model.RelatedItem, error) {
	if encoded == "" {
		return nil, nil
	}
	var items []model.RelatedItem
	if err := json.Unmarshal([]byte(encoded), &items); err != nil {
		return nil, err
	}
	return items, nil
}

// encodeItems 编码相关列表。nil 编码为空数组而非 null。
func encodeItems(items []model.RelatedItem) (string, error) {
	if items == nil {
		items = []model.RelatedItem{}
	}
	encoded, err := json.Marshal(items)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}

// pruneItems 从列表中移除指向 relatedID 的条目，保持其余条目的顺序。
func pruneItems(items []model.RelatedItem, relatedID uint) ([]model.RelatedItem, bool) {
	pruned := make([]model.RelatedItem, 0, len(items))
	changed := false
	for _, item := range items {
		if item.RelatedArticleID == relatedID {
			changed = true
			continue
		}
		pruned = append(pruned, item)
	}
	return pruned, changed
}
