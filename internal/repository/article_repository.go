// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"errors"

	"feedscope-go/internal/model"

	"gorm.io/gorm"
)

// ErrArticleNotFound 表示按 id 查找的文章不存在。
var ErrArticleNotFound = errors.New("article not found")

// ArticleRepository 接口定义了文章相关的数据读取操作。
// 文章记录的写入归抓取管线所有，本子系统只读。
type ArticleRepository interface {
	FindByID(id uint) (*model.Article, error)
	FindBatchByIDs(ids []uint) ([]*model.Article, error)
	// KeywordSearch 执行关键词检索：记录须匹配全部词项（AND），
	// 每个词项可命中标题/摘要/正文中的任意字段（OR）。
	KeywordSearch(userID uint, terms []string, limit, offset int) ([]*model.Article, error)
}

// articleRepository 是 ArticleRepository 接口的 GORM 实现。
type articleRepository struct {
	db *gorm.DB
}

// NewArticleRepository 创建一个新的 ArticleRepository 实例。
func NewArticleRepository(db *gorm.DB) ArticleRepository {
	return &articleRepository{db: db}
}

// FindByID 根据主键检索文章。
func (r *articleRepository) FindByID(id uint) (*model.Article, error) {
	var article model.Article
	if err := r.db.First(&article, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrArticleNotFound
		}
		return nil, err
	}
	return &article, nil
}

// FindBatchByIDs 批量检索文章。
func (r *articleRepository) FindBatchByIDs(ids []uint) ([]*model.Article, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var articles []*model.Article
	err := r.db.Where("id IN ?", ids).Find(&articles).Error
	return articles, err
}

// KeywordSearch 对标题/摘要/正文做 LIKE 检索。
func (r *articleRepository) KeywordSearch(userID uint, terms []string, limit, offset int) ([]*model.Article, error) {
	if len(terms) == 0 {
		return nil, nil
	}

	query := r.db.Model(&model.Article{}).Where("user_id = ?", userID)
	for _, term := range terms {
		pattern := "%" + term + "%"
		query = query.Where("title LIKE ? OR summary LIKE ? OR content LIKE ?", pattern, pattern, pattern)
	}

	var articles []*model.Article
	err := query.Order("published_at DESC").Limit(limit).Offset(offset).Find(&articles).Error
	return articles, err
}
