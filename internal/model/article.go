// Package model 定义了与数据库表对应的 Go 结构体。
package model

import "time"

// 文章的过滤与处理状态，与 articles 表中的枚举值对应。
const (
	FilterStatusPending  = "pending"
	FilterStatusAccepted = "accepted"
	FilterStatusRejected = "rejected"

	ProcessStatusPending    = "pending"
	ProcessStatusProcessing = "processing"
	ProcessStatusCompleted  = "completed"
	ProcessStatusFailed     = "failed"
)

// Article 对应于数据库中的 articles 表。
// 本子系统只读取文章记录，文章本身的增删改由订阅抓取管线负责。
type Article struct {
	ID            uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID        uint      `gorm:"not null;index" json:"userId"`
	Title         string    `gorm:"type:varchar(512);not null" json:"title"`
	URL           string    `gorm:"type:varchar(1024)" json:"url"`
	SourceName    string    `gorm:"type:varchar(255);column:source_name" json:"sourceName"`
	Summary       string    `gorm:"type:text" json:"summary"`
	Content       string    `gorm:"type:longtext" json:"content"`
	FilterStatus  string    `gorm:"type:varchar(20);not null;default:pending;column:filter_status" json:"filterStatus"`
	ProcessStatus string    `gorm:"type:varchar(20);not null;default:pending;column:process_status" json:"processStatus"`
	PublishedAt   time.Time `gorm:"column:published_at" json:"publishedAt"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (Article) TableName() string {
	return "articles"
}
