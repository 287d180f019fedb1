// Package vector 在 Chroma 客户端之上提供按用户隔离的向量存取。
package vector

import (
	"context"
	"fmt"
	"strconv"

	"feedscope-go/pkg/chroma"
)

// Backend 是向量后端的窄接口，pkg/chroma 的 Client 是其生产实现。
// 业务层只依赖本接口，测试时用内存实现替换。
type Backend interface {
	DistanceMetric() string
	GetOrCreateCollection(ctx context.Context, name string) (string, error)
	Upsert(ctx context.Context, collectionID string, ids []string, embeddings [][]float32, metadatas []map[string]interface{}, documents []string) error
	Query(ctx context.Context, collectionID string, embedding []float32, topK int, where map[string]interface{}) (*chroma.QueryResult, error)
	Delete(ctx context.Context, collectionID string, ids []string) error
}

// Hit 是一次近邻查询的单条命中，Similarity 已按度量统一归一化。
type Hit struct {
	ID         string
	ArticleID  uint
	Similarity float64
	Metadata   map[string]interface{}
	Document   string
}

// Store 是某个用户逻辑集合上的向量存取句柄。
type Store struct {
	backend      Backend
	collectionID string
	userID       uint
}

// RecordID 生成向量记录的主键，形如 "{userID}:{articleID}"。
// 同一 (用户, 文章) 至多存在一条记录，重复索引按此键覆盖。
func RecordID(userID, articleID uint) string {
	return fmt.Sprintf("%d:%d", userID, articleID)
}

// CollectionName 生成用户逻辑集合的名字。
func CollectionName(userID uint) string {
	return fmt.Sprintf("articles_user_%d", userID)
}

// Upsert 覆盖写入向量记录。空输入为 no-op，数组长度不一致直接报错。
func (s *Store) Upsert(ctx context.Context, ids []string, embeddings [][]float32, metadatas []map[string]interface{}, documents []string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.backend.Upsert(ctx, s.collectionID, ids, embeddings, metadatas, documents)
}

// Query 返回与给定向量最相似的 topK 条命中，按相似度降序。
// 相似度的归一化规则：内积度量直接取原始距离，其余度量取 1 - 距离。
func (s *Store) Query(ctx context.Context, embedding []float32, topK int, where map[string]interface{}) ([]Hit, error) {
	result, err := s.backend.Query(ctx, s.collectionID, embedding, topK, where)
	if err != nil {
		return nil, err
	}

	innerProduct := s.backend.DistanceMetric() == "ip"
	hits := make([]Hit, 0, len(result.IDs))
	for i, id := range result.IDs {
		similarity := result.Distances[i]
		if !innerProduct {
			similarity = 1 - similarity
		}
		hit := Hit{ID: id, Similarity: similarity}
		if i < len(result.Metadatas) {
			hit.Metadata = result.Metadatas[i]
			hit.ArticleID = articleIDFromMetadata(result.Metadatas[i])
		}
		if i < len(result.Documents) {
			hit.Document = result.Documents[i]
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// Remove 按 id 删除向量记录。空输入为 no-op。
func (s *Store) Remove(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return s.backend.Delete(ctx, s.collectionID, ids)
}

// articleIDFromMetadata 从元数据解析 article_id。缺失或非法时返回 0，
// 调用方不得把 0 当作真实文章引用。
func articleIDFromMetadata(metadata map[string]interface{}) uint {
	if metadata == nil {
		return 0
	}
	switch v := metadata["article_id"].(type) {
	case float64:
		if v < 0 {
			return 0
		}
		return uint(v)
	case int:
		if v < 0 {
			return 0
		}
		return uint(v)
	case string:
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return 0
		}
		return uint(id)
	default:
		return 0
	}
}
