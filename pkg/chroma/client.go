// Package chroma 提供了一个与 Chroma 向量数据库交互的 HTTP 客户端。
package chroma

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"feedscope-go/internal/config"
	"feedscope-go/pkg/log"
)

// BackendError 表示向量库后端调用失败（连接拒绝、集合缺失或响应格式非法）。
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("vector backend %s: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// QueryResult 是一次近邻查询的原始返回，距离尚未做相似度归一化。
type QueryResult struct {
	IDs       []string
	Distances []float64
	Metadatas []map[string]interface{}
	Documents []string
}

// Client 是 Chroma 服务的客户端。集合按名字寻址，距离度量在集合创建时
// 通过 hnsw:space 固定。
type Client struct {
	baseURL string
	metric  string
	client  *http.Client
}

// NewClient 创建一个新的 Chroma 客户端实例。
func NewClient(cfg config.ChromaConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: fmt.Sprintf("http://%s:%d/api/v1", cfg.Host, cfg.Port),
		metric:  cfg.DistanceMetric,
		client:  &http.Client{Timeout: timeout},
	}
}

// DistanceMetric 返回后端集合使用的距离度量（cosine / l2 / ip）。
func (c *Client) DistanceMetric() string {
	return c.metric
}

// GetOrCreateCollection 按名字获取集合，不存在则创建，返回集合 ID。
func (c *Client) GetOrCreateCollection(ctx context.Context, name string) (string, error) {
	reqBody := map[string]interface{}{
		"name":          name,
		"get_or_create": true,
		"metadata":      map[string]interface{}{"hnsw:space": c.metric},
	}

	var resp struct {
		ID string `json:"id"`
	}
	if err := c.post(ctx, "/collections", reqBody, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", &BackendError{Op: "get_or_create", Err: fmt.Errorf("collection '%s' has no id", name)}
	}
	log.Debugf("[ChromaClient] 集合 '%s' 就绪, id: %s", name, resp.ID)
	return resp.ID, nil
}

// Upsert 按 id 覆盖写入记录。四个数组长度必须一致；空数组为 no-op。
func (c *Client) Upsert(ctx context.Context, collectionID string, ids []string, embeddings [][]float32, metadatas []map[string]interface{}, documents []string) error {
	if len(ids) == 0 {
		return nil
	}
	if len(embeddings) != len(ids) || len(metadatas) != len(ids) || len(documents) != len(ids) {
		return &BackendError{Op: "upsert", Err: fmt.Errorf("array length mismatch: ids=%d embeddings=%d metadatas=%d documents=%d",
			len(ids), len(embeddings), len(metadatas), len(documents))}
	}

	reqBody := map[string]interface{}{
		"ids":        ids,
		"embeddings": embeddings,
		"metadatas":  metadatas,
		"documents":  documents,
	}
	return c.post(ctx, "/collections/"+collectionID+"/upsert", reqBody, nil)
}

// Query 查询与给定向量最近的 topK 条记录，按距离升序返回。
func (c *Client) Query(ctx context.Context, collectionID string, embedding []float32, topK int, where map[string]interface{}) (*QueryResult, error) {
	reqBody := map[string]interface{}{
		"query_embeddings": [][]float32{embedding},
		"n_results":        topK,
		"include":          []string{"distances", "metadatas", "documents"},
	}
	if len(where) > 0 {
		reqBody["where"] = where
	}

	// Chroma 的查询响应按查询向量分组，这里只有一个查询向量
	var resp struct {
		IDs       [][]string                 `json:"ids"`
		Distances [][]float64                `json:"distances"`
		Metadatas [][]map[string]interface{} `json:"metadatas"`
		Documents [][]*string                `json:"documents"`
	}
	if err := c.post(ctx, "/collections/"+collectionID+"/query", reqBody, &resp); err != nil {
		return nil, err
	}
	if len(resp.IDs) == 0 {
		return &QueryResult{}, nil
	}

	result := &QueryResult{IDs: resp.IDs[0]}
	if len(resp.Distances) > 0 {
		result.Distances = resp.Distances[0]
	}
	if len(resp.Metadatas) > 0 {
		result.Metadatas = resp.Metadatas[0]
	}
	if len(resp.Documents) > 0 {
		result.Documents = make([]string, len(resp.Documents[0]))
		for i, d := range resp.Documents[0] {
			if d != nil {
				result.Documents[i] = *d
			}
		}
	}
	if len(result.Distances) != len(result.IDs) {
		return nil, &BackendError{Op: "query", Err: fmt.Errorf("malformed response: %d ids but %d distances", len(result.IDs), len(result.Distances))}
	}
	return result, nil
}

// Delete 按 id 删除记录。空数组为 no-op。
func (c *Client) Delete(ctx context.Context, collectionID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	reqBody := map[string]interface{}{"ids": ids}
	return c.post(ctx, "/collections/"+collectionID+"/delete", reqBody, nil)
}

// post 发送一个 JSON POST 请求并按需解析响应体。
func (c *Client) post(ctx context.Context, path string, body interface{}, out interface{}) error {
	reqBytes, err := json.Marshal(body)
	if err != nil {
		return &BackendError{Op: path, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewReader(reqBytes))
	if err != nil {
		return &BackendError{Op: path, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		log.Errorf("[ChromaClient] 请求 %s 失败: %v", path, err)
		return &BackendError{Op: path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBytes, _ := io.ReadAll(resp.Body)
		log.Errorf("[ChromaClient] %s 返回错误 [%d]: %s", path, resp.StatusCode, string(respBytes))
		return &BackendError{Op: path, Err: fmt.Errorf("status %d: %s", resp.StatusCode, string(respBytes))}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &BackendError{Op: path, Err: fmt.Errorf("decode response: %w", err)}
		}
	}
	return nil
}
