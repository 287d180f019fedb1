// Package rerank 提供了一个与重排序服务交互的客户端。
package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"feedscope-go/internal/config"
	"feedscope-go/pkg/log"
)

// Error 表示一次重排序调用的失败。重排是可选环节，调用方在出错时应
// 保留原有排序而不是让请求失败。
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("rerank %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// RankedDocument 指向输入文档数组中的一个位置及其新得分。
type RankedDocument struct {
	Index int     `json:"index"`
	Score float64 `json:"relevance_score"`
}

// Client defines the interface for a rerank client.
type Client interface {
	Rerank(ctx context.Context, query string, documents []string, topN int) ([]RankedDocument, error)
}

type httpClient struct {
	cfg    config.RerankConfig
	client *http.Client
}

// NewClient 创建一个新的重排序客户端实例。
func NewClient(cfg config.RerankConfig) Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &httpClient{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
	TopN      int      `json:"top_n"`
}

type rerankResponse struct {
	Results []RankedDocument `json:"results"`
}

// Rerank 对候选文档重新打分，返回的 Index 按位置引用输入数组。
func (c *httpClient) Rerank(ctx context.Context, query string, documents []string, topN int) ([]RankedDocument, error) {
	if len(documents) == 0 {
		return nil, nil
	}
	log.Infof("[RerankClient] 开始调用 Rerank API, model: %s, docs: %d, topN: %d", c.cfg.Model, len(documents), topN)

	reqBytes, err := json.Marshal(rerankRequest{
		Model:     c.cfg.Model,
		Query:     query,
		Documents: documents,
		TopN:      topN,
	})
	if err != nil {
		return nil, &Error{Op: "request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.cfg.BaseURL+"/rerank", bytes.NewReader(reqBytes))
	if err != nil {
		return nil, &Error{Op: "request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		log.Errorf("[RerankClient] 调用 Rerank API 失败: %v", err)
		return nil, &Error{Op: "call", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Errorf("[RerankClient] Rerank API 返回非 200 状态码: %s", resp.Status)
		return nil, &Error{Op: "call", Err: fmt.Errorf("non-200 status: %s", resp.Status)}
	}

	var rerankResp rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&rerankResp); err != nil {
		return nil, &Error{Op: "decode", Err: err}
	}

	// 引用越界的结果直接视为响应非法
	for _, r := range rerankResp.Results {
		if r.Index < 0 || r.Index >= len(documents) {
			return nil, &Error{Op: "decode", Err: fmt.Errorf("result index %d out of range", r.Index)}
		}
	}

	log.Infof("[RerankClient] Rerank 成功, 返回 %d 条结果", len(rerankResp.Results))
	return rerankResp.Results, nil
}
