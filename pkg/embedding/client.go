// Package embedding provides a client for interacting with embedding models.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"feedscope-go/internal/config"
	"feedscope-go/pkg/log"
)

// Error 表示一次 Embedding 调用的失败（网络、超时或响应格式非法）。
// 写路径（索引队列）将其视为可重试错误。
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("embedding %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Client defines the interface for an embedding client.
// userID 用于解析该用户生效的 Embedding 供应商配置。
type Client interface {
	Embed(ctx context.Context, userID uint, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, userID uint, texts []string) ([][]float32, error)
}

type openAICompatibleClient struct {
	cfg    config.EmbeddingConfig
	client *http.Client
}

// NewClient creates a new embedding client based on the provider in the config.
func NewClient(cfg config.EmbeddingConfig) Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &openAICompatibleClient{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// resolveConfig 解析指定用户生效的供应商配置。当前所有用户共用全局
// 配置，按用户覆盖时只需要改这里。
func (c *openAICompatibleClient) resolveConfig(userID uint) config.EmbeddingConfig {
	return c.cfg
}

// Embed calls the OpenAI-compatible API to get the vector for a given text.
func (c *openAICompatibleClient) Embed(ctx context.Context, userID uint, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, userID, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch 批量向量化。返回的向量与输入文本按位置一一对应。
func (c *openAICompatibleClient) EmbedBatch(ctx context.Context, userID uint, texts []string) ([][]float32, error) {
	cfg := c.resolveConfig(userID)
	log.Infof("[EmbeddingClient] 开始调用 Embedding API, model: %s, batch: %d", cfg.Model, len(texts))

	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, &Error{Op: "request", Err: fmt.Errorf("input %d is empty", i)}
		}
	}

	reqBody := embeddingRequest{
		Model:      cfg.Model,
		Input:      texts,
		Dimensions: cfg.Dimensions,
	}

	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, &Error{Op: "request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, "POST", cfg.BaseURL+"/embeddings", bytes.NewReader(reqBytes))
	if err != nil {
		return nil, &Error{Op: "request", Err: err}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		log.Errorf("[EmbeddingClient] 调用 Embedding API 失败, error: %v", err)
		return nil, &Error{Op: "call", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Errorf("[EmbeddingClient] Embedding API 返回非 200 状态码: %s", resp.Status)
		return nil, &Error{Op: "call", Err: fmt.Errorf("non-200 status: %s", resp.Status)}
	}

	var embeddingResp embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&embeddingResp); err != nil {
		log.Errorf("[EmbeddingClient] 解析 Embedding API 响应失败, error: %v", err)
		return nil, &Error{Op: "decode", Err: err}
	}

	if len(embeddingResp.Data) != len(texts) {
		log.Warnf("[EmbeddingClient] Embedding API 返回数量不匹配: want %d, got %d", len(texts), len(embeddingResp.Data))
		return nil, &Error{Op: "decode", Err: fmt.Errorf("expected %d embeddings, got %d", len(texts), len(embeddingResp.Data))}
	}

	// 按 index 字段还原顺序，保证与输入一一对应
	vectors := make([][]float32, len(texts))
	for i, d := range embeddingResp.Data {
		idx := d.Index
		if idx < 0 || idx >= len(texts) {
			idx = i
		}
		if len(d.Embedding) == 0 {
			return nil, &Error{Op: "decode", Err: fmt.Errorf("empty embedding at index %d", idx)}
		}
		vectors[idx] = d.Embedding
	}
	for i, v := range vectors {
		if v == nil {
			return nil, &Error{Op: "decode", Err: fmt.Errorf("missing embedding at index %d", i)}
		}
	}

	log.Infof("[EmbeddingClient] 成功从 Embedding API 获取 %d 个向量, 维度: %d", len(vectors), len(vectors[0]))
	return vectors, nil
}
