package rerank

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"feedscope-go/internal/config"
	"feedscope-go/pkg/log"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	log.InitNop()
	m.Run()
}

func newTestClient(baseURL string) Client {
	return NewClient(config.RerankConfig{
		Enabled: true,
		APIKey:  "test-key",
		BaseURL: baseURL,
		Model:   "rerank-v2",
	})
}

func TestRerank(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rerank", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "rerank-v2", req["model"])
		assert.Equal(t, "query", req["query"])
		assert.EqualValues(t, 2, req["top_n"])

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"results": []map[string]interface{}{
				{"index": 1, "relevance_score": 0.92},
				{"index": 0, "relevance_score": 0.31},
			},
		})
	}))
	defer server.Close()

	ranked, err := newTestClient(server.URL).Rerank(context.Background(), "query", []string{"doc-a", "doc-b"}, 2)
	require.NoError(t, err)
	require.Len(t, ranked, 2)
	assert.Equal(t, 1, ranked[0].Index)
	assert.InDelta(t, 0.92, ranked[0].Score, 1e-9)
}

func TestRerankEmptyDocuments(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	ranked, err := newTestClient(server.URL).Rerank(context.Background(), "query", nil, 5)
	require.NoError(t, err)
	assert.Nil(t, ranked)
	assert.False(t, called)
}

func TestRerankIndexOutOfRange(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"results": []map[string]interface{}{
				{"index": 5, "relevance_score": 0.9},
			},
		})
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Rerank(context.Background(), "query", []string{"doc-a"}, 1)
	require.Error(t, err)
	var rerankErr *Error
	assert.ErrorAs(t, err, &rerankErr)
	assert.Equal(t, "decode", rerankErr.Op)
}

func TestRerankNon200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Rerank(context.Background(), "query", []string{"doc-a"}, 1)
	assert.Error(t, err)
}
