package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"feedscope-go/internal/config"
	"feedscope-go/internal/model"
	"feedscope-go/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	log.InitNop()
	gin.SetMode(gin.TestMode)
	m.Run()
}

type stubSearchService struct {
	req  model.SearchRequest
	resp *model.SearchResponse
	err  error
}

func (s *stubSearchService) Search(ctx context.Context, req model.SearchRequest) (*model.SearchResponse, error) {
	s.req = req
	if s.err != nil {
		return nil, s.err
	}
	return s.resp, nil
}

func newSearchRouter(svc *stubSearchService) *gin.Engine {
	return newSearchRouterWithCfg(svc, config.SearchConfig{FallbackEnabled: true})
}

func newSearchRouterWithCfg(svc *stubSearchService, cfg config.SearchConfig) *gin.Engine {
	r := gin.New()
	r.GET("/api/v1/search", NewSearchHandler(svc, cfg).Search)
	return r
}

func TestSearchHandlerParsesRequest(t *testing.T) {
	svc := &stubSearchService{resp: &model.SearchResponse{Mode: model.ModeHybrid}}
	router := newSearchRouter(svc)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet,
		"/api/v1/search?userId=7&mode=hybrid&query=go+generics&limit=20&offset=10&semanticWeight=0.6&keywordWeight=0.4&normalizeScores=false&fallback=false", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, uint(7), svc.req.UserID)
	assert.Equal(t, model.ModeHybrid, svc.req.Mode)
	assert.Equal(t, "go generics", svc.req.Query)
	assert.Equal(t, 20, svc.req.Limit)
	assert.Equal(t, 10, svc.req.Offset)
	assert.InDelta(t, 0.6, svc.req.SemanticWeight, 1e-9)
	assert.InDelta(t, 0.4, svc.req.KeywordWeight, 1e-9)
	assert.False(t, svc.req.NormalizeScores)
	assert.False(t, svc.req.FallbackEnabled)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.EqualValues(t, 200, body["code"])
	assert.Equal(t, "success", body["message"])
}

func TestSearchHandlerDefaults(t *testing.T) {
	svc := &stubSearchService{resp: &model.SearchResponse{Mode: model.ModeHybrid}}
	router := newSearchRouter(svc)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/search?userId=7&query=go", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.ModeHybrid, svc.req.Mode, "缺省模式应为 hybrid")
	assert.True(t, svc.req.NormalizeScores)
	assert.True(t, svc.req.UseCache)
	assert.False(t, svc.req.RefreshCache)
	assert.True(t, svc.req.FallbackEnabled)
}

func TestSearchHandlerFallbackDefaultFromConfig(t *testing.T) {
	svc := &stubSearchService{resp: &model.SearchResponse{Mode: model.ModeHybrid}}
	router := newSearchRouterWithCfg(svc, config.SearchConfig{FallbackEnabled: false})

	// 缺省取配置值
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/search?userId=7&query=go", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, svc.req.FallbackEnabled)

	// 请求参数仍可覆盖配置
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/search?userId=7&query=go&fallback=true", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, svc.req.FallbackEnabled)
}

func TestSearchHandlerMissingUserID(t *testing.T) {
	router := newSearchRouter(&stubSearchService{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/search?query=go", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSearchHandlerServiceError(t *testing.T) {
	svc := &stubSearchService{err: assert.AnError}
	router := newSearchRouter(svc)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/search?userId=7&query=go", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
