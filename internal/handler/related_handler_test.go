package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"feedscope-go/internal/model"
	"feedscope-go/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRelatedService struct {
	related      []model.RelatedArticle
	err          error
	batchResults []service.RefreshResult
	lastArticle  uint
	lastUser     uint
	refreshed    bool
}

func (s *stubRelatedService) GetRelatedArticles(ctx context.Context, articleID, userID uint, limit int) ([]model.RelatedArticle, error) {
	s.lastArticle, s.lastUser = articleID, userID
	return s.related, s.err
}

func (s *stubRelatedService) RefreshRelatedArticles(ctx context.Context, articleID, userID uint, limit int) ([]model.RelatedArticle, error) {
	s.lastArticle, s.lastUser = articleID, userID
	s.refreshed = true
	return s.related, s.err
}

func (s *stubRelatedService) IncrementalRefresh(ctx context.Context, newArticleID, userID uint, opts service.RefreshOptions) []service.RefreshResult {
	return nil
}

func (s *stubRelatedService) BatchRefresh(ctx context.Context, userID uint, opts service.RefreshOptions) []service.RefreshResult {
	s.lastUser = userID
	return s.batchResults
}

func newRelatedRouter(svc *stubRelatedService) *gin.Engine {
	r := gin.New()
	h := NewRelatedHandler(svc)
	r.GET("/api/v1/articles/:id/related", h.GetRelated)
	r.POST("/api/v1/articles/:id/related/refresh", h.RefreshRelated)
	r.POST("/api/v1/related/batch-refresh", h.BatchRefresh)
	return r
}

func TestGetRelatedHandler(t *testing.T) {
	svc := &stubRelatedService{
		related: []model.RelatedArticle{{ArticleID: 10, Score: 0.9}},
	}
	router := newRelatedRouter(svc)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/articles/42/related?userId=7", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, uint(42), svc.lastArticle)
	assert.Equal(t, uint(7), svc.lastUser)
	assert.False(t, svc.refreshed)

	var body struct {
		Data []model.RelatedArticle `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, uint(10), body.Data[0].ArticleID)
}

func TestGetRelatedHandlerBadArticleID(t *testing.T) {
	router := newRelatedRouter(&stubRelatedService{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/articles/abc/related?userId=7", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRefreshRelatedHandler(t *testing.T) {
	svc := &stubRelatedService{}
	router := newRelatedRouter(svc)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/articles/42/related/refresh?userId=7", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, svc.refreshed)
}

func TestBatchRefreshHandlerReportsPerItemErrors(t *testing.T) {
	svc := &stubRelatedService{
		batchResults: []service.RefreshResult{
			{ArticleID: 1, Success: true},
			{ArticleID: 2, Success: false, Err: errors.New("embedding down")},
		},
	}
	router := newRelatedRouter(svc)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/related/batch-refresh?userId=7", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data []struct {
			ArticleID uint   `json:"articleId"`
			Success   bool   `json:"success"`
			Error     string `json:"error"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data, 2)
	assert.True(t, body.Data[0].Success)
	assert.False(t, body.Data[1].Success)
	assert.Equal(t, "embedding down", body.Data[1].Error)
}
