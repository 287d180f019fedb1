package repository

import (
	"testing"
	"time"

	"feedscope-go/internal/model"
	"feedscope-go/pkg/log"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestMain(m *testing.M) {
	log.InitNop()
	m.Run()
}

func TestEncodeItemsNilBecomesEmptyArray(t *testing.T) {
	encoded, err := encodeItems(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", encoded)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	items := []model.RelatedItem{
		{RelatedArticleID: 12, Score: 0.91},
		{RelatedArticleID: 7, Score: 0.64},
	}
	encoded, err := encodeItems(items)
	require.NoError(t, err)

	decoded, err := decodeItems(encoded)
	require.NoError(t, err)
	assert.Equal(t, items, decoded)
}

func TestDecodeItemsEmptyString(t *testing.T) {
	items, err := decodeItems("")
	require.NoError(t, err)
	assert.Nil(t, items)
}

func TestDecodeItemsCorrupt(t *testing.T) {
	_, err := decodeItems("{not json")
	assert.Error(t, err)
}

func TestPruneItems(t *testing.T) {
	items := []model.RelatedItem{
		{RelatedArticleID: 1, Score: 0.9},
		{RelatedArticleID: 12, Score: 0.8},
		{RelatedArticleID: 3, Score: 0.7},
	}

	t.Run("removes first", func(t *testing.T) {
		pruned, changed := pruneItems(items, 1)
		assert.True(t, changed)
		assert.Equal(t, []model.RelatedItem{{RelatedArticleID: 12, Score: 0.8}, {RelatedArticleID: 3, Score: 0.7}}, pruned)
	})

	t.Run("removes middle", func(t *testing.T) {
		pruned, changed := pruneItems(items, 12)
		assert.True(t, changed)
		assert.Equal(t, []model.RelatedItem{{RelatedArticleID: 1, Score: 0.9}, {RelatedArticleID: 3, Score: 0.7}}, pruned)
	})

	t.Run("removes last", func(t *testing.T) {
		pruned, changed := pruneItems(items, 3)
		assert.True(t, changed)
		assert.Equal(t, []model.RelatedItem{{RelatedArticleID: 1, Score: 0.9}, {RelatedArticleID: 12, Score: 0.8}}, pruned)
	})

	// id 前缀不应误伤：清除 1 不能影响 12
	t.Run("no prefix collision", func(t *testing.T) {
		pruned, changed := pruneItems(items, 1)
		assert.True(t, changed)
		assert.Equal(t, uint(12), pruned[0].RelatedArticleID)
	})

	t.Run("absent id unchanged", func(t *testing.T) {
		pruned, changed := pruneItems(items, 99)
		assert.False(t, changed)
		assert.Equal(t, items, pruned)
	})
}

// seedIndexedArticle 写入一篇已通过过滤且处理完成的文章。
func seedIndexedArticle(t *testing.T, db *gorm.DB, id, userID uint) {
	t.Helper()
	require.NoError(t, db.Create(&model.Article{
		ID:            id,
		UserID:        userID,
		Title:         "article",
		FilterStatus:  model.FilterStatusAccepted,
		ProcessStatus: model.ProcessStatusCompleted,
	}).Error)
}

func TestUpsertOverwritesEntry(t *testing.T) {
	db := newTestDB(t)
	repo := NewRelationRepository(db)
	ts := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Upsert(1, 7, []model.RelatedItem{{RelatedArticleID: 2, Score: 0.9}}, ts))
	require.NoError(t, repo.Upsert(1, 7, []model.RelatedItem{{RelatedArticleID: 3, Score: 0.8}}, ts.Add(time.Hour)))

	relation, items, err := repo.Get(1)
	require.NoError(t, err)
	// 覆盖写入, 不追加
	require.Len(t, items, 1)
	assert.Equal(t, uint(3), items[0].RelatedArticleID)
	assert.Equal(t, ts.Add(time.Hour).Unix(), relation.UpdatedAt.Unix())
}

func TestGetMissingEntry(t *testing.T) {
	db := newTestDB(t)
	repo := NewRelationRepository(db)

	_, _, err := repo.Get(99)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestGetCorruptEntryTreatedAsMiss(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&model.ArticleRelation{ArticleID: 1, UserID: 7, Related: "{not json"}).Error)

	_, _, err := NewRelationRepository(db).Get(1)
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestFindStaleSelection(t *testing.T) {
	db := newTestDB(t)
	repo := NewRelationRepository(db)
	now := time.Now()
	day := 24 * time.Hour

	seedIndexedArticle(t, db, 1, 7)
	seedIndexedArticle(t, db, 2, 7)
	seedIndexedArticle(t, db, 3, 8)
	// 文章 4 尚未处理完成, 它的条目不应进入刷新队列
	require.NoError(t, db.Create(&model.Article{
		ID: 4, UserID: 7, Title: "pending",
		FilterStatus:  model.FilterStatusAccepted,
		ProcessStatus: model.ProcessStatusPending,
	}).Error)

	require.NoError(t, repo.Upsert(1, 7, nil, now.Add(-9*day)))
	require.NoError(t, repo.Upsert(2, 7, nil, now.Add(-8*day)))
	require.NoError(t, repo.Upsert(3, 8, nil, now.Add(-10*day)))
	require.NoError(t, repo.Upsert(4, 7, nil, now.Add(-30*day)))
	// 新鲜条目不入选
	require.NoError(t, repo.Upsert(5, 7, nil, now.Add(-day)))
	seedIndexedArticle(t, db, 5, 7)

	staleBefore := now.Add(-7 * day)

	relations, err := repo.FindStale(7, staleBefore, 10)
	require.NoError(t, err)
	require.Len(t, relations, 2)
	// 最旧的排在最前
	assert.Equal(t, uint(1), relations[0].ArticleID)
	assert.Equal(t, uint(2), relations[1].ArticleID)

	// userID 为 0 时跨用户选取
	relations, err = repo.FindStale(0, staleBefore, 10)
	require.NoError(t, err)
	require.Len(t, relations, 3)
	assert.Equal(t, uint(3), relations[0].ArticleID)

	relations, err = repo.FindStale(0, staleBefore, 1)
	require.NoError(t, err)
	require.Len(t, relations, 1)
}

func TestRemoveRelatedArticleKeepsPrefixedIDs(t *testing.T) {
	db := newTestDB(t)
	repo := NewRelationRepository(db)
	ts := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Upsert(10, 7, []model.RelatedItem{
		{RelatedArticleID: 1, Score: 0.9},
		{RelatedArticleID: 12, Score: 0.8},
	}, ts))
	require.NoError(t, repo.Upsert(20, 7, []model.RelatedItem{
		{RelatedArticleID: 12, Score: 0.7},
	}, ts))

	require.NoError(t, repo.RemoveRelatedArticle(1))

	relation, items, err := repo.Get(10)
	require.NoError(t, err)
	// 清除 1 不能误伤 12
	require.Len(t, items, 1)
	assert.Equal(t, uint(12), items[0].RelatedArticleID)
	// 清除引用不算刷新, updated_at 保持原值
	assert.Equal(t, ts.Unix(), relation.UpdatedAt.Unix())

	_, items, err = repo.Get(20)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, uint(12), items[0].RelatedArticleID)
}

func TestDeleteEntry(t *testing.T) {
	db := newTestDB(t)
	repo := NewRelationRepository(db)

	require.NoError(t, repo.Upsert(1, 7, nil, time.Now()))
	require.NoError(t, repo.Delete(1))

	_, _, err := repo.Get(1)
	assert.ErrorIs(t, err, ErrCacheMiss)
}
