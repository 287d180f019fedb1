package pipeline

import (
	"testing"

	"feedscope-go/internal/model"

	"github.com/stretchr/testify/assert"
)

func TestBuildVectorText(t *testing.T) {
	article := &model.Article{
		Title:   "Go 并发模式",
		Summary: "errgroup 的典型用法",
		Content: "正文内容",
	}
	assert.Equal(t, "TITLE:\nGo 并发模式\n\nSUMMARY:\nerrgroup 的典型用法\n\nCONTENT:\n正文内容", BuildVectorText(article))
}

func TestBuildVectorTextOmitsEmptySections(t *testing.T) {
	article := &model.Article{
		Title:   "只有标题",
		Summary: "   ",
		Content: "",
	}
	assert.Equal(t, "TITLE:\n只有标题", BuildVectorText(article))
}

func TestBuildVectorTextAllEmpty(t *testing.T) {
	assert.Equal(t, "", BuildVectorText(&model.Article{Summary: "\n\t "}))
}

func TestBuildVectorTextDeterministic(t *testing.T) {
	article := &model.Article{Title: "t", Summary: "s", Content: "c"}
	first := BuildVectorText(article)
	second := BuildVectorText(article)
	assert.Equal(t, first, second)
}
