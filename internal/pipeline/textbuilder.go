package pipeline

import (
	"strings"

	"feedscope-go/internal/model"
)

// BuildVectorText 生成文章的规范向量化文本。结果只由标题/摘要/正文
// 决定，字段为空时整段省略，从不输出空的标签段。索引队列靠这种
// 确定性来识别无变化的重复索引请求。
func BuildVectorText(article *model.Article) string {
	var sections []string

	if title := strings.TrimSpace(article.Title); title != "" {
		sections = append(sections, "TITLE:\n"+title)
	}
	if summary := strings.TrimSpace(article.Summary); summary != "" {
		sections = append(sections, "SUMMARY:\n"+summary)
	}
	if content := strings.TrimSpace(article.Content); content != "" {
		sections = append(sections, "CONTENT:\n"+content)
	}

	return strings.Join(sections, "\n\n")
}
