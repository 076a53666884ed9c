package council

import (
	"context"
	"strings"
	"time"

	"github.com/llmcouncil/backend/internal/domain"
	"github.com/llmcouncil/backend/internal/pkg/llm"
	"k8s.io/klog/v2"
)

// DefaultTitle 标题生成失败时的兜底
const DefaultTitle = "New Conversation"

const (
	titleMaxLen  = 50
	titleTimeout = 30 * time.Second
)

// GenerateTitle 用标题模型为首条消息生成 3-5 个词的标题
func GenerateTitle(ctx context.Context, gateway llm.Gateway, model, query string) string {
	if model == "" || strings.TrimSpace(query) == "" {
		return DefaultTitle
	}
	resp, err := gateway.Complete(ctx, llm.Request{
		Model:    model,
		Messages: []domain.ChatMessage{{Role: domain.RoleUser, Content: buildTitlePrompt(query)}},
		Timeout:  titleTimeout,
	})
	if err != nil {
		klog.Warningf("GenerateTitle: model=%s failed: %v", model, err)
		return DefaultTitle
	}
	return CleanTitle(resp.Text)
}

// CleanTitle 去掉首尾引号与空白，超长时截断为 47 个字符加 "..."
func CleanTitle(raw string) string {
	title := strings.TrimSpace(raw)
	if i := strings.IndexByte(title, '\n'); i >= 0 {
		title = strings.TrimSpace(title[:i])
	}
	title = strings.TrimSpace(strings.Trim(title, `"'`))
	if title == "" {
		return DefaultTitle
	}
	runes := []rune(title)
	if len(runes) > titleMaxLen {
		title = string(runes[:titleMaxLen-3]) + "..."
	}
	return title
}
