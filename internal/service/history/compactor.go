package history

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/duke-git/lancet/v2/slice"
	"github.com/llmcouncil/backend/internal/domain"
	"k8s.io/klog/v2"
)

// SummaryPrefix 压缩摘要以 system 消息的形式放在历史最前面
const SummaryPrefix = "Conversation summary so far: "

const (
	maxSummaryLen = 2000
	snippetLen    = 200
	charsPerToken = 4
)

// EstimateTokens 粗略估算：4 个字符约 1 个 token
func EstimateTokens(text string) int {
	return max(1, utf8.RuneCountInString(text)/charsPerToken)
}

// Compact 把完整对话压缩为传给每个阶段的上下文窗口。
// 只保留 system/user/assistant 消息；非摘要的 system 消息始终保留；
// 先按 MaxTurns 丢弃最旧的轮次，再按 MaxTokens 丢弃最旧的消息，仍超出时截断剩下的最早一条。
// 已有的摘要消息合并为一条，被丢弃的内容追加进摘要（最多 2000 字符）。对同一 policy 重复压缩结果不变。
func Compact(messages []domain.ChatMessage, policy domain.HistoryPolicy) []domain.ChatMessage {
	messages = slice.Filter(messages, func(_ int, m domain.ChatMessage) bool {
		return m.Role == domain.RoleSystem || m.Role == domain.RoleUser || m.Role == domain.RoleAssistant
	})

	var (
		summaries []string
		pinned    []domain.ChatMessage
		turns     []domain.ChatMessage
	)
	for _, m := range messages {
		switch {
		case m.Role == domain.RoleSystem && strings.HasPrefix(m.Content, SummaryPrefix):
			// 多条摘要合并为一条，空摘要丢弃
			if text := strings.TrimSpace(strings.TrimPrefix(m.Content, SummaryPrefix)); text != "" {
				summaries = append(summaries, text)
			}
		case m.Role == domain.RoleSystem:
			pinned = append(pinned, m)
		default:
			turns = append(turns, m)
		}
	}

	var dropped []string

	if policy.MaxTurns > 0 {
		limit := policy.MaxTurns * 2
		if len(turns) > limit {
			cut := len(turns) - limit
			// 保留部分从 user 消息开始，避免孤立的 assistant 回答
			for cut < len(turns) && turns[cut].Role != domain.RoleUser {
				cut++
			}
			for _, m := range turns[:cut] {
				dropped = append(dropped, snippet(m))
			}
			turns = turns[cut:]
		}
	}

	if policy.MaxTokens > 0 {
		budget := policy.MaxTokens
		for len(turns) > 1 && totalTokens(pinned)+totalTokens(turns) > budget {
			dropped = append(dropped, snippet(turns[0]))
			turns = turns[1:]
		}
		if len(turns) == 1 && totalTokens(pinned)+totalTokens(turns) > budget {
			limit := max(1, budget-totalTokens(pinned)) * charsPerToken
			if utf8.RuneCountInString(turns[0].Content) > limit {
				turns = []domain.ChatMessage{{
					Role:    turns[0].Role,
					Content: string([]rune(turns[0].Content)[:limit]),
				}}
			}
		}
	}

	if len(dropped) > 0 {
		klog.V(6).Infof("history.Compact: dropped %d message(s), kept %d", len(dropped), len(turns))
		summaries = append(summaries, strings.Join(dropped, "; "))
	}
	summary := strings.TrimSpace(strings.Join(summaries, "\n"))
	if runes := []rune(summary); len(runes) > maxSummaryLen {
		summary = strings.TrimSpace(string(runes[len(runes)-maxSummaryLen:]))
	}

	out := make([]domain.ChatMessage, 0, len(pinned)+len(turns)+1)
	if summary != "" {
		out = append(out, domain.ChatMessage{Role: domain.RoleSystem, Content: SummaryPrefix + summary})
	}
	out = append(out, pinned...)
	out = append(out, turns...)
	return out
}

// Summary 返回压缩结果中的摘要文本，没有时为空
func Summary(compacted []domain.ChatMessage) string {
	for _, m := range compacted {
		if m.Role == domain.RoleSystem && strings.HasPrefix(m.Content, SummaryPrefix) {
			return strings.TrimPrefix(m.Content, SummaryPrefix)
		}
	}
	return ""
}

func totalTokens(messages []domain.ChatMessage) int {
	n := 0
	for _, m := range messages {
		n += EstimateTokens(m.Content)
	}
	return n
}

func snippet(m domain.ChatMessage) string {
	content := m.Content
	if runes := []rune(content); len(runes) > snippetLen {
		content = string(runes[:snippetLen])
	}
	return fmt.Sprintf("%s: %s", m.Role, content)
}
