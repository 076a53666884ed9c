package domain

import (
	"slices"
	"strings"

	"github.com/duke-git/lancet/v2/maputil"
)

// 消息角色
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage 发往模型网关的单条对话消息
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// TokenUsage 单次模型调用的 token 用量
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add 累加用量
func (u TokenUsage) Add(other TokenUsage) TokenUsage {
	return TokenUsage{
		PromptTokens:     u.PromptTokens + other.PromptTokens,
		CompletionTokens: u.CompletionTokens + other.CompletionTokens,
		TotalTokens:      u.TotalTokens + other.TotalTokens,
	}
}

// HistoryPolicy 历史压缩策略
type HistoryPolicy struct {
	MaxTurns  int `json:"max_turns"`
	MaxTokens int `json:"max_tokens"`
}

// CouncilQuery 一次议会轮次的输入，开始运行后不再修改
type CouncilQuery struct {
	Query         string            `json:"query"`
	Models        []string          `json:"council_models"`
	Chairman      string            `json:"chairman_model"`
	SystemPrompt  string            `json:"system_prompt,omitempty"`
	PersonaMap    map[string]string `json:"persona_map,omitempty"`
	HistoryPolicy *HistoryPolicy    `json:"history_policy,omitempty"`
	// GenerateTitle 为 true 时与议会并发生成会话标题
	GenerateTitle bool `json:"-"`
}

// PersonaFor 解析某个模型在 Stage 1 使用的 persona 提示词。
// 先精确匹配模型 ID，再按基础名（最后一个 / 之后、: 之前）匹配；
// 多个键的基础名相同时取字典序最小的键。
func (q CouncilQuery) PersonaFor(model string) (string, bool) {
	if len(q.PersonaMap) == 0 {
		return "", false
	}
	if prompt, ok := q.PersonaMap[model]; ok && prompt != "" {
		return prompt, true
	}
	base := ModelBaseName(model)
	keys := maputil.Keys(q.PersonaMap)
	slices.Sort(keys)
	for _, key := range keys {
		if prompt := q.PersonaMap[key]; prompt != "" && ModelBaseName(key) == base {
			return prompt, true
		}
	}
	return "", false
}

// ModelBaseName "nousresearch/hermes-4-405b:free" -> "hermes-4-405b"
func ModelBaseName(model string) string {
	if i := strings.LastIndex(model, "/"); i >= 0 {
		model = model[i+1:]
	}
	if i := strings.Index(model, ":"); i >= 0 {
		model = model[:i]
	}
	return model
}

// MemberResponse Stage 1 中单个议员的回答
type MemberResponse struct {
	Model    string     `json:"model"`
	Response string     `json:"response"`
	Usage    TokenUsage `json:"usage"`
	Error    string     `json:"error,omitempty"`
}

func (r MemberResponse) Failed() bool {
	return r.Error != ""
}

// RankingResult Stage 2 中单个模型给出的匿名排名
type RankingResult struct {
	Model         string     `json:"model"`
	Ranking       string     `json:"ranking"`
	ParsedRanking []string   `json:"parsed_ranking"`
	ParseFailed   bool       `json:"parse_failed,omitempty"`
	Usage         TokenUsage `json:"usage"`
	Error         string     `json:"error,omitempty"`
}

// Usable 只有调用成功且解析成功的排名参与聚合
func (r RankingResult) Usable() bool {
	return r.Error == "" && !r.ParseFailed && len(r.ParsedRanking) > 0
}

// AggregateRanking 聚合后的单个模型名次
type AggregateRanking struct {
	Model         string  `json:"model"`
	AverageRank   float64 `json:"average_rank"`
	RankingsCount int     `json:"rankings_count"`
}

// ChairmanResult Stage 3 主席综合结果
type ChairmanResult struct {
	Model    string     `json:"model"`
	Response string     `json:"response"`
	Usage    TokenUsage `json:"usage"`
}

// TurnMetadata stage2_complete 事件及持久化分析中的元信息
type TurnMetadata struct {
	LabelToModel      map[string]string  `json:"label_to_model"`
	AggregateRankings []AggregateRanking `json:"aggregate_rankings"`
	Stage2Skipped     bool               `json:"stage2_skipped,omitempty"`
}

// TokenTotals 成本统计中的 token 汇总
type TokenTotals struct {
	Prompt     int `json:"prompt"`
	Completion int `json:"completion"`
	Total      int `json:"total"`
}

func (t *TokenTotals) AddUsage(u TokenUsage) {
	t.Prompt += u.PromptTokens
	t.Completion += u.CompletionTokens
	t.Total += u.TotalTokens
}

func (t *TokenTotals) Add(o TokenTotals) {
	t.Prompt += o.Prompt
	t.Completion += o.Completion
	t.Total += o.Total
}

// ModelCost 单个模型在某阶段的花费
type ModelCost struct {
	Cost   float64     `json:"cost"`
	Tokens TokenTotals `json:"tokens"`
}

// StageCost 单阶段花费
type StageCost struct {
	Cost     float64              `json:"cost"`
	Tokens   TokenTotals          `json:"tokens"`
	PerModel map[string]ModelCost `json:"per_model,omitempty"`
}

// CostBreakdown costs 事件载荷
type CostBreakdown struct {
	Stage1 StageCost `json:"stage1"`
	Stage2 StageCost `json:"stage2"`
	Stage3 StageCost `json:"stage3"`
	Total  StageCost `json:"total"`
}

// Pricing 单价，单位：美元 / token
type Pricing struct {
	Prompt     float64 `json:"prompt"`
	Completion float64 `json:"completion"`
}

// TurnResult 一个完整轮次的结果
type TurnResult struct {
	Stage1   []MemberResponse `json:"stage1"`
	Stage2   []RankingResult  `json:"stage2"`
	Stage3   *ChairmanResult  `json:"stage3"`
	Metadata TurnMetadata     `json:"metadata"`
	Costs    *CostBreakdown   `json:"costs,omitempty"`
	Title    string           `json:"title,omitempty"`
}

// SuccessfulMembers 返回 Stage 1 中未出错的回答，保持原有顺序
func (r *TurnResult) SuccessfulMembers() []MemberResponse {
	out := make([]MemberResponse, 0, len(r.Stage1))
	for _, m := range r.Stage1 {
		if !m.Failed() {
			out = append(out, m)
		}
	}
	return out
}
