package history

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/llmcouncil/backend/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func user(s string) domain.ChatMessage      { return domain.ChatMessage{Role: domain.RoleUser, Content: s} }
func assistant(s string) domain.ChatMessage { return domain.ChatMessage{Role: domain.RoleAssistant, Content: s} }
func system(s string) domain.ChatMessage    { return domain.ChatMessage{Role: domain.RoleSystem, Content: s} }

func conversation(turns int) []domain.ChatMessage {
	var out []domain.ChatMessage
	for i := 1; i <= turns; i++ {
		out = append(out, user(fmt.Sprintf("question %d", i)), assistant(fmt.Sprintf("answer %d", i)))
	}
	return out
}

func TestCompactWithinLimitsIsUnchanged(t *testing.T) {
	h := conversation(2)
	got := Compact(h, domain.HistoryPolicy{MaxTurns: 6, MaxTokens: 4000})
	assert.Equal(t, h, got)
}

func TestCompactDropsOldestTurns(t *testing.T) {
	got := Compact(conversation(5), domain.HistoryPolicy{MaxTurns: 2})
	require.Len(t, got, 5)
	assert.Equal(t, domain.RoleSystem, got[0].Role)
	assert.Equal(t, SummaryPrefix+"user: question 1; assistant: answer 1; user: question 2; assistant: answer 2; user: question 3; assistant: answer 3", got[0].Content)
	assert.Equal(t, []domain.ChatMessage{user("question 4"), assistant("answer 4"), user("question 5"), assistant("answer 5")}, got[1:])
}

func TestCompactKeepsTurnsStartingWithUser(t *testing.T) {
	h := append([]domain.ChatMessage{assistant("greeting")}, conversation(2)...)
	h = append(h, user("question 3"))
	// 最近 4 条以 assistant 开头，顺延到下一条 user
	got := Compact(h, domain.HistoryPolicy{MaxTurns: 2})
	assert.Equal(t, []domain.ChatMessage{user("question 2"), assistant("answer 2"), user("question 3")}, got[1:])
}

func TestCompactTokenBudget(t *testing.T) {
	long := strings.Repeat("x", 400)
	h := []domain.ChatMessage{user(long), assistant(long), user("short question")}
	got := Compact(h, domain.HistoryPolicy{MaxTokens: 110})
	require.Len(t, got, 3)
	assert.Equal(t, SummaryPrefix+"user: "+strings.Repeat("x", 200), got[0].Content)
	assert.Equal(t, assistant(long), got[1])
	assert.Equal(t, user("short question"), got[2])
}

func TestCompactTruncatesLastRemainingMessage(t *testing.T) {
	h := []domain.ChatMessage{system("be brief"), user(strings.Repeat("y", 1000))}
	got := Compact(h, domain.HistoryPolicy{MaxTokens: 50})
	require.Len(t, got, 2)
	assert.Equal(t, system("be brief"), got[0])
	assert.Equal(t, strings.Repeat("y", 48*4), got[1].Content)
}

func TestCompactPinsSystemMessagesAndFiltersRoles(t *testing.T) {
	h := []domain.ChatMessage{
		system("persona"),
		{Role: "tool", Content: "ignored"},
	}
	h = append(h, conversation(3)...)
	got := Compact(h, domain.HistoryPolicy{MaxTurns: 1})
	require.Len(t, got, 4)
	assert.True(t, strings.HasPrefix(got[0].Content, SummaryPrefix))
	assert.Equal(t, system("persona"), got[1])
	assert.Equal(t, []domain.ChatMessage{user("question 3"), assistant("answer 3")}, got[2:])
	for _, m := range got {
		assert.NotEqual(t, "tool", m.Role)
	}
}

func TestCompactCapsSummary(t *testing.T) {
	var h []domain.ChatMessage
	for i := 0; i < 40; i++ {
		h = append(h, user(strings.Repeat("q", 300)), assistant(strings.Repeat("a", 300)))
	}
	got := Compact(h, domain.HistoryPolicy{MaxTurns: 1})
	summary := Summary(got)
	assert.Len(t, []rune(summary), 2000)
	assert.True(t, strings.HasSuffix(summary, "assistant: "+strings.Repeat("a", 200)))
}

func TestCompactExtendsExistingSummary(t *testing.T) {
	h := append([]domain.ChatMessage{system(SummaryPrefix + "earlier stuff")}, conversation(2)...)
	got := Compact(h, domain.HistoryPolicy{MaxTurns: 1})
	assert.Equal(t, "earlier stuff\nuser: question 1; assistant: answer 1", Summary(got))
}

func TestCompactMergesSummaryMessages(t *testing.T) {
	long := strings.Repeat("x", 40)
	h := []domain.ChatMessage{
		system(long),
		user(long),
		system(SummaryPrefix),
		{Role: "tool", Content: "ignored"},
		system(SummaryPrefix + "xx"),
	}
	p := domain.HistoryPolicy{MaxTokens: 23}

	once := Compact(h, p)
	require.NotEmpty(t, once)
	assert.Equal(t, system(SummaryPrefix+"xx"), once[0])
	assert.Equal(t, system(long), once[1])
	assert.Equal(t, once, Compact(once, p))

	got := Compact([]domain.ChatMessage{system(SummaryPrefix + "first"), user("q"), system(SummaryPrefix + " second ")}, domain.HistoryPolicy{})
	assert.Equal(t, []domain.ChatMessage{system(SummaryPrefix + "first\nsecond"), user("q")}, got)
}

func TestCompactIsIdempotent(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	roles := []string{domain.RoleUser, domain.RoleAssistant, domain.RoleUser, domain.RoleAssistant, domain.RoleSystem, "tool"}

	for i := 0; i < 2000; i++ {
		var h []domain.ChatMessage
		n := rng.IntN(20)
		for j := 0; j < n; j++ {
			m := domain.ChatMessage{
				Role:    roles[rng.IntN(len(roles))],
				Content: strings.Repeat("w", rng.IntN(900)),
			}
			switch rng.IntN(8) {
			case 0:
				m = system(SummaryPrefix + strings.Repeat("x", rng.IntN(3)))
			case 1:
				m.Content += " "
			}
			h = append(h, m)
		}
		if rng.IntN(3) == 0 {
			h = append([]domain.ChatMessage{system(SummaryPrefix + strings.Repeat("s", rng.IntN(2500)))}, h...)
		}
		p := domain.HistoryPolicy{MaxTurns: rng.IntN(5), MaxTokens: rng.IntN(600)}

		once := Compact(h, p)
		twice := Compact(once, p)
		require.Equal(t, once, twice, "case %d, policy %+v", i, p)
	}
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 1, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abc"))
	assert.Equal(t, 25, EstimateTokens(strings.Repeat("a", 100)))
	assert.Equal(t, 1, EstimateTokens("你好世界"))
}
