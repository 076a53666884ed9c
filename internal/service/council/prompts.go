package council

import (
	"fmt"
	"strings"

	"github.com/llmcouncil/backend/internal/domain"
)

// anonymizedResponse 仅在构造 Stage 2 提示词时存在
type anonymizedResponse struct {
	Label    string
	Response string
}

// anonymize 按标签字母顺序排列所有存活回答
func anonymize(members []domain.MemberResponse, labels *LabelMap) []anonymizedResponse {
	byModel := make(map[string]string, len(members))
	for _, m := range members {
		byModel[m.Model] = m.Response
	}
	out := make([]anonymizedResponse, 0, labels.Len())
	for _, label := range labels.Labels() {
		model, _ := labels.Model(label)
		out = append(out, anonymizedResponse{Label: label, Response: byModel[model]})
	}
	return out
}

func buildRankingPrompt(query string, responses []anonymizedResponse) string {
	parts := make([]string, 0, len(responses))
	for _, r := range responses {
		parts = append(parts, fmt.Sprintf("%s:\n%s", r.Label, r.Response))
	}

	return fmt.Sprintf(`You are evaluating different responses to the following question:

Question: %s

Here are the responses from different models (anonymized):

%s

Your task:
1. First, evaluate each response individually. For each response, explain what it does well and what it does poorly.
2. Then, at the very end of your response, provide a final ranking.

IMPORTANT: Your final ranking MUST be formatted EXACTLY as follows:
- Start with the line "FINAL RANKING:" (all caps, with colon)
- Then list the responses from best to worst as a numbered list
- Each line should be: number, period, space, then ONLY the response label (e.g., "1. Response A")
- Do not add any other text or explanations in the ranking section

Example of the correct format for your ENTIRE response:

Response A provides good detail on X but misses Y...
Response B is accurate but lacks depth on Z...
Response C offers the most comprehensive answer...

FINAL RANKING:
1. Response C
2. Response A
3. Response B

Now provide your evaluation and ranking:`, query, strings.Join(parts, "\n\n"))
}

func buildChairmanPrompt(query string, members []domain.MemberResponse, rankings []domain.RankingResult, stage2Skipped bool) string {
	stage1 := make([]string, 0, len(members))
	for _, m := range members {
		stage1 = append(stage1, fmt.Sprintf("Model: %s\nResponse:\n%s", m.Model, m.Response))
	}

	var b strings.Builder
	b.WriteString("You are the Chairman of the LLM Council.\n\n")
	fmt.Fprintf(&b, "User Question:\n%s\n\n", query)
	fmt.Fprintf(&b, "STAGE 1 - Individual Responses:\n%s\n\n", strings.Join(stage1, "\n\n"))

	if !stage2Skipped {
		stage2 := make([]string, 0, len(rankings))
		for _, r := range rankings {
			if r.Error != "" {
				continue
			}
			stage2 = append(stage2, fmt.Sprintf("Model: %s\nRanking/Eval:\n%s", r.Model, r.Ranking))
		}
		if len(stage2) > 0 {
			fmt.Fprintf(&b, "STAGE 2 - Peer Rankings:\n%s\n\n", strings.Join(stage2, "\n\n"))
		}
	}

	b.WriteString(`Your task as Chairman is to synthesize all of this information into a single, comprehensive, accurate answer to the user's original question. Consider:
- The individual responses and their insights
`)
	if !stage2Skipped {
		b.WriteString("- The peer rankings and what they reveal about response quality\n")
	}
	b.WriteString(`- Any patterns of agreement or disagreement

Provide a clear, well-reasoned final answer that represents the council's collective wisdom:`)
	return b.String()
}

func buildTitlePrompt(query string) string {
	return fmt.Sprintf(`Generate a very short title (3-5 words maximum) that summarizes the following question.
The title should be concise and descriptive. Do not use quotes or punctuation in the title.

Question: %s

Title:`, query)
}

// composeMessages system 提示词 + 压缩后的历史 + 本阶段的 user 消息
func composeMessages(systemPrompt string, history []domain.ChatMessage, user string) []domain.ChatMessage {
	messages := make([]domain.ChatMessage, 0, len(history)+2)
	if strings.TrimSpace(systemPrompt) != "" {
		messages = append(messages, domain.ChatMessage{Role: domain.RoleSystem, Content: systemPrompt})
	}
	messages = append(messages, history...)
	messages = append(messages, domain.ChatMessage{Role: domain.RoleUser, Content: user})
	return messages
}
