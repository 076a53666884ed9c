package council

import (
	"context"
	"testing"
	"time"

	"github.com/llmcouncil/backend/config"
	"github.com/llmcouncil/backend/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticPricing map[string]domain.Pricing

func (p staticPricing) Pricing(context.Context) map[string]domain.Pricing {
	return p
}

func TestComputeCosts(t *testing.T) {
	result := &domain.TurnResult{
		Stage1: []domain.MemberResponse{
			{Model: "a", Usage: domain.TokenUsage{PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150}},
			{Model: "b", Usage: domain.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}},
			{Model: "c", Error: "boom"},
		},
		Stage2: []domain.RankingResult{
			{Model: "a", Usage: domain.TokenUsage{PromptTokens: 200, CompletionTokens: 20, TotalTokens: 220}, ParseFailed: true},
		},
		Stage3: &domain.ChairmanResult{Model: "chair", Usage: domain.TokenUsage{PromptTokens: 1000, CompletionTokens: 100, TotalTokens: 1100}},
	}
	pricing := map[string]domain.Pricing{
		"a":     {Prompt: 0.001, Completion: 0.002},
		"chair": {Prompt: 0.0001, Completion: 0.0002},
	}

	costs := ComputeCosts(result, pricing)

	assert.InDelta(t, 0.2, costs.Stage1.Cost, 1e-9)
	assert.Equal(t, domain.TokenTotals{Prompt: 110, Completion: 55, Total: 165}, costs.Stage1.Tokens)
	require.Contains(t, costs.Stage1.PerModel, "b")
	assert.Equal(t, 0.0, costs.Stage1.PerModel["b"].Cost, "unknown pricing costs nothing")
	assert.NotContains(t, costs.Stage1.PerModel, "c")

	assert.InDelta(t, 0.24, costs.Stage2.Cost, 1e-9)
	assert.InDelta(t, 0.12, costs.Stage3.Cost, 1e-9)
	assert.InDelta(t, 0.56, costs.Total.Cost, 1e-9)
	assert.Equal(t, 1485, costs.Total.Tokens.Total)
}

func TestOverridePricing(t *testing.T) {
	p := OverridePricing{
		Base: staticPricing{"a": {Prompt: 1, Completion: 1}, "b": {Prompt: 2, Completion: 2}},
		Overrides: map[string]config.PricingConfig{
			"b": {Prompt: 3, Completion: 15},
		},
	}
	got := p.Pricing(context.Background())
	assert.Equal(t, domain.Pricing{Prompt: 1, Completion: 1}, got["a"])
	assert.InDelta(t, 0.000003, got["b"].Prompt, 1e-12)
	assert.InDelta(t, 0.000015, got["b"].Completion, 1e-12)
}

func TestCleanTitle(t *testing.T) {
	cases := map[string]string{
		`"Simple Math Question"`: "Simple Math Question",
		"  'Quoted'  ":           "Quoted",
		"":                       DefaultTitle,
		"First line\nsecond":     "First line",
		"This title is definitely much longer than fifty characters in total": "This title is definitely much longer than fifty...",
	}
	for in, want := range cases {
		got := CleanTitle(in)
		assert.Equal(t, want, got, "CleanTitle(%q)", in)
		assert.LessOrEqual(t, len([]rune(got)), 50)
	}
}

func TestPersonaResolution(t *testing.T) {
	q := domain.CouncilQuery{PersonaMap: map[string]string{
		"openai/gpt-x":             "exact",
		"other/hermes-4-405b:free": "by base name",
		"vendor/empty":             "",
	}}
	p, ok := q.PersonaFor("openai/gpt-x")
	assert.True(t, ok)
	assert.Equal(t, "exact", p)

	p, ok = q.PersonaFor("nousresearch/hermes-4-405b")
	assert.True(t, ok)
	assert.Equal(t, "by base name", p)

	_, ok = q.PersonaFor("vendor/empty")
	assert.False(t, ok)
	_, ok = q.PersonaFor("x/unknown")
	assert.False(t, ok)
}

func TestDefaultRetryBackoff(t *testing.T) {
	b := OptionsFromConfig(config.Default()).Retry.Backoff
	assert.Equal(t, 1500*time.Millisecond, b.Delay(1))
	assert.Equal(t, 2250*time.Millisecond, b.Delay(2))
	assert.Equal(t, 3375*time.Millisecond, b.Delay(3))
	assert.Equal(t, 10*time.Second, b.Delay(6))
}

func TestTurnTimeoutScalesWithModels(t *testing.T) {
	o := Options{TurnTimeoutBase: 10, TurnTimeoutPerModel: 5, TurnTimeoutMax: 30}
	assert.EqualValues(t, 15, o.TurnTimeout(1))
	assert.EqualValues(t, 25, o.TurnTimeout(3))
	assert.EqualValues(t, 30, o.TurnTimeout(10))
}
