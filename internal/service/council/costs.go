package council

import (
	"context"

	"github.com/llmcouncil/backend/config"
	"github.com/llmcouncil/backend/internal/domain"
)

// PricingSource 提供 model -> 单价（美元 / token）
type PricingSource interface {
	Pricing(ctx context.Context) map[string]domain.Pricing
}

// OverridePricing 在 base 之上叠加配置中的单价覆盖（美元 / 百万 token）
type OverridePricing struct {
	Base      PricingSource
	Overrides map[string]config.PricingConfig
}

func (p OverridePricing) Pricing(ctx context.Context) map[string]domain.Pricing {
	out := make(map[string]domain.Pricing)
	if p.Base != nil {
		for model, price := range p.Base.Pricing(ctx) {
			out[model] = price
		}
	}
	for model, o := range p.Overrides {
		out[model] = domain.Pricing{
			Prompt:     o.Prompt / 1_000_000,
			Completion: o.Completion / 1_000_000,
		}
	}
	return out
}

// CallCost 单次调用花费，未知单价计 0
func CallCost(model string, usage domain.TokenUsage, pricing map[string]domain.Pricing) float64 {
	price, ok := pricing[model]
	if !ok {
		return 0
	}
	return float64(usage.PromptTokens)*price.Prompt + float64(usage.CompletionTokens)*price.Completion
}

type stageCall struct {
	model string
	usage domain.TokenUsage
}

func stageCost(calls []stageCall, pricing map[string]domain.Pricing) domain.StageCost {
	sc := domain.StageCost{PerModel: make(map[string]domain.ModelCost)}
	for _, c := range calls {
		if c.usage == (domain.TokenUsage{}) {
			continue
		}
		cost := CallCost(c.model, c.usage, pricing)
		mc := sc.PerModel[c.model]
		mc.Cost += cost
		mc.Tokens.AddUsage(c.usage)
		sc.PerModel[c.model] = mc

		sc.Cost += cost
		sc.Tokens.AddUsage(c.usage)
	}
	return sc
}

// ComputeCosts 计算三个阶段及总计的 token 与花费
func ComputeCosts(result *domain.TurnResult, pricing map[string]domain.Pricing) domain.CostBreakdown {
	var stage1, stage2, stage3 []stageCall
	for _, m := range result.Stage1 {
		stage1 = append(stage1, stageCall{model: m.Model, usage: m.Usage})
	}
	for _, r := range result.Stage2 {
		stage2 = append(stage2, stageCall{model: r.Model, usage: r.Usage})
	}
	if result.Stage3 != nil {
		stage3 = append(stage3, stageCall{model: result.Stage3.Model, usage: result.Stage3.Usage})
	}

	breakdown := domain.CostBreakdown{
		Stage1: stageCost(stage1, pricing),
		Stage2: stageCost(stage2, pricing),
		Stage3: stageCost(stage3, pricing),
	}
	breakdown.Total.Cost = breakdown.Stage1.Cost + breakdown.Stage2.Cost + breakdown.Stage3.Cost
	breakdown.Total.Tokens.Add(breakdown.Stage1.Tokens)
	breakdown.Total.Tokens.Add(breakdown.Stage2.Tokens)
	breakdown.Total.Tokens.Add(breakdown.Stage3.Tokens)
	return breakdown
}
