package service

import (
	"context"
	"fmt"

	"github.com/llmcouncil/backend/internal/domain"
	"github.com/llmcouncil/backend/internal/eventbus"
	"github.com/llmcouncil/backend/internal/model"
	"github.com/llmcouncil/backend/internal/repository"
	"k8s.io/klog/v2"
)

// TurnUsageService 轮次用量服务
type TurnUsageService struct {
	repo repository.TurnUsageRepository
}

// NewTurnUsageService 创建轮次用量服务
func NewTurnUsageService(repo repository.TurnUsageRepository) *TurnUsageService {
	return &TurnUsageService{repo: repo}
}

// RecordTurn 把一轮中每次模型调用的 token 用量写入数据库，花费取自结果中的成本明细
func (s *TurnUsageService) RecordTurn(ctx context.Context, event eventbus.TurnEvent) error {
	result := event.Result
	if result == nil {
		klog.V(6).Infof("轮次用量记录跳过：result 为空")
		return nil
	}
	if event.ConversationID == "" {
		return fmt.Errorf("conversationID 为空")
	}

	var costs domain.CostBreakdown
	if result.Costs != nil {
		costs = *result.Costs
	}
	failed := event.Type == eventbus.TurnEventFailed
	record := func(stage string, perModel map[string]domain.ModelCost, modelID string, usage domain.TokenUsage) model.TurnUsage {
		return model.TurnUsage{
			ConversationID:   event.ConversationID,
			MessageIndex:     event.MessageIndex,
			Stage:            stage,
			Model:            modelID,
			PromptTokens:     usage.PromptTokens,
			CompletionTokens: usage.CompletionTokens,
			TotalTokens:      usage.TotalTokens,
			Cost:             perModel[modelID].Cost,
			Failed:           failed,
		}
	}

	var usages []model.TurnUsage
	for _, m := range result.Stage1 {
		if m.Usage.TotalTokens > 0 {
			usages = append(usages, record("stage1", costs.Stage1.PerModel, m.Model, m.Usage))
		}
	}
	for _, r := range result.Stage2 {
		if r.Usage.TotalTokens > 0 {
			usages = append(usages, record("stage2", costs.Stage2.PerModel, r.Model, r.Usage))
		}
	}
	if c := result.Stage3; c != nil && c.Usage.TotalTokens > 0 {
		usages = append(usages, record("stage3", costs.Stage3.PerModel, c.Model, c.Usage))
	}

	if err := s.repo.CreateBatch(ctx, usages); err != nil {
		klog.V(6).Infof("轮次用量记录失败：conversation=%s, err=%v", event.ConversationID, err)
		return err
	}
	klog.V(6).Infof("轮次用量记录成功：conversation=%s, 记录数=%d", event.ConversationID, len(usages))
	return nil
}

// TurnCost 单轮花费
type TurnCost struct {
	MessageIndex int                `json:"message_index"`
	Failed       bool               `json:"failed,omitempty"`
	Cost         float64            `json:"cost"`
	Tokens       domain.TokenTotals `json:"tokens"`
}

// ConversationCosts 会话累计花费
type ConversationCosts struct {
	ConversationID string             `json:"conversation_id"`
	Cost           float64            `json:"cost"`
	Tokens         domain.TokenTotals `json:"tokens"`
	Turns          []TurnCost         `json:"turns"`
}

// Summary 汇总会话所有轮次的用量，按轮次出现顺序
func (s *TurnUsageService) Summary(ctx context.Context, conversationID string) (*ConversationCosts, error) {
	usages, err := s.repo.ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list usage %s: %w", conversationID, err)
	}
	out := &ConversationCosts{ConversationID: conversationID, Turns: []TurnCost{}}
	byIndex := make(map[int]int)
	for _, u := range usages {
		usage := domain.TokenUsage{PromptTokens: u.PromptTokens, CompletionTokens: u.CompletionTokens, TotalTokens: u.TotalTokens}
		i, ok := byIndex[u.MessageIndex]
		if !ok {
			i = len(out.Turns)
			byIndex[u.MessageIndex] = i
			out.Turns = append(out.Turns, TurnCost{MessageIndex: u.MessageIndex, Failed: u.Failed})
		}
		out.Turns[i].Cost += u.Cost
		out.Turns[i].Tokens.AddUsage(usage)
		out.Cost += u.Cost
		out.Tokens.AddUsage(usage)
	}
	return out, nil
}
