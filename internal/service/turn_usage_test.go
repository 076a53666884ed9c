package service

import (
	"context"
	"errors"
	"testing"

	"github.com/llmcouncil/backend/internal/domain"
	"github.com/llmcouncil/backend/internal/eventbus"
	"github.com/llmcouncil/backend/internal/model"
)

type mockTurnUsageRepo struct {
	CreateFunc  func(ctx context.Context, usages []model.TurnUsage) error
	Created     []model.TurnUsage
	ListResult  []model.TurnUsage
	CreateCalls int
}

func (m *mockTurnUsageRepo) CreateBatch(ctx context.Context, usages []model.TurnUsage) error {
	m.CreateCalls++
	m.Created = append(m.Created, usages...)
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, usages)
	}
	return nil
}

func (m *mockTurnUsageRepo) ListByConversation(ctx context.Context, conversationID string) ([]model.TurnUsage, error) {
	return m.ListResult, nil
}

// TestTurnUsageRecordTurn 验证每次有用量的调用都写入一条记录，花费取自成本明细
func TestTurnUsageRecordTurn(t *testing.T) {
	repo := &mockTurnUsageRepo{}
	svc := NewTurnUsageService(repo)

	usage := domain.TokenUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}
	event := eventbus.TurnEvent{
		Type:           eventbus.TurnEventCompleted,
		ConversationID: "c-1",
		MessageIndex:   3,
		Result: &domain.TurnResult{
			Stage1: []domain.MemberResponse{{Model: "x", Usage: usage}, {Model: "y", Error: "boom"}},
			Stage2: []domain.RankingResult{{Model: "x", Usage: usage}},
			Stage3: &domain.ChairmanResult{Model: "chair", Usage: usage},
			Costs: &domain.CostBreakdown{
				Stage1: domain.StageCost{PerModel: map[string]domain.ModelCost{"x": {Cost: 0.01}}},
				Stage3: domain.StageCost{PerModel: map[string]domain.ModelCost{"chair": {Cost: 0.5}}},
			},
		},
	}
	if err := svc.RecordTurn(context.Background(), event); err != nil {
		t.Fatalf("RecordTurn error: %v", err)
	}
	if len(repo.Created) != 3 {
		t.Fatalf("expected 3 usage rows, got %d", len(repo.Created))
	}
	stages := []string{"stage1", "stage2", "stage3"}
	for i, u := range repo.Created {
		if u.Stage != stages[i] || u.ConversationID != "c-1" || u.MessageIndex != 3 || u.TotalTokens != 15 {
			t.Errorf("unexpected usage row %d: %+v", i, u)
		}
	}
	if repo.Created[0].Cost != 0.01 || repo.Created[1].Cost != 0 || repo.Created[2].Cost != 0.5 {
		t.Errorf("unexpected costs: %+v", repo.Created)
	}
}

func TestTurnUsageRecordTurnErrors(t *testing.T) {
	repo := &mockTurnUsageRepo{CreateFunc: func(ctx context.Context, usages []model.TurnUsage) error {
		return errors.New("db down")
	}}
	svc := NewTurnUsageService(repo)

	if err := svc.RecordTurn(context.Background(), eventbus.TurnEvent{ConversationID: "c"}); err != nil {
		t.Errorf("nil result should be skipped, got %v", err)
	}
	if repo.CreateCalls != 0 {
		t.Errorf("expected no Create call")
	}
	if err := svc.RecordTurn(context.Background(), eventbus.TurnEvent{Result: &domain.TurnResult{}}); err == nil {
		t.Errorf("expected error for empty conversation id")
	}
	err := svc.RecordTurn(context.Background(), eventbus.TurnEvent{
		ConversationID: "c",
		Result:         &domain.TurnResult{Stage3: &domain.ChairmanResult{Model: "m", Usage: domain.TokenUsage{TotalTokens: 1}}},
	})
	if err == nil {
		t.Errorf("expected repository error to be returned")
	}
}

func TestTurnUsageSummary(t *testing.T) {
	repo := &mockTurnUsageRepo{ListResult: []model.TurnUsage{
		{MessageIndex: 1, Stage: "stage1", PromptTokens: 10, CompletionTokens: 2, TotalTokens: 12, Cost: 0.1},
		{MessageIndex: 1, Stage: "stage3", PromptTokens: 20, CompletionTokens: 4, TotalTokens: 24, Cost: 0.2},
		{MessageIndex: 3, Stage: "stage1", PromptTokens: 5, CompletionTokens: 1, TotalTokens: 6, Cost: 0.05, Failed: true},
	}}
	summary, err := NewTurnUsageService(repo).Summary(context.Background(), "c-1")
	if err != nil {
		t.Fatalf("Summary error: %v", err)
	}
	if len(summary.Turns) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(summary.Turns))
	}
	if summary.Turns[0].MessageIndex != 1 || summary.Turns[0].Tokens.Total != 36 {
		t.Errorf("unexpected first turn: %+v", summary.Turns[0])
	}
	if !summary.Turns[1].Failed {
		t.Errorf("second turn should be marked failed")
	}
	if summary.Tokens.Total != 42 || summary.Tokens.Prompt != 35 {
		t.Errorf("unexpected totals: %+v", summary.Tokens)
	}
	if diff := summary.Cost - 0.35; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("unexpected total cost %v", summary.Cost)
	}
}
