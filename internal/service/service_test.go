package service

import (
	"context"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/llmcouncil/backend/config"
	"github.com/llmcouncil/backend/internal/domain"
	"github.com/llmcouncil/backend/internal/eventbus"
	"github.com/llmcouncil/backend/internal/eventstream"
	"github.com/llmcouncil/backend/internal/pkg/database"
	"github.com/llmcouncil/backend/internal/repository"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Discard})
	if err != nil {
		t.Fatalf("failed to connect database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Council.Models = []string{"a/x", "b/y", "c/z"}
	cfg.Council.Chairman = "chair/model"
	cfg.Council.DefaultSystemPrompt = "default prompt"
	return cfg
}

// runnerFunc 假的议会运行器
type runnerFunc func(ctx context.Context, q domain.CouncilQuery, h []domain.ChatMessage) <-chan eventstream.Event

func (f runnerFunc) RunTurn(ctx context.Context, q domain.CouncilQuery, h []domain.ChatMessage) <-chan eventstream.Event {
	return f(ctx, q, h)
}

// scriptedRunner 按顺序发出固定事件，并记录每次调用的输入
type scriptedRunner struct {
	mu        sync.Mutex
	queries   []domain.CouncilQuery
	histories [][]domain.ChatMessage
	script    func(q domain.CouncilQuery) []eventstream.Event
}

func (r *scriptedRunner) RunTurn(ctx context.Context, q domain.CouncilQuery, h []domain.ChatMessage) <-chan eventstream.Event {
	r.mu.Lock()
	r.queries = append(r.queries, q)
	r.histories = append(r.histories, h)
	r.mu.Unlock()

	events := r.script(q)
	ch := make(chan eventstream.Event, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	return ch
}

func successResult(q domain.CouncilQuery, answer string) *domain.TurnResult {
	result := &domain.TurnResult{
		Stage3: &domain.ChairmanResult{Model: q.Chairman, Response: answer, Usage: domain.TokenUsage{PromptTokens: 100, CompletionTokens: 10, TotalTokens: 110}},
		Metadata: domain.TurnMetadata{
			LabelToModel:      map[string]string{},
			AggregateRankings: []domain.AggregateRanking{},
		},
	}
	for i, m := range q.Models {
		result.Stage1 = append(result.Stage1, domain.MemberResponse{Model: m, Response: answer, Usage: domain.TokenUsage{PromptTokens: 10, CompletionTokens: 2, TotalTokens: 12}})
		result.Metadata.AggregateRankings = append(result.Metadata.AggregateRankings, domain.AggregateRanking{Model: m, AverageRank: float64(i + 1), RankingsCount: len(q.Models)})
	}
	if q.GenerateTitle {
		result.Title = "Simple Arithmetic"
	}
	return result
}

type fixture struct {
	cfg           *config.Config
	db            *gorm.DB
	convRepo      repository.ConversationRepository
	conversations *ConversationService
	bus           *eventbus.TurnEventBus
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testConfig()
	db := newTestDB(t)
	convRepo := repository.NewConversationRepository(db)
	return &fixture{
		cfg:           cfg,
		db:            db,
		convRepo:      convRepo,
		conversations: NewConversationService(cfg, convRepo),
		bus:           eventbus.NewTurnEventBus(),
	}
}

func (f *fixture) turns(runner CouncilRunner) *TurnService {
	return NewTurnService(f.conversations, f.convRepo, runner, nil, f.bus)
}

func drain(events <-chan eventstream.Event) []eventstream.Event {
	var out []eventstream.Event
	for ev := range events {
		out = append(out, ev)
	}
	return out
}
