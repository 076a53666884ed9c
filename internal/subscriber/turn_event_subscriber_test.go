package subscriber

import (
	"context"
	"errors"
	"testing"

	"github.com/llmcouncil/backend/internal/domain"
	"github.com/llmcouncil/backend/internal/eventbus"
)

type mockRecorder struct {
	calls int
	err   error
}

func (m *mockRecorder) RecordTurn(ctx context.Context, event eventbus.TurnEvent) error {
	m.calls++
	return m.err
}

func TestTurnEventSubscriberRegisterAndHandle(t *testing.T) {
	bus := eventbus.NewTurnEventBus()
	leaderboard := &mockRecorder{}
	usage := &mockRecorder{}
	NewTurnEventSubscriber(leaderboard, usage).Register(bus)

	result := &domain.TurnResult{}
	if err := bus.Publish(context.Background(), eventbus.TurnEvent{Type: eventbus.TurnEventCompleted, ConversationID: "c", Result: result}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := bus.Publish(context.Background(), eventbus.TurnEvent{Type: eventbus.TurnEventFailed, ConversationID: "c", Result: result}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if leaderboard.calls != 1 || usage.calls != 2 {
		t.Fatalf("unexpected call counts: leaderboard=%d usage=%d", leaderboard.calls, usage.calls)
	}
}

func TestTurnEventSubscriberErrors(t *testing.T) {
	bus := eventbus.NewTurnEventBus()
	leaderboard := &mockRecorder{err: errors.New("leaderboard down")}
	usage := &mockRecorder{}
	NewTurnEventSubscriber(leaderboard, usage).Register(bus)

	err := bus.Publish(context.Background(), eventbus.TurnEvent{Type: eventbus.TurnEventCompleted, ConversationID: "c"})
	if err == nil {
		t.Fatalf("expected leaderboard error")
	}
	// 排行榜失败不影响用量记录
	if usage.calls != 1 {
		t.Fatalf("usage should still be recorded, got %d calls", usage.calls)
	}

	if err := bus.Publish(context.Background(), eventbus.TurnEvent{Type: eventbus.TurnEventFailed}); err == nil {
		t.Fatalf("expected error for empty conversation id")
	}
}

func TestTurnEventSubscriberNilBus(t *testing.T) {
	NewTurnEventSubscriber(nil, nil).Register(nil)
}
