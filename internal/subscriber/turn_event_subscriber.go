package subscriber

import (
	"context"
	"errors"
	"fmt"

	"github.com/llmcouncil/backend/internal/eventbus"
	"k8s.io/klog/v2"
)

// TurnEventSubscriber 把轮次结束事件写入排行榜和用量记录
type TurnEventSubscriber struct {
	leaderboard turnRecorder
	usage       turnRecorder
}

type turnRecorder interface {
	RecordTurn(ctx context.Context, event eventbus.TurnEvent) error
}

func NewTurnEventSubscriber(leaderboard, usage turnRecorder) *TurnEventSubscriber {
	return &TurnEventSubscriber{leaderboard: leaderboard, usage: usage}
}

func (s *TurnEventSubscriber) Register(bus *eventbus.TurnEventBus) {
	if bus == nil {
		return
	}
	bus.Subscribe(eventbus.TurnEventCompleted, s.handleCompleted)
	bus.Subscribe(eventbus.TurnEventFailed, s.handleFailed)
}

func (s *TurnEventSubscriber) handleCompleted(ctx context.Context, event eventbus.TurnEvent) error {
	if event.ConversationID == "" {
		return fmt.Errorf("会话ID为空")
	}
	var errs []error
	if s.leaderboard != nil {
		if err := s.leaderboard.RecordTurn(ctx, event); err != nil {
			klog.Errorf("排行榜更新失败: conversation=%s, index=%d, error=%v", event.ConversationID, event.MessageIndex, err)
			errs = append(errs, err)
		}
	}
	if err := s.recordUsage(ctx, event); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	klog.V(6).Infof("轮次事件处理成功: type=%s, conversation=%s, index=%d", event.Type, event.ConversationID, event.MessageIndex)
	return nil
}

// handleFailed 失败的轮次只记录已产生的用量，不计入排行榜
func (s *TurnEventSubscriber) handleFailed(ctx context.Context, event eventbus.TurnEvent) error {
	if event.ConversationID == "" {
		return fmt.Errorf("会话ID为空")
	}
	return s.recordUsage(ctx, event)
}

func (s *TurnEventSubscriber) recordUsage(ctx context.Context, event eventbus.TurnEvent) error {
	if s.usage == nil {
		return nil
	}
	if err := s.usage.RecordTurn(ctx, event); err != nil {
		klog.Errorf("用量记录失败: type=%s, conversation=%s, error=%v", event.Type, event.ConversationID, err)
		return err
	}
	return nil
}
