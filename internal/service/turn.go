package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/duke-git/lancet/v2/slice"
	"github.com/llmcouncil/backend/internal/domain"
	"github.com/llmcouncil/backend/internal/eventbus"
	"github.com/llmcouncil/backend/internal/eventstream"
	"github.com/llmcouncil/backend/internal/model"
	"github.com/llmcouncil/backend/internal/repository"
	"github.com/llmcouncil/backend/internal/service/council"
	"github.com/llmcouncil/backend/internal/service/history"
	"k8s.io/klog/v2"
)

var (
	ErrEmptyMessage = errors.New("message content is empty")
	ErrTurnFailed   = errors.New("council turn failed")
	ErrTurnAborted  = errors.New("council turn aborted")
)

// CouncilRunner 运行一轮议会
type CouncilRunner interface {
	RunTurn(ctx context.Context, query domain.CouncilQuery, history []domain.ChatMessage) <-chan eventstream.Event
}

// SendMessageRequest 发送消息；覆盖项在运行前写入会话设置
type SendMessageRequest struct {
	Content string `json:"content" binding:"required"`
	SettingsPatch
}

// TurnService 把议会运行与会话持久化串起来
type TurnService struct {
	conversations *ConversationService
	repo          repository.ConversationRepository
	council       CouncilRunner
	pricing       council.PricingSource
	bus           *eventbus.TurnEventBus
}

func NewTurnService(conversations *ConversationService, repo repository.ConversationRepository, runner CouncilRunner, pricing council.PricingSource, bus *eventbus.TurnEventBus) *TurnService {
	return &TurnService{
		conversations: conversations,
		repo:          repo,
		council:       runner,
		pricing:       pricing,
		bus:           bus,
	}
}

// turnContext 单轮持久化需要的上下文
type turnContext struct {
	conversationID string
	query          domain.CouncilQuery
	firstMessage   bool
}

// Stream 追加用户消息并启动议会，返回转发后的事件流。
// complete 事件转发前已写入 assistant 消息与分析；客户端断开后不再持久化。
func (s *TurnService) Stream(ctx context.Context, conversationID string, req SendMessageRequest) (<-chan eventstream.Event, error) {
	if strings.TrimSpace(req.Content) == "" {
		return nil, ErrEmptyMessage
	}
	conv, err := s.conversations.Load(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if err := s.conversations.applyPatch(ctx, conv, req.SettingsPatch); err != nil {
		return nil, err
	}

	settings := s.conversations.EffectiveSettings(conv)
	policy := settings.HistoryPolicy
	compacted := history.Compact(priorMessages(conv.Messages), policy)

	if _, err := s.repo.AppendMessage(ctx, &model.Message{
		ConversationID: conv.ID,
		Role:           domain.RoleUser,
		Content:        req.Content,
	}); err != nil {
		return nil, fmt.Errorf("append user message: %w", err)
	}

	tc := turnContext{
		conversationID: conv.ID,
		firstMessage:   len(conv.Messages) == 0,
		query: domain.CouncilQuery{
			Query:         req.Content,
			Models:        settings.CouncilModels,
			Chairman:      settings.ChairmanModel,
			SystemPrompt:  s.conversations.SystemPrompt(conv),
			PersonaMap:    settings.PersonaMap,
			HistoryPolicy: &policy,
		},
	}
	tc.query.GenerateTitle = tc.firstMessage

	klog.V(6).Infof("TurnService.Stream: conversation=%s, models=%v, chairman=%s, history=%d",
		conv.ID, tc.query.Models, tc.query.Chairman, len(compacted))

	events := s.council.RunTurn(ctx, tc.query, compacted)
	out := make(chan eventstream.Event, 16)
	go s.forward(ctx, tc, events, out)
	return out, nil
}

func (s *TurnService) forward(ctx context.Context, tc turnContext, in <-chan eventstream.Event, out chan<- eventstream.Event) {
	defer close(out)
	persistCtx := context.WithoutCancel(ctx)
	clientGone := false

	for ev := range in {
		if ctx.Err() != nil {
			clientGone = true
		}
		if !clientGone {
			switch ev.Type {
			case eventstream.TypeComplete:
				s.persistCompleted(persistCtx, tc, ev.Result)
			case eventstream.TypeError:
				s.persistFailed(persistCtx, tc, ev.Message, ev.Result)
			}
		}
		if clientGone {
			continue
		}
		select {
		case out <- ev:
		case <-ctx.Done():
			clientGone = true
		}
	}
	if clientGone {
		klog.V(6).Infof("TurnService.forward: conversation=%s, client disconnected, turn not persisted", tc.conversationID)
	}
}

func (s *TurnService) persistCompleted(ctx context.Context, tc turnContext, result *domain.TurnResult) {
	if result == nil || result.Stage3 == nil {
		klog.Errorf("TurnService: conversation=%s, complete event without result", tc.conversationID)
		return
	}
	index, err := s.repo.AppendMessage(ctx, &model.Message{
		ConversationID: tc.conversationID,
		Role:           domain.RoleAssistant,
		Content:        result.Stage3.Response,
		Model:          result.Stage3.Model,
		Analysis:       model.NewTurnAnalysis(tc.conversationID, result),
	})
	if err != nil {
		klog.Errorf("TurnService: conversation=%s, save assistant message failed: %v", tc.conversationID, err)
		return
	}
	if tc.firstMessage && result.Title != "" {
		if err := s.repo.UpdateTitle(ctx, tc.conversationID, result.Title); err != nil {
			klog.Warningf("TurnService: conversation=%s, save title failed: %v", tc.conversationID, err)
		}
	}
	s.publish(ctx, eventbus.TurnEventCompleted, tc, index, result)
}

// persistFailed 只有 Stage 1 有输出时才保存失败的 assistant 消息
func (s *TurnService) persistFailed(ctx context.Context, tc turnContext, message string, result *domain.TurnResult) {
	if result == nil || len(result.Stage1) == 0 {
		klog.V(6).Infof("TurnService: conversation=%s, turn failed before any output: %s", tc.conversationID, message)
		return
	}
	if result.Costs == nil && s.pricing != nil {
		costs := council.ComputeCosts(result, s.pricing.Pricing(ctx))
		result.Costs = &costs
	}
	chairman := tc.query.Chairman
	index, err := s.repo.AppendMessage(ctx, &model.Message{
		ConversationID: tc.conversationID,
		Role:           domain.RoleAssistant,
		Content:        "Error: " + message,
		Model:          chairman,
		Failed:         true,
		Error:          message,
		Analysis:       model.NewTurnAnalysis(tc.conversationID, result),
	})
	if err != nil {
		klog.Errorf("TurnService: conversation=%s, save failed turn: %v", tc.conversationID, err)
		return
	}
	s.publish(ctx, eventbus.TurnEventFailed, tc, index, result)
}

func (s *TurnService) publish(ctx context.Context, typ eventbus.TurnEventType, tc turnContext, index int, result *domain.TurnResult) {
	if s.bus == nil {
		return
	}
	s.bus.PublishAsync(ctx, eventbus.TurnEvent{
		Type:           typ,
		ConversationID: tc.conversationID,
		MessageIndex:   index,
		Query:          tc.query,
		Result:         result,
		FinishedAt:     time.Now(),
	})
}

// Send 运行到结束并返回完整结果
func (s *TurnService) Send(ctx context.Context, conversationID string, req SendMessageRequest) (*domain.TurnResult, error) {
	events, err := s.Stream(ctx, conversationID, req)
	if err != nil {
		return nil, err
	}
	for ev := range events {
		switch ev.Type {
		case eventstream.TypeComplete:
			return ev.Result, nil
		case eventstream.TypeError:
			return ev.Result, fmt.Errorf("%w: %s", ErrTurnFailed, ev.Message)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, ErrTurnAborted
}

// priorMessages 作为上下文的历史：失败的 assistant 消息不计入
func priorMessages(messages []model.Message) []domain.ChatMessage {
	kept := slice.Filter(messages, func(_ int, m model.Message) bool {
		return !m.Failed
	})
	return slice.Map(kept, func(_ int, m model.Message) domain.ChatMessage {
		return m.ChatMessage()
	})
}
