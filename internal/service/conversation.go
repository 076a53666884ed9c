package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/duke-git/lancet/v2/slice"
	"github.com/google/uuid"
	"github.com/llmcouncil/backend/config"
	"github.com/llmcouncil/backend/internal/domain"
	"github.com/llmcouncil/backend/internal/model"
	"github.com/llmcouncil/backend/internal/repository"
	"k8s.io/klog/v2"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrMessageNotFound      = errors.New("message not found")
)

// ConversationService 会话管理
type ConversationService struct {
	cfg  *config.Config
	repo repository.ConversationRepository
}

func NewConversationService(cfg *config.Config, repo repository.ConversationRepository) *ConversationService {
	return &ConversationService{cfg: cfg, repo: repo}
}

// HistoryPolicyPatch 部分更新，nil 字段保持原值
type HistoryPolicyPatch struct {
	MaxTurns  *int `json:"max_turns"`
	MaxTokens *int `json:"max_tokens"`
}

// SettingsPatch 创建会话、更新设置、发送消息时携带的可选覆盖项
type SettingsPatch struct {
	SystemPrompt  *string             `json:"system_prompt,omitempty"`
	HistoryPolicy *HistoryPolicyPatch `json:"history_policy,omitempty"`
	CouncilModels []string            `json:"council_models,omitempty"`
	ChairmanModel *string             `json:"chairman_model,omitempty"`
	PersonaMap    map[string]string   `json:"persona_map,omitempty"`
}

// Empty 没有任何覆盖项
func (p SettingsPatch) Empty() bool {
	return p.SystemPrompt == nil && p.HistoryPolicy == nil && p.CouncilModels == nil &&
		p.ChairmanModel == nil && p.PersonaMap == nil
}

// Apply 把覆盖项合并进会话；history_policy 按字段合并
func (p SettingsPatch) Apply(conv *model.Conversation) {
	if p.SystemPrompt != nil {
		conv.SystemPrompt = *p.SystemPrompt
	}
	if p.HistoryPolicy != nil {
		if p.HistoryPolicy.MaxTurns != nil {
			conv.Settings.HistoryPolicy.MaxTurns = *p.HistoryPolicy.MaxTurns
		}
		if p.HistoryPolicy.MaxTokens != nil {
			conv.Settings.HistoryPolicy.MaxTokens = *p.HistoryPolicy.MaxTokens
		}
	}
	if p.CouncilModels != nil {
		models := slice.Filter(p.CouncilModels, func(_ int, m string) bool { return strings.TrimSpace(m) != "" })
		conv.Settings.CouncilModels = slice.Unique(models)
	}
	if p.ChairmanModel != nil {
		conv.Settings.ChairmanModel = strings.TrimSpace(*p.ChairmanModel)
	}
	if p.PersonaMap != nil {
		conv.Settings.PersonaMap = p.PersonaMap
	}
}

// MessageView 返回给客户端的消息，assistant 消息附带分析数据
type MessageView struct {
	Role      string                  `json:"role"`
	Content   string                  `json:"content"`
	Model     string                  `json:"model,omitempty"`
	Failed    bool                    `json:"failed,omitempty"`
	Error     string                  `json:"error,omitempty"`
	CreatedAt time.Time               `json:"created_at"`
	Stage1    []domain.MemberResponse `json:"stage1,omitempty"`
	Stage2    []domain.RankingResult  `json:"stage2,omitempty"`
	Stage3    *domain.ChairmanResult  `json:"stage3,omitempty"`
	Metadata  *domain.TurnMetadata    `json:"metadata,omitempty"`
	Costs     *domain.CostBreakdown   `json:"costs,omitempty"`
}

// ConversationView 完整会话
type ConversationView struct {
	ID           string                     `json:"id"`
	CreatedAt    time.Time                  `json:"created_at"`
	Title        string                     `json:"title"`
	SystemPrompt string                     `json:"system_prompt"`
	Settings     model.ConversationSettings `json:"settings"`
	Messages     []MessageView              `json:"messages"`
}

func (s *ConversationService) Create(ctx context.Context, patch SettingsPatch) (*model.Conversation, error) {
	conv := &model.Conversation{
		ID:    uuid.New().String(),
		Title: model.DefaultConversationTitle,
	}
	patch.Apply(conv)
	if err := s.repo.Create(ctx, conv); err != nil {
		klog.Errorf("CreateConversation: failed: %v", err)
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	klog.V(6).Infof("CreateConversation: id=%s", conv.ID)
	return conv, nil
}

func (s *ConversationService) List(ctx context.Context) ([]model.ConversationSummary, error) {
	list, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	if list == nil {
		list = []model.ConversationSummary{}
	}
	return list, nil
}

// Load 读取会话原始记录
func (s *ConversationService) Load(ctx context.Context, id string) (*model.Conversation, error) {
	conv, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("get conversation %s: %w", id, err)
	}
	return conv, nil
}

// Get 返回会话视图，设置中为空的字段填入全局默认值
func (s *ConversationService) Get(ctx context.Context, id string) (*ConversationView, error) {
	conv, err := s.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	view := &ConversationView{
		ID:           conv.ID,
		CreatedAt:    conv.CreatedAt,
		Title:        conv.Title,
		SystemPrompt: conv.SystemPrompt,
		Settings:     s.EffectiveSettings(conv),
		Messages:     make([]MessageView, 0, len(conv.Messages)),
	}
	for _, m := range conv.Messages {
		mv := MessageView{
			Role:      m.Role,
			Content:   m.Content,
			Model:     m.Model,
			Failed:    m.Failed,
			Error:     m.Error,
			CreatedAt: m.CreatedAt,
		}
		if a := m.Analysis; a != nil {
			mv.Stage1 = a.Stage1
			mv.Stage2 = a.Stage2
			mv.Stage3 = a.Stage3
			mv.Metadata = &a.Metadata
			mv.Costs = a.Costs
		}
		view.Messages = append(view.Messages, mv)
	}
	return view, nil
}

func (s *ConversationService) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrConversationNotFound
		}
		return fmt.Errorf("delete conversation %s: %w", id, err)
	}
	klog.V(6).Infof("DeleteConversation: id=%s", id)
	return nil
}

// UpdateSettings 合并设置并保存，返回更新后的视图
func (s *ConversationService) UpdateSettings(ctx context.Context, id string, patch SettingsPatch) (*ConversationView, error) {
	conv, err := s.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.applyPatch(ctx, conv, patch); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *ConversationService) applyPatch(ctx context.Context, conv *model.Conversation, patch SettingsPatch) error {
	if patch.Empty() {
		return nil
	}
	patch.Apply(conv)
	if err := s.repo.UpdateSettings(ctx, conv); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrConversationNotFound
		}
		return fmt.Errorf("update settings %s: %w", conv.ID, err)
	}
	return nil
}

// DeleteMessage 删除一条消息；assistant 消息的分析数据一并删除
func (s *ConversationService) DeleteMessage(ctx context.Context, id string, index int) error {
	if _, err := s.Load(ctx, id); err != nil {
		return err
	}
	if err := s.repo.DeleteMessage(ctx, id, index); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrMessageNotFound
		}
		return fmt.Errorf("delete message %s[%d]: %w", id, index, err)
	}
	return nil
}

// EffectiveSettings 会话设置叠加全局配置后的实际值
func (s *ConversationService) EffectiveSettings(conv *model.Conversation) model.ConversationSettings {
	settings := conv.Settings
	if len(settings.CouncilModels) == 0 {
		models := slice.Filter(s.cfg.Council.Models, func(_ int, m string) bool { return m != "" })
		settings.CouncilModels = slice.Unique(models)
	}
	if settings.ChairmanModel == "" {
		settings.ChairmanModel = s.cfg.Council.Chairman
	}
	if settings.HistoryPolicy.MaxTurns <= 0 {
		settings.HistoryPolicy.MaxTurns = s.cfg.History.MaxTurns
	}
	if settings.HistoryPolicy.MaxTokens <= 0 {
		settings.HistoryPolicy.MaxTokens = s.cfg.History.MaxTokens
	}
	return settings
}

// SystemPrompt 会话未设置时使用全局默认提示词
func (s *ConversationService) SystemPrompt(conv *model.Conversation) string {
	if strings.TrimSpace(conv.SystemPrompt) != "" {
		return conv.SystemPrompt
	}
	return s.cfg.Council.DefaultSystemPrompt
}
