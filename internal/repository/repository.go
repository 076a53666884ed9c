package repository

import (
	"context"
	"errors"

	"github.com/llmcouncil/backend/internal/model"
)

// ErrNotFound 记录不存在错误
var ErrNotFound = errors.New("record not found")

type ConversationRepository interface {
	Create(ctx context.Context, conv *model.Conversation) error
	// Get 返回会话及按顺序排列的消息（含分析数据）
	Get(ctx context.Context, id string) (*model.Conversation, error)
	// List 会话元信息，最新的在前
	List(ctx context.Context) ([]model.ConversationSummary, error)
	Delete(ctx context.Context, id string) error
	UpdateTitle(ctx context.Context, id, title string) error
	UpdateSettings(ctx context.Context, conv *model.Conversation) error
	// AppendMessage 追加消息，msg.Analysis 非空时一并写入；返回消息在会话中的下标
	AppendMessage(ctx context.Context, msg *model.Message) (int, error)
	// DeleteMessage 按下标删除消息及其分析数据
	DeleteMessage(ctx context.Context, conversationID string, index int) error
}

type PersonaRepository interface {
	List(ctx context.Context) ([]model.Persona, error)
	GetByName(ctx context.Context, name string) (*model.Persona, error)
	// Upsert 按名称新增或覆盖
	Upsert(ctx context.Context, persona *model.Persona) error
	Delete(ctx context.Context, name string) error
}

// LeaderboardFilter Persona 为 nil 表示不过滤，指向空串表示只看无 persona 的条目
type LeaderboardFilter struct {
	Model   string
	Persona *string
}

type LeaderboardRepository interface {
	// Apply 在一个事务中累加多个增量
	Apply(ctx context.Context, deltas []model.LeaderboardDelta) error
	List(ctx context.Context, filter LeaderboardFilter) ([]model.LeaderboardEntry, error)
}

type TurnUsageRepository interface {
	CreateBatch(ctx context.Context, usages []model.TurnUsage) error
	ListByConversation(ctx context.Context, conversationID string) ([]model.TurnUsage, error)
}
