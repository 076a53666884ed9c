package model

import (
	"time"

	"github.com/llmcouncil/backend/internal/domain"
)

// 会话默认标题
const DefaultConversationTitle = "New Conversation"

// Conversation 会话，ID 为 UUID
type Conversation struct {
	ID           string               `json:"id" gorm:"primaryKey;size:36"`
	Title        string               `json:"title" gorm:"size:255;not null"`
	SystemPrompt string               `json:"system_prompt" gorm:"type:text"`
	Settings     ConversationSettings `json:"settings" gorm:"serializer:json;type:text"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
	Messages     []Message            `json:"messages" gorm:"foreignKey:ConversationID"`
}

// ConversationSettings 会话级别的议会配置，为空的字段使用全局配置
type ConversationSettings struct {
	HistoryPolicy domain.HistoryPolicy `json:"history_policy"`
	CouncilModels []string             `json:"council_models,omitempty"`
	ChairmanModel string               `json:"chairman_model,omitempty"`
	PersonaMap    map[string]string    `json:"persona_map,omitempty"`
}

// ConversationSummary 会话列表项
type ConversationSummary struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	Title        string    `json:"title"`
	MessageCount int       `json:"message_count"`
}

// Message 会话中的一条消息。assistant 消息保存主席的最终回答，分析数据在 Analysis 中。
type Message struct {
	ID             uint          `json:"-" gorm:"primaryKey"`
	ConversationID string        `json:"-" gorm:"size:36;index;not null"`
	Role           string        `json:"role" gorm:"size:20;not null"`
	Content        string        `json:"content" gorm:"type:text"`
	Model          string        `json:"model,omitempty" gorm:"size:255"`
	Failed         bool          `json:"failed,omitempty" gorm:"default:false"`
	Error          string        `json:"error,omitempty" gorm:"size:1000"`
	CreatedAt      time.Time     `json:"created_at"`
	Analysis       *TurnAnalysis `json:"-" gorm:"foreignKey:MessageID"`
}

// TurnAnalysis 一轮议会的中间结果，不作为对话上下文
type TurnAnalysis struct {
	ID             uint                    `json:"-" gorm:"primaryKey"`
	MessageID      uint                    `json:"-" gorm:"uniqueIndex;not null"`
	ConversationID string                  `json:"-" gorm:"size:36;index;not null"`
	Stage1         []domain.MemberResponse `json:"stage1" gorm:"serializer:json;type:text"`
	Stage2         []domain.RankingResult  `json:"stage2" gorm:"serializer:json;type:text"`
	Stage3         *domain.ChairmanResult  `json:"stage3" gorm:"serializer:json;type:text"`
	Metadata       domain.TurnMetadata     `json:"metadata" gorm:"serializer:json;type:text"`
	Costs          *domain.CostBreakdown   `json:"costs,omitempty" gorm:"serializer:json;type:text"`
	CreatedAt      time.Time               `json:"created_at"`
}

func (TurnAnalysis) TableName() string {
	return "turn_analyses"
}

// ChatMessage 转换为模型网关的消息
func (m Message) ChatMessage() domain.ChatMessage {
	return domain.ChatMessage{Role: m.Role, Content: m.Content}
}

// NewTurnAnalysis 从轮次结果构造分析记录
func NewTurnAnalysis(conversationID string, result *domain.TurnResult) *TurnAnalysis {
	if result == nil {
		return nil
	}
	return &TurnAnalysis{
		ConversationID: conversationID,
		Stage1:         result.Stage1,
		Stage2:         result.Stage2,
		Stage3:         result.Stage3,
		Metadata:       result.Metadata,
		Costs:          result.Costs,
	}
}
