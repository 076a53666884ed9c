package model

import "time"

// TurnUsage 单次模型调用的 token 用量与花费
type TurnUsage struct {
	ID               uint      `json:"id" gorm:"primaryKey"`
	ConversationID   string    `json:"conversation_id" gorm:"size:36;index;not null"`
	MessageIndex     int       `json:"message_index" gorm:"index"`
	Stage            string    `json:"stage" gorm:"size:20;not null"` // stage1, stage2, stage3
	Model            string    `json:"model" gorm:"size:255;not null"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	TotalTokens      int       `json:"total_tokens"`
	Cost             float64   `json:"cost"`
	Failed           bool      `json:"failed" gorm:"default:false"`
	CreatedAt        time.Time `json:"created_at"`
}
