package model

import "time"

// Persona 可复用的命名系统提示词
type Persona struct {
	ID           uint      `json:"-" gorm:"primaryKey"`
	Name         string    `json:"name" gorm:"size:255;uniqueIndex;not null"`
	SystemPrompt string    `json:"system_prompt" gorm:"type:text;not null"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
