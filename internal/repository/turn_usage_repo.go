package repository

import (
	"context"

	"github.com/llmcouncil/backend/internal/model"
	"gorm.io/gorm"
)

type turnUsageRepository struct {
	db *gorm.DB
}

// NewTurnUsageRepository 创建 TurnUsage 仓储
func NewTurnUsageRepository(db *gorm.DB) TurnUsageRepository {
	return &turnUsageRepository{db: db}
}

// CreateBatch 批量写入一轮次的用量记录
func (r *turnUsageRepository) CreateBatch(ctx context.Context, usages []model.TurnUsage) error {
	if len(usages) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&usages).Error
}

// ListByConversation 按写入顺序返回会话的全部用量记录
func (r *turnUsageRepository) ListByConversation(ctx context.Context, conversationID string) ([]model.TurnUsage, error) {
	var usages []model.TurnUsage
	err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("id ASC").
		Find(&usages).Error
	return usages, err
}
