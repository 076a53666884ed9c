package repository

import (
	"context"
	"errors"
	"time"

	"github.com/llmcouncil/backend/internal/model"
	"gorm.io/gorm"
)

type conversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository 创建会话仓储
func NewConversationRepository(db *gorm.DB) ConversationRepository {
	return &conversationRepository{db: db}
}

func (r *conversationRepository) Create(ctx context.Context, conv *model.Conversation) error {
	return r.db.WithContext(ctx).Omit("Messages").Create(conv).Error
}

func (r *conversationRepository) Get(ctx context.Context, id string) (*model.Conversation, error) {
	var conv model.Conversation
	err := r.db.WithContext(ctx).
		Preload("Messages", func(db *gorm.DB) *gorm.DB { return db.Order("id ASC") }).
		Preload("Messages.Analysis").
		First(&conv, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &conv, nil
}

func (r *conversationRepository) List(ctx context.Context) ([]model.ConversationSummary, error) {
	var list []model.ConversationSummary
	err := r.db.WithContext(ctx).
		Model(&model.Conversation{}).
		Select("conversations.id, conversations.created_at, conversations.title, " +
			"(SELECT COUNT(*) FROM messages WHERE messages.conversation_id = conversations.id) AS message_count").
		Order("conversations.created_at DESC").
		Scan(&list).Error
	return list, err
}

// Delete 删除会话及其消息、分析和用量记录
func (r *conversationRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ?", id).Delete(&model.Conversation{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		if err := tx.Where("conversation_id = ?", id).Delete(&model.TurnAnalysis{}).Error; err != nil {
			return err
		}
		if err := tx.Where("conversation_id = ?", id).Delete(&model.Message{}).Error; err != nil {
			return err
		}
		return tx.Where("conversation_id = ?", id).Delete(&model.TurnUsage{}).Error
	})
}

func (r *conversationRepository) UpdateTitle(ctx context.Context, id, title string) error {
	result := r.db.WithContext(ctx).Model(&model.Conversation{}).Where("id = ?", id).Update("title", title)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *conversationRepository) UpdateSettings(ctx context.Context, conv *model.Conversation) error {
	result := r.db.WithContext(ctx).Model(&model.Conversation{ID: conv.ID}).
		Select("system_prompt", "settings", "updated_at").
		Updates(&model.Conversation{
			SystemPrompt: conv.SystemPrompt,
			Settings:     conv.Settings,
			UpdatedAt:    time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *conversationRepository) AppendMessage(ctx context.Context, msg *model.Message) (int, error) {
	var index int
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var exists int64
		if err := tx.Model(&model.Conversation{}).Where("id = ?", msg.ConversationID).Count(&exists).Error; err != nil {
			return err
		}
		if exists == 0 {
			return ErrNotFound
		}
		if msg.Analysis != nil {
			msg.Analysis.ConversationID = msg.ConversationID
		}
		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		var count int64
		if err := tx.Model(&model.Message{}).Where("conversation_id = ?", msg.ConversationID).Count(&count).Error; err != nil {
			return err
		}
		index = int(count) - 1
		return tx.Model(&model.Conversation{}).Where("id = ?", msg.ConversationID).Update("updated_at", time.Now()).Error
	})
	return index, err
}

func (r *conversationRepository) DeleteMessage(ctx context.Context, conversationID string, index int) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []uint
		if err := tx.Model(&model.Message{}).
			Where("conversation_id = ?", conversationID).
			Order("id ASC").
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if index < 0 || index >= len(ids) {
			return ErrNotFound
		}
		id := ids[index]
		if err := tx.Where("message_id = ?", id).Delete(&model.TurnAnalysis{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Message{}, id).Error
	})
}
