package repository

import (
	"context"
	"errors"

	"github.com/llmcouncil/backend/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type personaRepository struct {
	db *gorm.DB
}

// NewPersonaRepository 创建 Persona 仓储
func NewPersonaRepository(db *gorm.DB) PersonaRepository {
	return &personaRepository{db: db}
}

func (r *personaRepository) List(ctx context.Context) ([]model.Persona, error) {
	var personas []model.Persona
	err := r.db.WithContext(ctx).Order("name ASC").Find(&personas).Error
	return personas, err
}

func (r *personaRepository) GetByName(ctx context.Context, name string) (*model.Persona, error) {
	var persona model.Persona
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&persona).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &persona, nil
}

func (r *personaRepository) Upsert(ctx context.Context, persona *model.Persona) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"system_prompt", "updated_at"}),
	}).Create(persona).Error
}

func (r *personaRepository) Delete(ctx context.Context, name string) error {
	result := r.db.WithContext(ctx).Where("name = ?", name).Delete(&model.Persona{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
