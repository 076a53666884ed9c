package repository

import (
	"context"

	"github.com/llmcouncil/backend/internal/model"
	"gorm.io/gorm"
)

type leaderboardRepository struct {
	db *gorm.DB
}

// NewLeaderboardRepository 创建排行榜仓储
func NewLeaderboardRepository(db *gorm.DB) LeaderboardRepository {
	return &leaderboardRepository{db: db}
}

// Apply 逐条累加；条目不存在时先创建
func (r *leaderboardRepository) Apply(ctx context.Context, deltas []model.LeaderboardDelta) error {
	if len(deltas) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, d := range deltas {
			entry := model.LeaderboardEntry{Model: d.Model, PersonaName: d.PersonaName}
			if err := tx.Where("model = ? AND persona_name = ?", d.Model, d.PersonaName).
				FirstOrCreate(&entry).Error; err != nil {
				return err
			}

			updates := map[string]any{
				"participations": gorm.Expr("participations + ?", 1),
			}
			if d.Ranked {
				updates["rank_sum"] = gorm.Expr("rank_sum + ?", d.AverageRank)
				updates["total_votes"] = gorm.Expr("total_votes + ?", d.Votes)
				if d.Win {
					updates["wins"] = gorm.Expr("wins + ?", 1)
				}
			}
			if err := tx.Model(&model.LeaderboardEntry{}).Where("id = ?", entry.ID).Updates(updates).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *leaderboardRepository) List(ctx context.Context, filter LeaderboardFilter) ([]model.LeaderboardEntry, error) {
	query := r.db.WithContext(ctx).Model(&model.LeaderboardEntry{})
	if filter.Model != "" {
		query = query.Where("model = ?", filter.Model)
	}
	if filter.Persona != nil {
		query = query.Where("persona_name = ?", *filter.Persona)
	}
	var entries []model.LeaderboardEntry
	err := query.Order("model ASC, persona_name ASC").Find(&entries).Error
	return entries, err
}
