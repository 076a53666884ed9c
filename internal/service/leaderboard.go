package service

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/llmcouncil/backend/internal/eventbus"
	"github.com/llmcouncil/backend/internal/model"
	"github.com/llmcouncil/backend/internal/repository"
	"k8s.io/klog/v2"
)

// unrankedAverage 从未被排名的条目排在最后
const unrankedAverage = 999.0

// LeaderboardService 按 (模型, persona) 统计议会表现
type LeaderboardService struct {
	repo     repository.LeaderboardRepository
	personas *PersonaService
}

func NewLeaderboardService(repo repository.LeaderboardRepository, personas *PersonaService) *LeaderboardService {
	return &LeaderboardService{repo: repo, personas: personas}
}

// LeaderboardRow 排行榜展示行
type LeaderboardRow struct {
	Model          string  `json:"model"`
	Persona        *string `json:"persona"`
	Participations int     `json:"participations"`
	AverageRank    float64 `json:"average_rank"`
	Wins           int     `json:"wins"`
	WinRate        float64 `json:"win_rate"`
	TotalVotes     int     `json:"total_votes"`
	LastUpdated    string  `json:"last_updated"`
}

// RecordTurn 用一轮完成的议会结果更新排行榜；没有聚合排名的轮次不计入
func (s *LeaderboardService) RecordTurn(ctx context.Context, event eventbus.TurnEvent) error {
	result := event.Result
	if result == nil || len(result.Metadata.AggregateRankings) == 0 {
		klog.V(6).Infof("Leaderboard.RecordTurn: conversation=%s, no aggregate ranking, skipped", event.ConversationID)
		return nil
	}

	models := make([]string, 0, len(result.Stage1))
	for _, m := range result.Stage1 {
		models = append(models, m.Model)
	}
	var names map[string]string
	if s.personas != nil {
		resolved, err := s.personas.ResolveNames(ctx, event.Query, models)
		if err != nil {
			klog.Warningf("Leaderboard.RecordTurn: resolve persona names failed: %v", err)
		}
		names = resolved
	}

	ranks := make(map[string]int, len(result.Metadata.AggregateRankings))
	for i, agg := range result.Metadata.AggregateRankings {
		ranks[agg.Model] = i
	}

	deltas := make([]model.LeaderboardDelta, 0, len(models))
	for _, m := range models {
		d := model.LeaderboardDelta{Model: m, PersonaName: names[m]}
		if i, ok := ranks[m]; ok {
			agg := result.Metadata.AggregateRankings[i]
			d.Ranked = true
			d.AverageRank = agg.AverageRank
			d.Votes = agg.RankingsCount
			d.Win = i == 0
		}
		deltas = append(deltas, d)
	}
	if err := s.repo.Apply(ctx, deltas); err != nil {
		return fmt.Errorf("apply leaderboard deltas: %w", err)
	}
	klog.V(6).Infof("Leaderboard.RecordTurn: conversation=%s, updated %d entries", event.ConversationID, len(deltas))
	return nil
}

// List persona 为 "None" 时只返回无 persona 的条目
func (s *LeaderboardService) List(ctx context.Context, modelID, persona string) ([]LeaderboardRow, error) {
	filter := repository.LeaderboardFilter{Model: modelID}
	switch persona {
	case "":
	case "None":
		none := ""
		filter.Persona = &none
	default:
		filter.Persona = &persona
	}
	entries, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list leaderboard: %w", err)
	}

	rows := make([]LeaderboardRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, toLeaderboardRow(e))
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].AverageRank != rows[j].AverageRank {
			return rows[i].AverageRank < rows[j].AverageRank
		}
		return rows[i].Participations > rows[j].Participations
	})
	return rows, nil
}

func toLeaderboardRow(e model.LeaderboardEntry) LeaderboardRow {
	row := LeaderboardRow{
		Model:          e.Model,
		Participations: e.Participations,
		AverageRank:    unrankedAverage,
		Wins:           e.Wins,
		TotalVotes:     e.TotalVotes,
		LastUpdated:    e.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
	if e.PersonaName != "" {
		name := e.PersonaName
		row.Persona = &name
	}
	if e.Participations > 0 && e.RankSum > 0 {
		row.AverageRank = round(e.RankSum/float64(e.Participations), 2)
	}
	if e.Participations > 0 {
		row.WinRate = round(float64(e.Wins)/float64(e.Participations)*100, 1)
	}
	return row
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
