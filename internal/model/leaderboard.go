package model

import "time"

// LeaderboardEntry 排行榜累计数据，按 (模型, persona 名) 唯一；无 persona 时 PersonaName 为空
type LeaderboardEntry struct {
	ID             uint      `json:"-" gorm:"primaryKey"`
	Model          string    `json:"model" gorm:"size:255;not null;uniqueIndex:idx_leaderboard_model_persona"`
	PersonaName    string    `json:"persona" gorm:"size:255;not null;default:'';uniqueIndex:idx_leaderboard_model_persona"`
	Participations int       `json:"participations" gorm:"default:0"`
	Wins           int       `json:"wins" gorm:"default:0"`
	RankSum        float64   `json:"rank_sum" gorm:"default:0"`
	TotalVotes     int       `json:"total_votes" gorm:"default:0"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (LeaderboardEntry) TableName() string {
	return "leaderboard_entries"
}

// LeaderboardDelta 单轮次对某个条目的增量
type LeaderboardDelta struct {
	Model       string
	PersonaName string
	Ranked      bool
	AverageRank float64
	Votes       int
	Win         bool
}
