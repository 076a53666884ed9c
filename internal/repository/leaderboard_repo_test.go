package repository

import (
	"context"
	"testing"

	"github.com/llmcouncil/backend/internal/model"
)

func TestLeaderboardRepository_ApplyAccumulates(t *testing.T) {
	repo := NewLeaderboardRepository(newTestDB(t))
	ctx := context.Background()

	turn1 := []model.LeaderboardDelta{
		{Model: "x", Ranked: true, AverageRank: 1, Votes: 3, Win: true},
		{Model: "y", Ranked: true, AverageRank: 2, Votes: 3},
		{Model: "y", PersonaName: "Pirate", Ranked: true, AverageRank: 3, Votes: 2},
	}
	turn2 := []model.LeaderboardDelta{
		{Model: "x", Ranked: true, AverageRank: 1.5, Votes: 2, Win: true},
		{Model: "y"},
	}
	if err := repo.Apply(ctx, turn1); err != nil {
		t.Fatalf("Apply turn1 failed: %v", err)
	}
	if err := repo.Apply(ctx, turn2); err != nil {
		t.Fatalf("Apply turn2 failed: %v", err)
	}

	all, err := repo.List(ctx, LeaderboardFilter{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(all))
	}
	byKey := map[string]model.LeaderboardEntry{}
	for _, e := range all {
		byKey[e.Model+"|"+e.PersonaName] = e
	}
	x := byKey["x|"]
	if x.Participations != 2 || x.Wins != 2 || x.RankSum != 2.5 || x.TotalVotes != 5 {
		t.Errorf("unexpected x entry: %+v", x)
	}
	y := byKey["y|"]
	if y.Participations != 2 || y.Wins != 0 || y.RankSum != 2 || y.TotalVotes != 3 {
		t.Errorf("unexpected y entry: %+v", y)
	}
	if byKey["y|Pirate"].Participations != 1 {
		t.Errorf("persona entry should be separate: %+v", byKey["y|Pirate"])
	}
}

func TestLeaderboardRepository_ListFilters(t *testing.T) {
	repo := NewLeaderboardRepository(newTestDB(t))
	ctx := context.Background()
	if err := repo.Apply(ctx, []model.LeaderboardDelta{
		{Model: "x"},
		{Model: "x", PersonaName: "Pirate"},
		{Model: "y", PersonaName: "Pirate"},
	}); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	none := ""
	pirate := "Pirate"
	cases := []struct {
		name   string
		filter LeaderboardFilter
		want   int
	}{
		{"all", LeaderboardFilter{}, 3},
		{"by model", LeaderboardFilter{Model: "x"}, 2},
		{"no persona", LeaderboardFilter{Persona: &none}, 1},
		{"by persona", LeaderboardFilter{Persona: &pirate}, 2},
		{"model and persona", LeaderboardFilter{Model: "y", Persona: &pirate}, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := repo.List(ctx, tc.filter)
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			if len(got) != tc.want {
				t.Errorf("expected %d entries, got %d", tc.want, len(got))
			}
		})
	}
}
