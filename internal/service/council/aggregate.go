package council

import (
	"math"
	"sort"

	"github.com/llmcouncil/backend/internal/domain"
	"k8s.io/klog/v2"
)

// AggregateRankings 计算共识排名：模型得分为所有提到它的有效排名中名次的平均值（1 为最好）。
// 某个排名没有提到的模型不计入该排名，也不按最后一名处理。
// 按平均名次升序，平局时提及次数多者优先，再按 order 中的输入顺序。
func AggregateRankings(rankings []domain.RankingResult, labels *LabelMap, order []string) []domain.AggregateRanking {
	type tally struct {
		sum   int
		count int
	}
	tallies := make(map[string]*tally)
	for _, r := range rankings {
		if !r.Usable() {
			continue
		}
		position := 0
		for _, label := range r.ParsedRanking {
			model, ok := labels.Model(label)
			if !ok {
				klog.Warningf("AggregateRankings: unknown label %q from %s ignored", label, r.Model)
				continue
			}
			position++
			t := tallies[model]
			if t == nil {
				t = &tally{}
				tallies[model] = t
			}
			t.sum += position
			t.count++
		}
	}

	index := make(map[string]int, len(order))
	for i, model := range order {
		if _, ok := index[model]; !ok {
			index[model] = i
		}
	}

	type scored struct {
		model string
		mean  float64
		count int
		idx   int
	}
	items := make([]scored, 0, len(tallies))
	for model, t := range tallies {
		idx, ok := index[model]
		if !ok {
			idx = len(order)
		}
		items = append(items, scored{model: model, mean: float64(t.sum) / float64(t.count), count: t.count, idx: idx})
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].mean != items[j].mean {
			return items[i].mean < items[j].mean
		}
		if items[i].count != items[j].count {
			return items[i].count > items[j].count
		}
		if items[i].idx != items[j].idx {
			return items[i].idx < items[j].idx
		}
		return items[i].model < items[j].model
	})

	out := make([]domain.AggregateRanking, 0, len(items))
	for _, it := range items {
		out = append(out, domain.AggregateRanking{
			Model:         it.model,
			AverageRank:   math.Round(it.mean*100) / 100,
			RankingsCount: it.count,
		})
	}
	return out
}
