// Package chart implements the Chart command (SPEC_FULL.md C9 /
// spec.md section 4.9, grounded on original_source/chart.rs): a
// per-bot, per-turn aggregate of one numeric attribute over the last
// 1,000 matches a filter accepts.
package chart

import (
	"context"
	"sort"

	"cgarena/internal/domain"
	"cgarena/internal/filter"
)

// MatchSource is the slice of Store the chart command needs: fetch
// every match carrying attributes the filter references, and fetch
// one named attribute's rows restricted to a set of matches.
type MatchSource interface {
	FetchMatchesWithAttrs(ctx context.Context, needed []domain.AttributeRef) ([]domain.Match, error)
	FetchTurnAttributes(ctx context.Context, matchIds []domain.MatchId, attributeName string) ([]domain.MatchAttribute, error)
}

const maxMatches = 1000

// TurnData is one turn's aggregate for one bot.
type TurnData struct {
	Turn uint16
	Avg  float64
	Min  float64
	Max  float64
}

// Item is one bot's full per-turn series, sorted by turn ascending.
type Item struct {
	BotId domain.BotId
	Data  []TurnData
}

// Overview is the Chart command's full response.
type Overview struct {
	Items        []Item
	TotalMatches uint64
}

func Visualize(ctx context.Context, source MatchSource, f filter.MatchFilter, attributeName string) (Overview, error) {
	needed := f.NeededAttributes()
	matches, err := source.FetchMatchesWithAttrs(ctx, needed)
	if err != nil {
		return Overview{}, err
	}

	var filteredIds []domain.MatchId
	for _, m := range matches {
		if f.Matches(m) {
			filteredIds = append(filteredIds, m.Id)
		}
	}

	lastIds := filteredIds
	if len(lastIds) > maxMatches {
		lastIds = lastIds[len(lastIds)-maxMatches:]
	}

	attrs, err := source.FetchTurnAttributes(ctx, lastIds, attributeName)
	if err != nil {
		return Overview{}, err
	}

	type key struct {
		bot  domain.BotId
		turn uint16
	}
	running := make(map[key]*runningStats)
	order := make(map[domain.BotId][]uint16)

	for _, attr := range attrs {
		if attr.Name != attributeName || attr.BotId == nil || attr.Turn == nil {
			continue
		}
		v, ok := attr.Value.AsFloat()
		if !ok {
			continue
		}
		k := key{bot: *attr.BotId, turn: *attr.Turn}
		rs, exists := running[k]
		if !exists {
			rs = &runningStats{min: v, max: v}
			running[k] = rs
			order[*attr.BotId] = append(order[*attr.BotId], *attr.Turn)
		}
		rs.add(v)
	}

	items := make([]Item, 0, len(order))
	for botId, turns := range order {
		sort.Slice(turns, func(i, j int) bool { return turns[i] < turns[j] })
		data := make([]TurnData, 0, len(turns))
		for _, t := range turns {
			rs := running[key{bot: botId, turn: t}]
			data = append(data, TurnData{Turn: t, Avg: rs.avg(), Min: rs.min, Max: rs.max})
		}
		items = append(items, Item{BotId: botId, Data: data})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].BotId < items[j].BotId })

	return Overview{Items: items, TotalMatches: uint64(len(lastIds))}, nil
}

type runningStats struct {
	sum, min, max float64
	count         uint64
}

func (r *runningStats) add(v float64) {
	r.sum += v
	if v < r.min {
		r.min = v
	}
	if v > r.max {
		r.max = v
	}
	r.count++
}

func (r *runningStats) avg() float64 {
	if r.count == 0 {
		return 0
	}
	return r.sum / float64(r.count)
}
