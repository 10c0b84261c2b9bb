// Package stats implements ComputedStats (SPEC_FULL.md C4 / spec.md
// section 4.4), the per-leaderboard aggregate folded incrementally as
// matches arrive.
package stats

import (
	"cgarena/internal/domain"
	"cgarena/internal/ranking"
)

const exampleSeedsLimit = 10

// WinrateStats is one ordered pair's head-to-head record.
type WinrateStats struct {
	Wins  uint64
	Draws uint64
	Loses uint64
}

func (w WinrateStats) Total() uint64 { return w.Wins + w.Draws + w.Loses }

type pairKey struct {
	A, B domain.BotId
}

// ComputedStats holds, for one leaderboard filter, the rating map, the
// head-to-head table, per-bot error counts, total match count and a
// bounded ring of recently-seen seeds.
type ComputedStats struct {
	ratings          map[domain.BotId]domain.Rating
	winrateStats     map[pairKey]WinrateStats
	matchesWithError map[domain.BotId]uint64
	totalMatches     uint64
	exampleSeeds     []int64
}

func New() *ComputedStats {
	return &ComputedStats{
		ratings:          make(map[domain.BotId]domain.Rating),
		winrateStats:     make(map[pairKey]WinrateStats),
		matchesWithError: make(map[domain.BotId]uint64),
	}
}

// RecalcAfterMatch folds one match into the aggregate, per spec.md
// section 4.4 steps 1-5.
func (s *ComputedStats) RecalcAfterMatch(ranker ranking.Ranker, m domain.Match) {
	s.totalMatches++
	s.pushSeed(m.Seed)
	ranker.Recalc(s.ratings, m)

	for _, p := range m.Participants {
		if p.Error {
			s.matchesWithError[p.BotId]++
		}
	}

	for _, p1 := range m.Participants {
		for _, p2 := range m.Participants {
			if p1.BotId == p2.BotId {
				continue
			}
			key := pairKey{A: p1.BotId, B: p2.BotId}
			rec := s.winrateStats[key]
			switch {
			case p1.Rank < p2.Rank:
				rec.Wins++
			case p1.Rank == p2.Rank:
				rec.Draws++
			default:
				rec.Loses++
			}
			s.winrateStats[key] = rec
		}
	}
}

func (s *ComputedStats) pushSeed(seed int64) {
	for _, existing := range s.exampleSeeds {
		if existing == seed {
			return
		}
	}
	s.exampleSeeds = append(s.exampleSeeds, seed)
	if len(s.exampleSeeds) > exampleSeedsLimit {
		s.exampleSeeds = s.exampleSeeds[len(s.exampleSeeds)-exampleSeedsLimit:]
	}
}

func (s *ComputedStats) Rating(id domain.BotId) (domain.Rating, bool) {
	r, ok := s.ratings[id]
	return r, ok
}

func (s *ComputedStats) Ratings() map[domain.BotId]domain.Rating {
	out := make(map[domain.BotId]domain.Rating, len(s.ratings))
	for k, v := range s.ratings {
		out[k] = v
	}
	return out
}

// MatchesPlayed sums Total() over every winrate entry keyed by (id, *).
func (s *ComputedStats) MatchesPlayed(id domain.BotId) uint64 {
	var total uint64
	for key, rec := range s.winrateStats {
		if key.A == id {
			total += rec.Total()
		}
	}
	return total
}

func (s *ComputedStats) WinrateBetween(a, b domain.BotId) WinrateStats {
	return s.winrateStats[pairKey{A: a, B: b}]
}

func (s *ComputedStats) MatchesWithError(id domain.BotId) uint64 {
	return s.matchesWithError[id]
}

func (s *ComputedStats) TotalMatches() uint64 { return s.totalMatches }

func (s *ComputedStats) ExampleSeeds() []int64 {
	out := make([]int64, len(s.exampleSeeds))
	copy(out, s.exampleSeeds)
	return out
}
