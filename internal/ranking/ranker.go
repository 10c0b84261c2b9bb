// Package ranking implements the uniform rating-strategy interface
// (SPEC_FULL.md C3 / spec.md section 4.3) behind Elo, TrueSkill and
// OpenSkill implementations. Like the teacher's own elo_v2.go and
// glicko2.go, the math is hand-rolled rather than pulled from a
// library: no repo in the retrieved corpus imports a skill-rating
// package, so this follows the teacher's demonstrated pattern instead
// (see DESIGN.md).
package ranking

import (
	"cgarena/internal/domain"
)

// Ranker is the capability set every rating strategy exposes.
type Ranker interface {
	// DefaultRating is assigned to a bot seen for the first time.
	DefaultRating() domain.Rating
	// SupportsMultiTeam reports whether Recalc accepts more than two
	// participants in one call.
	SupportsMultiTeam() bool
	// Recalc folds one finished match into ratings, inserting
	// DefaultRating() for any bot not yet present. For a Ranker with
	// SupportsMultiTeam() == false, Recalc must be called with exactly
	// two participants; violating this is a programming error and the
	// implementation panics rather than silently producing nonsense
	// ratings.
	Recalc(ratings map[domain.BotId]domain.Rating, m domain.Match)
}

// Algorithm names the configured strategy, mirroring the tagged config
// union in spec.md section 6 ([ranking] algorithm = ...).
type Algorithm string

const (
	AlgorithmElo       Algorithm = "Elo"
	AlgorithmTrueSkill Algorithm = "TrueSkill"
	AlgorithmOpenSkill Algorithm = "OpenSkill"
)

// rankedParticipant pairs a participant with its current rating for
// the shared team-building helper below.
type rankedParticipant struct {
	BotId  domain.BotId
	Rank   uint8
	Rating domain.Rating
}

func buildTeams(ratings map[domain.BotId]domain.Rating, m domain.Match, def func() domain.Rating) []rankedParticipant {
	teams := make([]rankedParticipant, 0, len(m.Participants))
	for _, p := range m.Participants {
		r, ok := ratings[p.BotId]
		if !ok {
			r = def()
			ratings[p.BotId] = r
		}
		teams = append(teams, rankedParticipant{BotId: p.BotId, Rank: p.Rank, Rating: r})
	}
	return teams
}
