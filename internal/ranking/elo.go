package ranking

import (
	"math"

	"cgarena/internal/domain"
)

// EloConfig mirrors the teacher's elo_v2.go Elo{K float64} knob, the
// only tunable the Rust source's elo.rs config block exposes.
type EloConfig struct {
	K             float64
	InitialRating float64
}

func DefaultEloConfig() EloConfig {
	return EloConfig{K: 32, InitialRating: 1000}
}

type Elo struct {
	cfg EloConfig
}

func NewElo(cfg EloConfig) *Elo { return &Elo{cfg: cfg} }

func (e *Elo) DefaultRating() domain.Rating {
	return domain.Rating{Mu: e.cfg.InitialRating, Sigma: 0}
}

func (e *Elo) SupportsMultiTeam() bool { return false }

// expect is the standard logistic expectation, same shape as the
// teacher's elo_v2.go Elo.expect().
func expect(ratingA, ratingB float64) float64 {
	return 1 / (1 + math.Pow(10, (ratingB-ratingA)/400))
}

func (e *Elo) Recalc(ratings map[domain.BotId]domain.Rating, m domain.Match) {
	if len(m.Participants) != 2 {
		panic("ranking: Elo.Recalc requires exactly two participants")
	}
	teams := buildTeams(ratings, m, e.DefaultRating)
	a, b := teams[0], teams[1]

	scoreA := drawScore(a.Rank, b.Rank)
	expA := expect(a.Rating.Mu, b.Rating.Mu)

	deltaA := e.cfg.K * (scoreA - expA)
	ratings[a.BotId] = domain.Rating{Mu: a.Rating.Mu + deltaA, Sigma: 0}
	ratings[b.BotId] = domain.Rating{Mu: b.Rating.Mu - deltaA, Sigma: 0}
}

// drawScore returns 1.0/0.5/0.0 for the first participant's result
// against the second, from their ranks (lower rank = better).
func drawScore(rankA, rankB uint8) float64 {
	switch {
	case rankA < rankB:
		return 1
	case rankA > rankB:
		return 0
	default:
		return 0.5
	}
}
