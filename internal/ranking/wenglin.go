package ranking

import (
	"math"

	"cgarena/internal/domain"
)

// wengLin implements the Weng-Lin Bayesian rating update shared by the
// OpenSkill and TrueSkill strategies (original_source/ranking.rs wraps
// the `skillratings` crate's weng_lin/trueskill implementations; here
// the same update is hand-rolled once and both strategies supply their
// own constants, same as the teacher's own from-scratch glicko2.go).
//
// Multi-participant matches are folded into pairwise two-player updates
// across every ordered pair (round-robin), and each bot's accumulated
// mu/sigma delta is averaged over the number of opponents it faced —
// this mirrors the round-robin winrate bookkeeping ComputedStats
// already performs per match (spec.md section 4.4) and avoids needing
// a full factor-graph solver for team-vs-team comparisons.
type wengLin struct {
	mu       float64
	sigma    float64
	beta     float64
	tau      float64
	drawProb float64
}

func (w wengLin) DefaultRating() domain.Rating {
	return domain.Rating{Mu: w.mu, Sigma: w.sigma}
}

func (w wengLin) SupportsMultiTeam() bool { return true }

func (w wengLin) Recalc(ratings map[domain.BotId]domain.Rating, m domain.Match) {
	teams := buildTeams(ratings, m, w.DefaultRating)
	n := len(teams)
	if n < 2 {
		return
	}

	deltaMu := make([]float64, n)
	deltaSigma2 := make([]float64, n)
	opponents := make([]int, n)

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			dMu, dSigma2 := w.pairwiseUpdate(teams[i].Rating, teams[j].Rating, outcome(teams[i].Rank, teams[j].Rank))
			deltaMu[i] += dMu
			deltaSigma2[i] += dSigma2
			opponents[i]++
		}
	}

	for i, t := range teams {
		if opponents[i] == 0 {
			continue
		}
		avgDeltaMu := deltaMu[i] / float64(opponents[i])
		avgDeltaSigma2 := deltaSigma2[i] / float64(opponents[i])

		newSigma2 := t.Rating.Sigma*t.Rating.Sigma + avgDeltaSigma2
		if newSigma2 < 0 {
			newSigma2 = 0
		}
		ratings[t.BotId] = domain.Rating{
			Mu:    t.Rating.Mu + avgDeltaMu,
			Sigma: math.Sqrt(newSigma2),
		}
	}
}

// outcome returns 1 for a win, 0.5 for a draw, 0 for a loss of
// participant a against participant b, from their ranks.
func outcome(rankA, rankB uint8) float64 {
	switch {
	case rankA < rankB:
		return 1
	case rankA > rankB:
		return 0
	default:
		return 0.5
	}
}

// pairwiseUpdate computes one two-player Weng-Lin update, returning the
// change in mu and in sigma^2 for the first rating. Sigma shrinks by
// eta*winProb*(1-winProb)*sigma^2, which is largest for an even matchup
// (winProb 0.5) and does not depend on the result, and is nudged back up
// by tau^2 each game to keep old ratings from growing overconfident.
func (w wengLin) pairwiseUpdate(a, b domain.Rating, score float64) (float64, float64) {
	c := math.Sqrt(2*w.beta*w.beta + a.Sigma*a.Sigma + b.Sigma*b.Sigma)
	winProb := 1 / (1 + math.Exp((b.Mu-a.Mu)/c))

	gamma := a.Sigma * a.Sigma / c
	deltaMu := gamma * (score - winProb)

	eta := (a.Sigma * a.Sigma) / (c * c)
	deltaSigma2 := w.tau*w.tau - eta*winProb*(1-winProb)*a.Sigma*a.Sigma
	return deltaMu, deltaSigma2
}

// OpenSkillConfig configures the OpenSkill (Weng-Lin / Plackett-Luce)
// strategy; field names mirror original_source/ranking.rs's openskill
// submodule, itself a thin wrapper over skillratings::weng_lin.
type OpenSkillConfig struct {
	InitialMu    float64
	InitialSigma float64
	Beta         float64
	Tau          float64
}

func DefaultOpenSkillConfig() OpenSkillConfig {
	return OpenSkillConfig{InitialMu: 25, InitialSigma: 25.0 / 3.0, Beta: 25.0 / 6.0, Tau: 25.0 / 300.0}
}

type OpenSkill struct{ w wengLin }

func NewOpenSkill(cfg OpenSkillConfig) *OpenSkill {
	return &OpenSkill{w: wengLin{mu: cfg.InitialMu, sigma: cfg.InitialSigma, beta: cfg.Beta, tau: cfg.Tau}}
}

func (o *OpenSkill) DefaultRating() domain.Rating                            { return o.w.DefaultRating() }
func (o *OpenSkill) SupportsMultiTeam() bool                                 { return o.w.SupportsMultiTeam() }
func (o *OpenSkill) Recalc(r map[domain.BotId]domain.Rating, m domain.Match) { o.w.Recalc(r, m) }

// TrueSkillConfig mirrors original_source/ranking.rs's trueskill
// submodule; TrueSkill and OpenSkill share the same Weng-Lin-family
// update here and differ only in their default constants, matching how
// the `skillratings` crate implements both as sibling modules of the
// same factor-graph family.
type TrueSkillConfig struct {
	InitialMu    float64
	InitialSigma float64
	Beta         float64
	Tau          float64
}

func DefaultTrueSkillConfig() TrueSkillConfig {
	return TrueSkillConfig{InitialMu: 25, InitialSigma: 25.0 / 3.0, Beta: 25.0 / 2.0, Tau: 25.0 / 300.0}
}

type TrueSkill struct{ w wengLin }

func NewTrueSkill(cfg TrueSkillConfig) *TrueSkill {
	return &TrueSkill{w: wengLin{mu: cfg.InitialMu, sigma: cfg.InitialSigma, beta: cfg.Beta, tau: cfg.Tau}}
}

func (t *TrueSkill) DefaultRating() domain.Rating                            { return t.w.DefaultRating() }
func (t *TrueSkill) SupportsMultiTeam() bool                                 { return t.w.SupportsMultiTeam() }
func (t *TrueSkill) Recalc(r map[domain.BotId]domain.Rating, m domain.Match) { t.w.Recalc(r, m) }
