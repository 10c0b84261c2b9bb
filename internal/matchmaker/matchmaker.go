// Package matchmaker implements the match scheduler & matchmaker
// (SPEC_FULL.md C8 / spec.md section 4.8): participant selection under
// a "minimum matches played" preference, symmetric permutation
// expansion, and round-robin dispatch to workers.
package matchmaker

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"log"
	mrand "math/rand"
	"sync"

	"github.com/samber/lo"

	"cgarena/internal/domain"
	"cgarena/internal/store"
	"cgarena/internal/worker"
)

// GameConfig mirrors the config file's [game] table.
type GameConfig struct {
	MinPlayers uint32
	MaxPlayers uint32
	Symmetric  bool
}

// MatchmakingConfig mirrors the config file's [matchmaking] table.
type MatchmakingConfig struct {
	MinMatches           uint32
	MinMatchesPreference float64
}

// BotResolver answers the scheduler's need to fetch live bots by id
// right before dispatch, so a bot deleted between selection and
// dispatch is detected and the match dropped (spec.md section 4.8).
type BotResolver interface {
	FetchBot(ctx context.Context, id domain.BotId) (domain.Bot, bool, error)
}

// Matchmaker selects and dispatches matches. It holds no long-lived
// lock: each Tick call fetches fresh BotStats and picks independently,
// matching spec.md's "bounded loop, not a tight spin" requirement.
type Matchmaker struct {
	stats interface {
		BotStats(ctx context.Context) ([]store.BotStats, error)
	}
	resolver BotResolver
	game     GameConfig
	mm       MatchmakingConfig

	mu      sync.Mutex
	workers []worker.Worker
	next    int
}

func New(stats interface {
	BotStats(ctx context.Context) ([]store.BotStats, error)
}, resolver BotResolver, game GameConfig, mm MatchmakingConfig, workers []worker.Worker) *Matchmaker {
	return &Matchmaker{stats: stats, resolver: resolver, game: game, mm: mm, workers: workers}
}

// Tick selects at most one match and dispatches it (possibly expanded
// into several permutations) to a worker. It reports false when no
// match could be formed (too few bots) or no worker is configured.
func (m *Matchmaker) Tick(ctx context.Context) (bool, error) {
	stats, err := m.stats.BotStats(ctx)
	if err != nil {
		return false, err
	}
	if uint32(len(stats)) < m.game.MinPlayers {
		return false, nil
	}

	under := lo.Filter(stats, func(s store.BotStats, _ int) bool {
		return uint32(s.MatchesPlayed) < m.mm.MinMatches
	})

	first := pickFirst(stats, under, m.mm.MinMatchesPreference)

	n := randRange(m.game.MinPlayers, m.game.MaxPlayers)
	if int(n) > len(stats) {
		n = uint32(len(stats))
	}

	selected := []domain.BotId{first}
	pool := lo.Filter(stats, func(s store.BotStats, _ int) bool { return s.BotId != first })
	for uint32(len(selected)) < n && len(pool) > 0 {
		idx := mrand.Intn(len(pool))
		selected = append(selected, pool[idx].BotId)
		pool = append(pool[:idx], pool[idx+1:]...)
	}

	seed := freshSeed()
	orderings := [][]domain.BotId{selected}
	if m.game.Symmetric {
		orderings = permutations(selected)
	}

	w := m.nextWorker()
	if w == nil {
		return false, nil
	}

	for _, order := range orderings {
		live := make([]domain.BotId, 0, len(order))
		for _, id := range order {
			if _, ok, err := m.resolver.FetchBot(ctx, id); err == nil && ok {
				live = append(live, id)
			}
		}
		if len(live) != len(order) {
			log.Printf("matchmaker: dropping match, a selected bot vanished before dispatch")
			continue
		}
		if err := w.EnqueueMatch(ctx, worker.PlayMatchInput{Seed: seed, BotIds: live}); err != nil {
			log.Printf("matchmaker: enqueue failed: %v", err)
		}
	}
	return true, nil
}

func (m *Matchmaker) nextWorker() worker.Worker {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.workers) == 0 {
		return nil
	}
	w := m.workers[m.next%len(m.workers)]
	m.next++
	return w
}

// pickFirst implements step 4 of spec.md section 4.8: with probability
// preference, draw uniformly from the under-min set; otherwise from
// every bot.
func pickFirst(all, under []store.BotStats, preference float64) domain.BotId {
	if len(under) > 0 && mrand.Float64() < preference {
		return under[mrand.Intn(len(under))].BotId
	}
	return all[mrand.Intn(len(all))].BotId
}

func randRange(lo, hi uint32) uint32 {
	if hi <= lo {
		return lo
	}
	return lo + uint32(mrand.Intn(int(hi-lo+1)))
}

func freshSeed() int64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return mrand.Int63()
	}
	return int64(binary.BigEndian.Uint64(b[:]))
}

// permutations returns every n! orderings of ids, used to amortize
// position effects for symmetric games (spec.md section 4.8).
func permutations(ids []domain.BotId) [][]domain.BotId {
	if len(ids) <= 1 {
		return [][]domain.BotId{append([]domain.BotId(nil), ids...)}
	}
	var out [][]domain.BotId
	for i := range ids {
		rest := make([]domain.BotId, 0, len(ids)-1)
		rest = append(rest, ids[:i]...)
		rest = append(rest, ids[i+1:]...)
		for _, sub := range permutations(rest) {
			out = append(out, append([]domain.BotId{ids[i]}, sub...))
		}
	}
	return out
}
