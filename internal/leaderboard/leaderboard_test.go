package leaderboard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cgarena/internal/domain"
	"cgarena/internal/filter"
	"cgarena/internal/ranking"
)

type fakeFetcher struct {
	mu      sync.Mutex
	matches []domain.Match
	err     error
	delay   time.Duration
}

func (f *fakeFetcher) FetchMatchesWithAttrs(ctx context.Context, needed []domain.AttributeRef) ([]domain.Match, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([]domain.Match, len(f.matches))
	copy(out, f.matches)
	return out, nil
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func TestLiveCatchUpFoldsAcceptedMatch(t *testing.T) {
	ranker := ranking.NewElo(ranking.DefaultEloConfig())
	lb := Global(1, ranker, &fakeFetcher{})

	m := domain.NewMatch(1, []domain.Participant{{BotId: 1, Rank: 0}, {BotId: 2, Rank: 1}}, nil)
	lb.CatchUp(context.Background(), m)

	s := lb.Stats()
	if s == nil {
		t.Fatal("expected Live stats")
	}
	if s.TotalMatches() != 1 {
		t.Errorf("expected 1 match folded, got %d", s.TotalMatches())
	}
}

func TestResetRecomputesOverHistoryAndCatchesUpBuffer(t *testing.T) {
	fetcher := &fakeFetcher{
		matches: []domain.Match{
			domain.NewMatch(1, []domain.Participant{{BotId: 1, Rank: 0}, {BotId: 2, Rank: 1}}, nil),
		},
		delay: 50 * time.Millisecond,
	}
	ranker := ranking.NewElo(ranking.DefaultEloConfig())
	lb := Global(1, ranker, fetcher)

	lb.Reset(context.Background(), lb.Name, filter.AcceptAll())
	if lb.Stats() != nil {
		t.Fatal("expected Computing state right after Reset")
	}

	liveMatch := domain.NewMatch(2, []domain.Participant{{BotId: 3, Rank: 0}, {BotId: 4, Rank: 1}}, nil)
	lb.CatchUp(context.Background(), liveMatch)

	waitUntil(t, func() bool { return lb.Stats() != nil })

	s := lb.Stats()
	if s.TotalMatches() != 2 {
		t.Errorf("expected history + buffered match folded, got %d", s.TotalMatches())
	}
}

func TestCatchUpDuringComputingBuffersEachMatchOnce(t *testing.T) {
	fetcher := &fakeFetcher{delay: 50 * time.Millisecond}
	ranker := ranking.NewElo(ranking.DefaultEloConfig())
	lb := Global(1, ranker, fetcher)

	lb.Reset(context.Background(), lb.Name, filter.AcceptAll())
	if lb.Stats() != nil {
		t.Fatal("expected Computing state right after Reset")
	}

	// Mirrors the arena's commitMatch: every committed match gets exactly
	// one CatchUp call, regardless of leaderboard state.
	for i := 0; i < 3; i++ {
		m := domain.NewMatch(int64(i), []domain.Participant{{BotId: 1, Rank: 0}, {BotId: 2, Rank: 1}}, nil)
		lb.CatchUp(context.Background(), m)
	}

	waitUntil(t, func() bool { return lb.Stats() != nil })

	if got, want := lb.Stats().TotalMatches(), uint64(3); got != want {
		t.Errorf("expected each buffered match folded exactly once, got %d want %d", got, want)
	}
}

func TestErrorStateAndBackoff(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("store unavailable")}
	ranker := ranking.NewElo(ranking.DefaultEloConfig())
	lb := Global(1, ranker, fetcher)

	lb.Reset(context.Background(), lb.Name, filter.AcceptAll())
	waitUntil(t, func() bool {
		_, ok := lb.Error()
		return ok
	})

	m := domain.NewMatch(1, []domain.Participant{{BotId: 1, Rank: 0}, {BotId: 2, Rank: 1}}, nil)
	lb.CatchUp(context.Background(), m)
	if _, ok := lb.Error(); !ok {
		t.Error("expected to remain in Error state within the backoff window")
	}
}

func TestCloseCancelsActiveRecompute(t *testing.T) {
	fetcher := &fakeFetcher{delay: time.Second}
	ranker := ranking.NewElo(ranking.DefaultEloConfig())
	lb := Global(1, ranker, fetcher)
	lb.Reset(context.Background(), lb.Name, filter.AcceptAll())
	lb.Close()
	// Close should not panic and should leave the leaderboard in a safe
	// (non-Live) state since the recompute never got to install.
	if lb.Stats() != nil {
		t.Error("expected recompute result to be discarded after Close")
	}
}
