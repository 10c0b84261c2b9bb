package stats

import (
	"testing"

	"cgarena/internal/domain"
	"cgarena/internal/ranking"
)

func TestRecalcAfterMatchSymmetricWinrate(t *testing.T) {
	s := New()
	ranker := ranking.NewElo(ranking.DefaultEloConfig())

	bot1, bot2 := domain.BotId(1), domain.BotId(2)
	m := domain.NewMatch(1234, []domain.Participant{
		{BotId: bot1, Rank: 0},
		{BotId: bot2, Rank: 1},
	}, nil)

	s.RecalcAfterMatch(ranker, m)

	if got := s.TotalMatches(); got != 1 {
		t.Fatalf("total matches = %d, want 1", got)
	}

	w12 := s.WinrateBetween(bot1, bot2)
	w21 := s.WinrateBetween(bot2, bot1)
	if w12.Wins != 1 || w21.Loses != 1 {
		t.Errorf("expected symmetric winrate, got %+v / %+v", w12, w21)
	}

	r1, ok1 := s.Rating(bot1)
	r2, ok2 := s.Rating(bot2)
	if !ok1 || !ok2 {
		t.Fatal("expected both bots to have ratings")
	}
	if r1.Score() <= r2.Score() {
		t.Errorf("winner should score higher: %+v vs %+v", r1, r2)
	}
}

func TestSeedRingDedupesAndTrims(t *testing.T) {
	s := New()
	ranker := ranking.NewElo(ranking.DefaultEloConfig())
	for i := 0; i < 15; i++ {
		m := domain.NewMatch(int64(i%12), []domain.Participant{
			{BotId: 1, Rank: 0},
			{BotId: 2, Rank: 1},
		}, nil)
		s.RecalcAfterMatch(ranker, m)
	}
	if got := len(s.ExampleSeeds()); got > 10 {
		t.Errorf("example seeds not trimmed: got %d entries", got)
	}

	d := New()
	for i := 0; i < 2; i++ {
		d.RecalcAfterMatch(ranker, domain.NewMatch(7, []domain.Participant{
			{BotId: 1, Rank: 0},
			{BotId: 2, Rank: 1},
		}, nil))
	}
	if got := len(d.ExampleSeeds()); got != 1 {
		t.Errorf("repeated seed not deduped: got %d entries, want 1", got)
	}
}

func TestMatchesWithErrorCounted(t *testing.T) {
	s := New()
	ranker := ranking.NewElo(ranking.DefaultEloConfig())
	m := domain.NewMatch(1, []domain.Participant{
		{BotId: 1, Rank: 0, Error: false},
		{BotId: 2, Rank: 1, Error: true},
	}, nil)
	s.RecalcAfterMatch(ranker, m)
	if s.MatchesWithError(2) != 1 {
		t.Errorf("expected bot 2 to have 1 errored match")
	}
	if s.MatchesWithError(1) != 0 {
		t.Errorf("expected bot 1 to have 0 errored matches")
	}
}
