package store

import (
	"context"
	"testing"
	"time"

	"cgarena/internal/domain"
)

func newTestStore(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func mustBot(t *testing.T, name string) domain.Bot {
	t.Helper()
	n, err := domain.NewBotName(name)
	if err != nil {
		t.Fatal(err)
	}
	src, _ := domain.NewSourceCode("print(1)")
	lang, _ := domain.NewLanguage("python")
	return domain.NewBot(n, src, lang, time.Now().UTC())
}

func TestCreateFetchDeleteBot(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, err := s.CreateBot(ctx, mustBot(t, "Bot1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if id == 0 {
		t.Fatal("expected non-zero id")
	}

	bots, err := s.FetchBots(ctx)
	if err != nil || len(bots) != 1 {
		t.Fatalf("fetch bots: %v %v", bots, err)
	}

	if err := s.DeleteBot(ctx, id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	bots, _ = s.FetchBots(ctx)
	if len(bots) != 0 {
		t.Fatalf("expected no bots after delete, got %d", len(bots))
	}
}

func TestCreateBotDuplicateName(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, err := s.CreateBot(ctx, mustBot(t, "Bot1")); err != nil {
		t.Fatal(err)
	}
	_, err := s.CreateBot(ctx, mustBot(t, "Bot1"))
	if domain.KindOf(err) != domain.KindAlreadyExists {
		t.Fatalf("expected AlreadyExists, got %v", err)
	}
}

func TestCreateMatchRoundTripsParticipantsAndAttributes(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	bot1, err := s.CreateBot(ctx, mustBot(t, "Bot1"))
	if err != nil {
		t.Fatal(err)
	}
	bot2, err := s.CreateBot(ctx, mustBot(t, "Bot2"))
	if err != nil {
		t.Fatal(err)
	}

	m := domain.NewMatch(1234, []domain.Participant{
		{BotId: bot1, Rank: 0},
		{BotId: bot2, Rank: 1, Error: true},
	}, []domain.MatchAttribute{
		{Name: "map", Value: domain.StringValue("small")},
		{Name: "score", BotId: &bot1, Value: domain.IntegerValue(42)},
	})

	id, err := s.CreateMatch(ctx, m)
	if err != nil {
		t.Fatalf("create match: %v", err)
	}
	if id == 0 {
		t.Fatal("expected non-zero match id")
	}

	matches, err := s.FetchMatchesWithAttrs(ctx, nil)
	if err != nil || len(matches) != 1 {
		t.Fatalf("fetch matches: %v %v", matches, err)
	}
	got := matches[0]
	if len(got.Participants) != 2 || len(got.Attributes) != 2 {
		t.Fatalf("unexpected match shape: %+v", got)
	}
}

func TestRenameBotCollision(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if _, err := s.CreateBot(ctx, mustBot(t, "A")); err != nil {
		t.Fatal(err)
	}
	bId, err := s.CreateBot(ctx, mustBot(t, "B"))
	if err != nil {
		t.Fatal(err)
	}
	nameA, _ := domain.NewBotName("A")
	err = s.RenameBot(ctx, bId, nameA)
	if domain.KindOf(err) != domain.KindAlreadyExists {
		t.Fatalf("expected AlreadyExists, got %v", err)
	}
}
