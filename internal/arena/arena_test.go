package arena

import (
	"context"
	"testing"
	"time"

	"cgarena/internal/domain"
	"cgarena/internal/filter"
	"cgarena/internal/ranking"
	"cgarena/internal/store"
)

func newTestArena(t *testing.T) *Arena {
	t.Helper()
	s, err := store.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("migrating store: %v", err)
	}

	ranker, err := ranking.NewFromAlgorithm(ranking.AlgorithmElo, ranking.DefaultEloConfig(), ranking.DefaultOpenSkillConfig(), ranking.DefaultTrueSkillConfig())
	if err != nil {
		t.Fatalf("building ranker: %v", err)
	}

	a, err := New(context.Background(), s, ranker, nil, nil)
	if err != nil {
		t.Fatalf("constructing arena: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go a.Run(ctx)
	return a
}

// waitForLeaderboardLive polls FetchStatus until id settles into
// StatusLive, failing the test if it lands in StatusError or never
// settles within the deadline.
func waitForLeaderboardLive(t *testing.T, a *Arena, id domain.LeaderboardId) {
	t.Helper()
	ctx := context.Background()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		status, err := a.FetchStatus(ctx)
		if err != nil {
			t.Fatalf("FetchStatus: %v", err)
		}
		for _, lb := range status.Leaderboards {
			if lb.Id != id {
				continue
			}
			switch lb.Status {
			case StatusLive:
				return
			case StatusError:
				t.Fatalf("leaderboard %d entered Error state: %s", id, lb.ErrorMessage)
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("leaderboard %d never reached Live", id)
}

func mustBotName(t *testing.T, raw string) domain.BotName {
	t.Helper()
	n, err := domain.NewBotName(raw)
	if err != nil {
		t.Fatalf("NewBotName(%q): %v", raw, err)
	}
	return n
}

func TestCreateBotThenFetchStatus(t *testing.T) {
	a := newTestArena(t)
	ctx := context.Background()

	src, _ := domain.NewSourceCode("print('hi')")
	lang, _ := domain.NewLanguage("python")
	res, err := a.CreateBot(ctx, mustBotName(t, "Alice"), src, lang)
	if err != nil {
		t.Fatalf("CreateBot: %v", err)
	}
	if res.Err != nil {
		t.Fatalf("CreateBot result error: %v", res.Err)
	}
	if res.Bot.Id == 0 {
		t.Fatal("expected a non-zero bot id")
	}

	status, err := a.FetchStatus(ctx)
	if err != nil {
		t.Fatalf("FetchStatus: %v", err)
	}
	if len(status.Bots) != 1 {
		t.Fatalf("expected 1 bot in status, got %d", len(status.Bots))
	}
	if status.Bots[0].Bot.Name != "Alice" {
		t.Fatalf("expected bot named Alice, got %s", status.Bots[0].Bot.Name)
	}
	if !status.MatchmakingEnabled {
		t.Fatal("expected matchmaking enabled by default")
	}
	if len(status.Leaderboards) != 1 {
		t.Fatalf("expected only the built-in Global leaderboard, got %d", len(status.Leaderboards))
	}
}

func TestCreateBotDuplicateNameFails(t *testing.T) {
	a := newTestArena(t)
	ctx := context.Background()
	src, _ := domain.NewSourceCode("x")
	lang, _ := domain.NewLanguage("python")

	if _, err := a.CreateBot(ctx, mustBotName(t, "Dup"), src, lang); err != nil {
		t.Fatalf("first CreateBot: %v", err)
	}
	res, err := a.CreateBot(ctx, mustBotName(t, "Dup"), src, lang)
	if err != nil {
		t.Fatalf("second CreateBot: %v", err)
	}
	if res.Err == nil {
		t.Fatal("expected second create with the same name to fail")
	}
	if domain.KindOf(res.Err) != domain.KindAlreadyExists {
		t.Fatalf("expected AlreadyExists, got %v", domain.KindOf(res.Err))
	}
}

func TestRenameBotToSameNameIsNoop(t *testing.T) {
	a := newTestArena(t)
	ctx := context.Background()
	src, _ := domain.NewSourceCode("x")
	lang, _ := domain.NewLanguage("python")

	created, err := a.CreateBot(ctx, mustBotName(t, "Same"), src, lang)
	if err != nil || created.Err != nil {
		t.Fatalf("CreateBot: %v / %v", err, created.Err)
	}

	res, err := a.RenameBot(ctx, created.Bot.Id, mustBotName(t, "Same"))
	if err != nil {
		t.Fatalf("RenameBot: %v", err)
	}
	if res.Err != nil {
		t.Fatalf("expected renaming to the current name to succeed, got %v", res.Err)
	}
}

func TestDeleteBotRemovesFromStatus(t *testing.T) {
	a := newTestArena(t)
	ctx := context.Background()
	src, _ := domain.NewSourceCode("x")
	lang, _ := domain.NewLanguage("python")

	created, err := a.CreateBot(ctx, mustBotName(t, "Gone"), src, lang)
	if err != nil || created.Err != nil {
		t.Fatalf("CreateBot: %v / %v", err, created.Err)
	}
	if err := a.DeleteBot(ctx, created.Bot.Id); err != nil {
		t.Fatalf("DeleteBot: %v", err)
	}

	status, err := a.FetchStatus(ctx)
	if err != nil {
		t.Fatalf("FetchStatus: %v", err)
	}
	if len(status.Bots) != 0 {
		t.Fatalf("expected no bots after delete, got %d", len(status.Bots))
	}
}

func TestCreateLeaderboardWithInvalidFilterIsRejectedBeforeReachingArena(t *testing.T) {
	_, err := filter.Parse("not a valid filter (")
	if err == nil {
		t.Fatal("expected a parse error for malformed filter text")
	}
}

func TestCreateAndDeleteLeaderboard(t *testing.T) {
	a := newTestArena(t)
	ctx := context.Background()

	f := filter.AcceptAll()
	name, _ := domain.NewLeaderboardName("Everyone")
	overview, err := a.CreateLeaderboard(ctx, name, f.String(), f)
	if err != nil {
		t.Fatalf("CreateLeaderboard: %v", err)
	}
	if overview.Id == GlobalLeaderboardId {
		t.Fatal("expected a fresh id distinct from the built-in Global leaderboard")
	}
	// The initial recompute runs in the background (Reset never blocks
	// the actor loop), so the response to CreateLeaderboard can still
	// observe Computing; only the eventual, polled state is guaranteed.
	if overview.Status != StatusLive && overview.Status != StatusComputing {
		t.Fatalf("expected a freshly created leaderboard to be Live or Computing, got %v", overview.Status)
	}
	waitForLeaderboardLive(t, a, overview.Id)

	if err := a.DeleteLeaderboard(ctx, overview.Id); err != nil {
		t.Fatalf("DeleteLeaderboard: %v", err)
	}

	status, err := a.FetchStatus(ctx)
	if err != nil {
		t.Fatalf("FetchStatus: %v", err)
	}
	for _, lb := range status.Leaderboards {
		if lb.Id == overview.Id {
			t.Fatal("expected deleted leaderboard to be gone from status")
		}
	}
}

func TestEnableMatchmakingToggle(t *testing.T) {
	a := newTestArena(t)
	ctx := context.Background()

	if err := a.EnableMatchmaking(ctx, false); err != nil {
		t.Fatalf("EnableMatchmaking: %v", err)
	}
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && a.MatchmakingEnabled() {
		time.Sleep(2 * time.Millisecond)
	}
	if a.MatchmakingEnabled() {
		t.Fatal("expected matchmaking to be disabled")
	}
}
