package matchmaker

import (
	"context"
	"sync"
	"testing"

	"cgarena/internal/domain"
	"cgarena/internal/store"
	"cgarena/internal/worker"
)

type fakeStats struct {
	bots []store.BotStats
}

func (f *fakeStats) BotStats(ctx context.Context) ([]store.BotStats, error) { return f.bots, nil }

func (f *fakeStats) FetchBot(ctx context.Context, id domain.BotId) (domain.Bot, bool, error) {
	for _, b := range f.bots {
		if b.BotId == id {
			return domain.Bot{Id: id}, true, nil
		}
	}
	return domain.Bot{}, false, nil
}

type recordingWorker struct {
	name     domain.WorkerName
	mu       sync.Mutex
	enqueued []worker.PlayMatchInput
}

func (w *recordingWorker) Name() domain.WorkerName                                { return w.name }
func (w *recordingWorker) IsBuildValid(ctx context.Context, id domain.BotId) bool { return true }
func (w *recordingWorker) Build(ctx context.Context, input worker.BuildBotInput) (bool, string, error) {
	return true, "", nil
}
func (w *recordingWorker) EnqueueMatch(ctx context.Context, input worker.PlayMatchInput) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.enqueued = append(w.enqueued, input)
	return nil
}
func (w *recordingWorker) Results() <-chan worker.PlayMatchOutput { return nil }

func newBots(n int) []store.BotStats {
	out := make([]store.BotStats, n)
	for i := range out {
		out[i] = store.BotStats{BotId: domain.BotId(i + 1), MatchesPlayed: 0}
	}
	return out
}

func TestTickReturnsFalseWhenTooFewBots(t *testing.T) {
	src := &fakeStats{bots: newBots(1)}
	w := &recordingWorker{name: "embedded"}
	m := New(src, src, GameConfig{MinPlayers: 2, MaxPlayers: 2}, MatchmakingConfig{MinMatches: 10, MinMatchesPreference: 1}, []worker.Worker{w})

	ok, err := m.Tick(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected Tick to report false with only one bot")
	}
	if len(w.enqueued) != 0 {
		t.Fatal("expected no match enqueued")
	}
}

func TestTickDispatchesSymmetricPermutations(t *testing.T) {
	src := &fakeStats{bots: newBots(2)}
	w := &recordingWorker{name: "embedded"}
	m := New(src, src, GameConfig{MinPlayers: 2, MaxPlayers: 2, Symmetric: true}, MatchmakingConfig{MinMatches: 10, MinMatchesPreference: 1}, []worker.Worker{w})

	ok, err := m.Tick(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatal("expected Tick to succeed with two bots")
	}
	if len(w.enqueued) != 2 {
		t.Fatalf("expected both 2! orderings dispatched, got %d", len(w.enqueued))
	}
	for _, in := range w.enqueued {
		if len(in.BotIds) != 2 {
			t.Fatalf("expected 2 participants, got %d", len(in.BotIds))
		}
	}
}

func TestTickSkipsWhenWorkerPoolEmpty(t *testing.T) {
	src := &fakeStats{bots: newBots(2)}
	m := New(src, src, GameConfig{MinPlayers: 2, MaxPlayers: 2}, MatchmakingConfig{MinMatches: 10, MinMatchesPreference: 1}, nil)

	ok, err := m.Tick(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected Tick to report false with no workers")
	}
}

func TestPermutationsCountsFactorial(t *testing.T) {
	ids := []domain.BotId{1, 2, 3}
	perms := permutations(ids)
	if len(perms) != 6 {
		t.Fatalf("expected 3! = 6 permutations, got %d", len(perms))
	}
	seen := make(map[string]bool)
	for _, p := range perms {
		key := ""
		for _, id := range p {
			key += string(rune('0' + id))
		}
		seen[key] = true
	}
	if len(seen) != 6 {
		t.Fatalf("expected 6 distinct orderings, got %d", len(seen))
	}
}
