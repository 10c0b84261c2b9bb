package buildmgr

import (
	"context"
	"sync"
	"testing"
	"time"

	"cgarena/internal/domain"
	"cgarena/internal/store"
	"cgarena/internal/worker"
)

type fakeStore struct {
	mu     sync.Mutex
	bots   []domain.Bot
	builds map[domain.BotId][]domain.Build
}

func (f *fakeStore) FetchBots(ctx context.Context) ([]domain.Bot, error) { return f.bots, nil }

func (f *fakeStore) FetchBotBuilds(ctx context.Context, id domain.BotId) ([]domain.Build, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Build(nil), f.builds[id]...), nil
}

func (f *fakeStore) UpsertBuild(ctx context.Context, b domain.Build) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing := f.builds[b.BotId]
	for i, e := range existing {
		if e.WorkerName == b.WorkerName {
			existing[i] = b
			f.builds[b.BotId] = existing
			return nil
		}
	}
	f.builds[b.BotId] = append(existing, b)
	return nil
}

// The remaining Store methods are unused by buildmgr; panic if called.
func (f *fakeStore) CreateBot(ctx context.Context, b domain.Bot) (domain.BotId, error) {
	panic("unused")
}
func (f *fakeStore) DeleteBot(ctx context.Context, id domain.BotId) error { panic("unused") }
func (f *fakeStore) RenameBot(ctx context.Context, id domain.BotId, name domain.BotName) error {
	panic("unused")
}
func (f *fakeStore) FetchBot(ctx context.Context, id domain.BotId) (domain.Bot, bool, error) {
	panic("unused")
}
func (f *fakeStore) CreateMatch(ctx context.Context, m domain.Match) (domain.MatchId, error) {
	panic("unused")
}
func (f *fakeStore) FetchMatchesWithAttrs(ctx context.Context, needed []domain.AttributeRef) ([]domain.Match, error) {
	panic("unused")
}
func (f *fakeStore) FetchTurnAttributes(ctx context.Context, matchIds []domain.MatchId, name string) ([]domain.MatchAttribute, error) {
	panic("unused")
}
func (f *fakeStore) CreateLeaderboard(ctx context.Context, id domain.LeaderboardId, name domain.LeaderboardName, filterText string) error {
	panic("unused")
}
func (f *fakeStore) PatchLeaderboard(ctx context.Context, id domain.LeaderboardId, name domain.LeaderboardName, filterText string) error {
	panic("unused")
}
func (f *fakeStore) DeleteLeaderboard(ctx context.Context, id domain.LeaderboardId) error {
	panic("unused")
}
func (f *fakeStore) FetchLeaderboards(ctx context.Context) ([]store.PersistedLeaderboard, error) {
	panic("unused")
}
func (f *fakeStore) BotStats(ctx context.Context) ([]store.BotStats, error) { panic("unused") }

var _ store.Store = (*fakeStore)(nil)

type fakeWorker struct {
	name       domain.WorkerName
	buildOK    bool
	buildCalls int
	mu         sync.Mutex
	valid      map[domain.BotId]bool
}

func (w *fakeWorker) Name() domain.WorkerName { return w.name }
func (w *fakeWorker) IsBuildValid(ctx context.Context, id domain.BotId) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.valid[id]
}
func (w *fakeWorker) Build(ctx context.Context, input worker.BuildBotInput) (bool, string, error) {
	w.mu.Lock()
	w.buildCalls++
	if w.buildOK {
		if w.valid == nil {
			w.valid = make(map[domain.BotId]bool)
		}
		w.valid[input.BotId] = true
	}
	w.mu.Unlock()
	return w.buildOK, "", nil
}
func (w *fakeWorker) EnqueueMatch(ctx context.Context, input worker.PlayMatchInput) error {
	return nil
}
func (w *fakeWorker) Results() <-chan worker.PlayMatchOutput { return nil }

var _ worker.Worker = (*fakeWorker)(nil)

func TestReconcileBotEnqueuesPendingBuildAndDrainRunsIt(t *testing.T) {
	name, _ := domain.NewWorkerName("embedded")
	w := &fakeWorker{name: name, buildOK: true}
	s := &fakeStore{builds: make(map[domain.BotId][]domain.Build)}

	m := New(s, []worker.Worker{w}, map[domain.WorkerName]int64{name: 2})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	botName, _ := domain.NewBotName("Bot1")
	src, _ := domain.NewSourceCode("x")
	lang, _ := domain.NewLanguage("python")
	bot := domain.NewBot(botName, src, lang, time.Now())
	bot.Id = 1

	m.ReconcileBot(ctx, bot)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		builds, _ := s.FetchBotBuilds(ctx, 1)
		if len(builds) == 1 && builds[0].Status.IsSuccess() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("expected build to reach Success status")
}

func TestReconcileBotSkipsAlreadyValidSuccessfulBuild(t *testing.T) {
	name, _ := domain.NewWorkerName("embedded")
	w := &fakeWorker{name: name, valid: map[domain.BotId]bool{1: true}}
	s := &fakeStore{builds: make(map[domain.BotId][]domain.Build)}
	running := domain.NewBuild(1, name).Status.IntoRunning()
	s.builds[1] = []domain.Build{{BotId: 1, WorkerName: name, Status: running.IntoSuccess()}}

	m := New(s, []worker.Worker{w}, map[domain.WorkerName]int64{name: 1})
	bot := domain.Bot{Id: 1}
	m.ReconcileBot(context.Background(), bot)

	if w.buildCalls != 0 {
		t.Fatalf("expected no rebuild, build was attempted")
	}
}
