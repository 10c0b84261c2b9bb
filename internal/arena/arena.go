// Package arena implements the Arena actor (SPEC_FULL.md C9 /
// spec.md section 4.9, grounded on original_source/arena_handle.rs and
// arena_commands.rs — the later of the source's overlapping
// prototypes, per spec.md section 9's redesign-flags guidance). A
// single goroutine owns all bots, leaderboards, and the matchmaking
// flag; every other goroutine talks to it only through Command values
// sent on a bounded channel.
package arena

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync/atomic"
	"time"

	"cgarena/internal/buildmgr"
	"cgarena/internal/chart"
	"cgarena/internal/domain"
	"cgarena/internal/filter"
	"cgarena/internal/leaderboard"
	"cgarena/internal/ranking"
	"cgarena/internal/stats"
	"cgarena/internal/store"
	"cgarena/internal/worker"
)

// commandChanSize matches spec.md section 5's "command = 16" bounded
// channel budget.
const commandChanSize = 16

// drainDeadline bounds how long Run keeps servicing the channel after
// ctx is cancelled before it gives up and exits (spec.md section 4.9).
const drainDeadline = 2 * time.Second

// GlobalLeaderboardId is the built-in, always-present accept-all
// leaderboard's fixed id.
const GlobalLeaderboardId domain.LeaderboardId = 1

// CreateBotResult is CreateBot's response; Err is nil on success, or a
// domain.Error of kind AlreadyExists/ValidationFailed/Internal.
type CreateBotResult struct {
	Bot domain.Bot
	Err error
}

// RenameBotResult is RenameBot's response.
type RenameBotResult struct {
	Err error
}

// FetchBotSourceCodeResult is FetchBotSourceCode's response.
type FetchBotSourceCodeResult struct {
	Source domain.SourceCode
	Found  bool
}

// BotOverview is one bot's status-page summary.
type BotOverview struct {
	Bot              domain.Bot
	MatchesPlayed    uint64
	MatchesWithError uint64
	Builds           []domain.Build
}

// LeaderboardStatusKind mirrors leaderboard.Leaderboard's internal
// state machine for API consumption.
type LeaderboardStatusKind int

const (
	StatusLive LeaderboardStatusKind = iota
	StatusComputing
	StatusError
)

// LeaderboardItem is one bot's ranked entry in a leaderboard overview.
type LeaderboardItem struct {
	BotId  domain.BotId
	Rank   int
	Rating domain.Rating
}

// LeaderboardOverview is the full read model for one leaderboard.
type LeaderboardOverview struct {
	Id           domain.LeaderboardId
	Name         domain.LeaderboardName
	FilterText   string
	Status       LeaderboardStatusKind
	ErrorMessage string
	Items        []LeaderboardItem
	// WinrateStats is keyed "A:B" (decimal bot ids): A's record against B.
	WinrateStats map[string]stats.WinrateStats
	TotalMatches uint64
	ExampleSeeds []int64
}

// PatchLeaderboardResult is PatchLeaderboard's response.
type PatchLeaderboardResult struct {
	Err error
}

// FetchStatusResult is FetchStatus's response: the whole status page.
type FetchStatusResult struct {
	Bots               []BotOverview
	Leaderboards       []LeaderboardOverview
	MatchmakingEnabled bool
}

// ChartResult is Chart's response.
type ChartResult struct {
	Overview chart.Overview
	Err      error
}

// Arena is the actor: construct with New, then run its command loop
// with Run in a dedicated goroutine. Every other method is safe to
// call concurrently; they only enqueue a Command and await its
// response.
type Arena struct {
	store   store.Store
	ranker  ranking.Ranker
	builds  *buildmgr.Manager
	workers []worker.Worker

	commands     chan any
	matchResults chan worker.PlayMatchOutput

	matchmakingEnabled atomic.Bool

	// Touched only inside the Run goroutine.
	bots              map[domain.BotId]domain.Bot
	leaderboards      map[domain.LeaderboardId]*leaderboard.Leaderboard
	nextLeaderboardId domain.LeaderboardId
}

// New constructs the actor and loads its initial state (bots and
// persisted leaderboards) from the store. It does not start Run.
func New(ctx context.Context, s store.Store, ranker ranking.Ranker, workers []worker.Worker, builds *buildmgr.Manager) (*Arena, error) {
	a := &Arena{
		store:             s,
		ranker:            ranker,
		builds:            builds,
		workers:           workers,
		commands:          make(chan any, commandChanSize),
		matchResults:      make(chan worker.PlayMatchOutput, 100),
		bots:              make(map[domain.BotId]domain.Bot),
		leaderboards:      make(map[domain.LeaderboardId]*leaderboard.Leaderboard),
		nextLeaderboardId: GlobalLeaderboardId + 1,
	}
	a.matchmakingEnabled.Store(true)

	bots, err := s.FetchBots(ctx)
	if err != nil {
		return nil, err
	}
	for _, b := range bots {
		a.bots[b.Id] = b
	}

	global := leaderboard.Global(GlobalLeaderboardId, ranker, s)
	a.leaderboards[GlobalLeaderboardId] = global
	global.Reset(ctx, global.Name, global.Filter)

	persisted, err := s.FetchLeaderboards(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range persisted {
		f, err := filter.Parse(p.FilterText)
		if err != nil {
			log.Printf("arena: skipping leaderboard %d with unparseable filter %q: %v", p.Id, p.FilterText, err)
			continue
		}
		lb := leaderboard.New(p.Id, p.Name, f, ranker, s)
		lb.Reset(ctx, p.Name, f)
		a.leaderboards[p.Id] = lb
		if p.Id >= a.nextLeaderboardId {
			a.nextLeaderboardId = p.Id + 1
		}
	}

	return a, nil
}

// Run is the actor's command loop; it blocks until ctx is cancelled
// and pending work is drained, which takes at most the drain deadline.
// Call it from its own goroutine.
func (a *Arena) Run(ctx context.Context) {
	for _, w := range a.workers {
		go a.forwardResults(ctx, w)
	}
	for {
		select {
		case <-ctx.Done():
			a.drain()
			return
		case cmd := <-a.commands:
			a.handle(ctx, cmd)
		case out := <-a.matchResults:
			a.commitMatch(ctx, out)
		}
	}
}

func (a *Arena) forwardResults(ctx context.Context, w worker.Worker) {
	for {
		select {
		case <-ctx.Done():
			return
		case out, ok := <-w.Results():
			if !ok {
				return
			}
			select {
			case a.matchResults <- out:
			case <-ctx.Done():
				return
			}
		}
	}
}

// drain services any remaining commands/results after cancellation,
// up to drainDeadline, then returns (spec.md section 4.9).
func (a *Arena) drain() {
	deadline := time.NewTimer(drainDeadline)
	defer deadline.Stop()
	background := context.Background()
	for {
		select {
		case cmd := <-a.commands:
			a.handle(background, cmd)
		case out := <-a.matchResults:
			a.commitMatch(background, out)
		case <-deadline.C:
			return
		default:
			return
		}
	}
}

func (a *Arena) handle(ctx context.Context, cmd any) {
	switch c := cmd.(type) {
	case createBotCmd:
		a.handleCreateBot(ctx, c)
	case renameBotCmd:
		a.handleRenameBot(ctx, c)
	case deleteBotCmd:
		a.handleDeleteBot(ctx, c)
	case fetchBotSourceCmd:
		a.handleFetchBotSource(c)
	case fetchStatusCmd:
		a.handleFetchStatus(ctx, c)
	case createLeaderboardCmd:
		a.handleCreateLeaderboard(ctx, c)
	case patchLeaderboardCmd:
		a.handlePatchLeaderboard(ctx, c)
	case deleteLeaderboardCmd:
		a.handleDeleteLeaderboard(ctx, c)
	case chartCmd:
		a.handleChart(ctx, c)
	case enableMatchmakingCmd:
		a.matchmakingEnabled.Store(c.enabled)
		close(c.resp)
	default:
		log.Printf("arena: unknown command type %T", cmd)
	}
}

// MatchmakingEnabled reports the current flag; safe for concurrent
// callers (the server loop polls this before ticking the matchmaker).
func (a *Arena) MatchmakingEnabled() bool { return a.matchmakingEnabled.Load() }

func (a *Arena) commitMatch(ctx context.Context, out worker.PlayMatchOutput) {
	m := domain.NewMatch(out.Seed, out.Participants, out.Attributes)
	id, err := a.store.CreateMatch(ctx, m)
	if err != nil {
		log.Printf("arena: committing match: %v", err)
		return
	}
	m.Id = id
	for _, lb := range a.leaderboards {
		lb.CatchUp(ctx, m)
	}
}

func leaderboardStatus(lb *leaderboard.Leaderboard) (LeaderboardStatusKind, string) {
	if lb.Stats() != nil {
		return StatusLive, ""
	}
	if err, ok := lb.Error(); ok {
		return StatusError, err.Error()
	}
	return StatusComputing, ""
}

func overviewFor(lb *leaderboard.Leaderboard, ranker ranking.Ranker) LeaderboardOverview {
	status, msg := leaderboardStatus(lb)
	out := LeaderboardOverview{
		Id:           lb.Id,
		Name:         lb.Name,
		FilterText:   lb.Filter.String(),
		Status:       status,
		ErrorMessage: msg,
	}
	st := lb.Stats()
	if st == nil {
		return out
	}
	ratings := st.Ratings()
	items := make([]LeaderboardItem, 0, len(ratings))
	for id, r := range ratings {
		items = append(items, LeaderboardItem{BotId: id, Rating: r})
	}
	sort.Slice(items, func(i, j int) bool {
		si, sj := items[i].Rating.Score(), items[j].Rating.Score()
		if si != sj {
			return si > sj
		}
		return items[i].BotId < items[j].BotId
	})
	for i := range items {
		items[i].Rank = i
	}
	out.Items = items
	out.WinrateStats = make(map[string]stats.WinrateStats)
	for _, a := range items {
		for _, b := range items {
			if a.BotId == b.BotId {
				continue
			}
			out.WinrateStats[fmt.Sprintf("%d:%d", a.BotId, b.BotId)] = st.WinrateBetween(a.BotId, b.BotId)
		}
	}
	out.TotalMatches = st.TotalMatches()
	out.ExampleSeeds = st.ExampleSeeds()
	return out
}
