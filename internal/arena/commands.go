package arena

import (
	"context"
	"log"
	"time"

	"cgarena/internal/chart"
	"cgarena/internal/domain"
	"cgarena/internal/filter"
	"cgarena/internal/leaderboard"
)

type createBotCmd struct {
	name   domain.BotName
	source domain.SourceCode
	lang   domain.Language
	resp   chan CreateBotResult
}

type renameBotCmd struct {
	id      domain.BotId
	newName domain.BotName
	resp    chan RenameBotResult
}

type deleteBotCmd struct {
	id   domain.BotId
	resp chan struct{}
}

type fetchBotSourceCmd struct {
	id   domain.BotId
	resp chan FetchBotSourceCodeResult
}

type fetchStatusCmd struct {
	resp chan FetchStatusResult
}

type createLeaderboardCmd struct {
	name       domain.LeaderboardName
	filterText string
	f          filter.MatchFilter
	resp       chan LeaderboardOverview
}

type patchLeaderboardCmd struct {
	id         domain.LeaderboardId
	name       domain.LeaderboardName
	filterText string
	f          filter.MatchFilter
	resp       chan PatchLeaderboardResult
}

type deleteLeaderboardCmd struct {
	id   domain.LeaderboardId
	resp chan struct{}
}

type chartCmd struct {
	f             filter.MatchFilter
	attributeName string
	resp          chan ChartResult
}

type enableMatchmakingCmd struct {
	enabled bool
	resp    chan struct{}
}

// CreateBot enqueues a CreateBot command and awaits its response.
func (a *Arena) CreateBot(ctx context.Context, name domain.BotName, source domain.SourceCode, lang domain.Language) (CreateBotResult, error) {
	resp := make(chan CreateBotResult, 1)
	cmd := createBotCmd{name: name, source: source, lang: lang, resp: resp}
	if err := a.send(ctx, cmd); err != nil {
		return CreateBotResult{}, err
	}
	return await(ctx, resp)
}

func (a *Arena) RenameBot(ctx context.Context, id domain.BotId, newName domain.BotName) (RenameBotResult, error) {
	resp := make(chan RenameBotResult, 1)
	if err := a.send(ctx, renameBotCmd{id: id, newName: newName, resp: resp}); err != nil {
		return RenameBotResult{}, err
	}
	return await(ctx, resp)
}

func (a *Arena) DeleteBot(ctx context.Context, id domain.BotId) error {
	resp := make(chan struct{})
	if err := a.send(ctx, deleteBotCmd{id: id, resp: resp}); err != nil {
		return err
	}
	_, err := await(ctx, resp)
	return err
}

func (a *Arena) FetchBotSourceCode(ctx context.Context, id domain.BotId) (FetchBotSourceCodeResult, error) {
	resp := make(chan FetchBotSourceCodeResult, 1)
	if err := a.send(ctx, fetchBotSourceCmd{id: id, resp: resp}); err != nil {
		return FetchBotSourceCodeResult{}, err
	}
	return await(ctx, resp)
}

func (a *Arena) FetchStatus(ctx context.Context) (FetchStatusResult, error) {
	resp := make(chan FetchStatusResult, 1)
	if err := a.send(ctx, fetchStatusCmd{resp: resp}); err != nil {
		return FetchStatusResult{}, err
	}
	return await(ctx, resp)
}

func (a *Arena) CreateLeaderboard(ctx context.Context, name domain.LeaderboardName, filterText string, f filter.MatchFilter) (LeaderboardOverview, error) {
	resp := make(chan LeaderboardOverview, 1)
	if err := a.send(ctx, createLeaderboardCmd{name: name, filterText: filterText, f: f, resp: resp}); err != nil {
		return LeaderboardOverview{}, err
	}
	return await(ctx, resp)
}

func (a *Arena) PatchLeaderboard(ctx context.Context, id domain.LeaderboardId, name domain.LeaderboardName, filterText string, f filter.MatchFilter) (PatchLeaderboardResult, error) {
	resp := make(chan PatchLeaderboardResult, 1)
	if err := a.send(ctx, patchLeaderboardCmd{id: id, name: name, filterText: filterText, f: f, resp: resp}); err != nil {
		return PatchLeaderboardResult{}, err
	}
	return await(ctx, resp)
}

func (a *Arena) DeleteLeaderboard(ctx context.Context, id domain.LeaderboardId) error {
	resp := make(chan struct{})
	if err := a.send(ctx, deleteLeaderboardCmd{id: id, resp: resp}); err != nil {
		return err
	}
	_, err := await(ctx, resp)
	return err
}

func (a *Arena) Chart(ctx context.Context, f filter.MatchFilter, attributeName string) (ChartResult, error) {
	resp := make(chan ChartResult, 1)
	if err := a.send(ctx, chartCmd{f: f, attributeName: attributeName, resp: resp}); err != nil {
		return ChartResult{}, err
	}
	return await(ctx, resp)
}

func (a *Arena) EnableMatchmaking(ctx context.Context, enabled bool) error {
	resp := make(chan struct{})
	if err := a.send(ctx, enableMatchmakingCmd{enabled: enabled, resp: resp}); err != nil {
		return err
	}
	_, err := await(ctx, resp)
	return err
}

func (a *Arena) send(ctx context.Context, cmd any) error {
	select {
	case a.commands <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func await[T any](ctx context.Context, resp chan T) (T, error) {
	select {
	case v := <-resp:
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (a *Arena) handleCreateBot(ctx context.Context, c createBotCmd) {
	b := domain.NewBot(c.name, c.source, c.lang, time.Now().UTC())
	id, err := a.store.CreateBot(ctx, b)
	if err != nil {
		c.resp <- CreateBotResult{Err: err}
		return
	}
	b.Id = id
	a.bots[id] = b
	c.resp <- CreateBotResult{Bot: b}
	if a.builds != nil {
		a.builds.ReconcileBot(ctx, b)
	}
}

func (a *Arena) handleRenameBot(ctx context.Context, c renameBotCmd) {
	b, ok := a.bots[c.id]
	if !ok {
		c.resp <- RenameBotResult{Err: domain.NotFoundf("bot %d not found", c.id)}
		return
	}
	if b.Name == c.newName {
		c.resp <- RenameBotResult{}
		return
	}
	if err := a.store.RenameBot(ctx, c.id, c.newName); err != nil {
		c.resp <- RenameBotResult{Err: err}
		return
	}
	b.Name = c.newName
	a.bots[c.id] = b
	c.resp <- RenameBotResult{}
}

func (a *Arena) handleDeleteBot(ctx context.Context, c deleteBotCmd) {
	if err := a.store.DeleteBot(ctx, c.id); err != nil {
		close(c.resp)
		return
	}
	delete(a.bots, c.id)
	close(c.resp)
}

func (a *Arena) handleFetchBotSource(c fetchBotSourceCmd) {
	b, ok := a.bots[c.id]
	if !ok {
		c.resp <- FetchBotSourceCodeResult{}
		return
	}
	c.resp <- FetchBotSourceCodeResult{Source: b.Source, Found: true}
}

func (a *Arena) handleFetchStatus(ctx context.Context, c fetchStatusCmd) {
	bots := make([]BotOverview, 0, len(a.bots))
	global := a.leaderboards[GlobalLeaderboardId]
	for _, b := range a.bots {
		var played, errored uint64
		if st := global.Stats(); st != nil {
			played = st.MatchesPlayed(b.Id)
			errored = st.MatchesWithError(b.Id)
		}
		builds, err := a.store.FetchBotBuilds(ctx, b.Id)
		if err != nil {
			log.Printf("arena: fetching builds for bot %d: %v", b.Id, err)
		}
		bots = append(bots, BotOverview{Bot: b, MatchesPlayed: played, MatchesWithError: errored, Builds: builds})
	}
	leaderboards := make([]LeaderboardOverview, 0, len(a.leaderboards))
	for _, lb := range a.leaderboards {
		leaderboards = append(leaderboards, overviewFor(lb, a.ranker))
	}
	c.resp <- FetchStatusResult{Bots: bots, Leaderboards: leaderboards, MatchmakingEnabled: a.MatchmakingEnabled()}
}

func (a *Arena) handleCreateLeaderboard(ctx context.Context, c createLeaderboardCmd) {
	id := a.nextLeaderboardId
	a.nextLeaderboardId++
	if err := a.store.CreateLeaderboard(ctx, id, c.name, c.filterText); err != nil {
		c.resp <- LeaderboardOverview{}
		return
	}
	lb := leaderboard.New(id, c.name, c.f, a.ranker, a.store)
	lb.Reset(ctx, c.name, c.f)
	a.leaderboards[id] = lb
	c.resp <- overviewFor(lb, a.ranker)
}

func (a *Arena) handlePatchLeaderboard(ctx context.Context, c patchLeaderboardCmd) {
	lb, ok := a.leaderboards[c.id]
	if !ok {
		c.resp <- PatchLeaderboardResult{Err: domain.NotFoundf("leaderboard %d not found", c.id)}
		return
	}
	if err := a.store.PatchLeaderboard(ctx, c.id, c.name, c.filterText); err != nil {
		c.resp <- PatchLeaderboardResult{Err: err}
		return
	}
	if lb.Name != c.name || lb.Filter.String() != c.f.String() {
		lb.Reset(ctx, c.name, c.f)
	}
	c.resp <- PatchLeaderboardResult{}
}

func (a *Arena) handleDeleteLeaderboard(ctx context.Context, c deleteLeaderboardCmd) {
	if lb, ok := a.leaderboards[c.id]; ok {
		lb.Close()
		delete(a.leaderboards, c.id)
	}
	if err := a.store.DeleteLeaderboard(ctx, c.id); err != nil {
		log.Printf("arena: deleting leaderboard %d: %v", c.id, err)
	}
	close(c.resp)
}

func (a *Arena) handleChart(ctx context.Context, c chartCmd) {
	overview, err := chart.Visualize(ctx, a.store, c.f, c.attributeName)
	c.resp <- ChartResult{Overview: overview, Err: err}
}
