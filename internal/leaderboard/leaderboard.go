// Package leaderboard implements the async leaderboard state machine
// (SPEC_FULL.md C5 / spec.md section 4.5): background recompute with
// cancellation, live incremental updates, and error backoff.
package leaderboard

import (
	"context"
	"sync"
	"time"

	"cgarena/internal/domain"
	"cgarena/internal/filter"
	"cgarena/internal/ranking"
	"cgarena/internal/stats"
)

// errorBackoff is how long an Error-state leaderboard waits before a
// live match arrival triggers a fresh recompute attempt.
const errorBackoff = 3 * time.Second

type stateKind int

const (
	stateLive stateKind = iota
	stateComputing
	stateError
)

// HistoryFetcher loads every match the leaderboard's filter needs to
// fully recompute from scratch; it is the Store's
// fetch_matches_with_attrs operation scoped to this filter's
// NeededAttributes.
type HistoryFetcher interface {
	FetchMatchesWithAttrs(ctx context.Context, needed []domain.AttributeRef) ([]domain.Match, error)
}

// Leaderboard is a named (filter, ComputedStats) pair with its own
// background-recompute lifecycle. Leaderboards exclusively own their
// ComputedStats and cancellation token; the Arena actor never reaches
// into this state directly, only through the methods below.
type Leaderboard struct {
	Id     domain.LeaderboardId
	Name   domain.LeaderboardName
	Filter filter.MatchFilter

	ranker ranking.Ranker
	source HistoryFetcher

	mu         sync.Mutex
	kind       stateKind
	live       *stats.ComputedStats
	cancel     context.CancelFunc
	generation uint64
	errAt      time.Time
	errValue   error
	buffer     []domain.Match
}

func New(id domain.LeaderboardId, name domain.LeaderboardName, f filter.MatchFilter, ranker ranking.Ranker, source HistoryFetcher) *Leaderboard {
	return &Leaderboard{
		Id:     id,
		Name:   name,
		Filter: f,
		ranker: ranker,
		source: source,
		kind:   stateLive,
		live:   stats.New(),
	}
}

// Global constructs the built-in leaderboard with an accept-all filter.
func Global(id domain.LeaderboardId, ranker ranking.Ranker, source HistoryFetcher) *Leaderboard {
	name, _ := domain.NewLeaderboardName("Global")
	return New(id, name, filter.AcceptAll(), ranker, source)
}

// Stats returns a snapshot only while Live; nil otherwise.
func (l *Leaderboard) Stats() *stats.ComputedStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.kind != stateLive {
		return nil
	}
	return l.live
}

// Error returns the parked error, only while in the Error state.
func (l *Leaderboard) Error() (error, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.kind != stateError {
		return nil, false
	}
	return l.errValue, true
}

// Reset moves the leaderboard to Computing with a new filter/name and
// kicks off a background recompute, cancelling any prior one first.
// Called from PatchLeaderboard when the filter or name changes.
func (l *Leaderboard) Reset(ctx context.Context, name domain.LeaderboardName, f filter.MatchFilter) {
	l.mu.Lock()
	l.Name = name
	l.Filter = f
	if l.cancel != nil {
		l.cancel()
	}
	computeCtx, cancel := context.WithCancel(ctx)
	l.kind = stateComputing
	l.cancel = cancel
	l.generation++
	gen := l.generation
	l.buffer = nil
	l.mu.Unlock()

	go l.recompute(computeCtx, gen)
}

// recompute runs in the background, loading full match history and
// folding every filter-accepted match into a fresh ComputedStats. gen
// identifies which Reset/CatchUp-triggered attempt this is; if a newer
// attempt has since started, this one's result is discarded even if it
// finishes without its own context being cancelled.
func (l *Leaderboard) recompute(ctx context.Context, gen uint64) {
	needed := l.Filter.NeededAttributes()
	matches, err := l.source.FetchMatchesWithAttrs(ctx, needed)
	if err != nil {
		l.installError(gen, err)
		return
	}

	fresh := stats.New()
	for _, m := range matches {
		if l.Filter.Matches(m) {
			fresh.RecalcAfterMatch(l.ranker, m)
		}
	}

	select {
	case <-ctx.Done():
		return
	default:
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.generation != gen {
		return
	}
	for _, m := range l.buffer {
		if l.Filter.Matches(m) {
			fresh.RecalcAfterMatch(l.ranker, m)
		}
	}
	l.buffer = nil
	l.live = fresh
	l.kind = stateLive
	l.cancel = nil
}

func (l *Leaderboard) installError(gen uint64, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.generation != gen {
		return
	}
	l.kind = stateError
	l.errValue = err
	l.errAt = time.Now()
	l.cancel = nil
}

// CatchUp is called on every committed match. While Live, it folds the
// match directly into stats if accepted by the filter. While
// Computing, it buffers. While Error, it retries the recompute once
// the 3-second backoff has elapsed.
func (l *Leaderboard) CatchUp(ctx context.Context, m domain.Match) {
	l.mu.Lock()
	switch l.kind {
	case stateLive:
		if l.Filter.Matches(m) {
			l.live.RecalcAfterMatch(l.ranker, m)
		}
		l.mu.Unlock()
		return
	case stateComputing:
		l.buffer = append(l.buffer, m)
		l.mu.Unlock()
		return
	case stateError:
		if time.Since(l.errAt) <= errorBackoff {
			l.mu.Unlock()
			return
		}
		computeCtx, cancel := context.WithCancel(ctx)
		l.kind = stateComputing
		l.cancel = cancel
		l.generation++
		gen := l.generation
		l.buffer = []domain.Match{m}
		l.mu.Unlock()
		go l.recompute(computeCtx, gen)
		return
	}
	l.mu.Unlock()
}

// Close cancels any active background recompute; called when the
// Arena actor drops the leaderboard (DeleteLeaderboard).
func (l *Leaderboard) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
}
