// Package store defines the Store contract the Arena actor depends on
// (SPEC_FULL.md C10 / spec.md section 4.10) and provides two backing
// implementations: a pure-Go SQLite store for the default self-hosted
// single-binary deployment, and a Postgres store (grounded in the
// teacher's server/store/store.go) for multi-host deployments.
package store

import (
	"context"
	"time"

	"cgarena/internal/domain"
)

// Store is the abstract persistence contract. All operations are
// async (take a context, free the caller's goroutine while in flight)
// and report NotFound/AlreadyExists via domain.Error rather than
// generic errors, per spec.md section 7.
type Store interface {
	CreateBot(ctx context.Context, b domain.Bot) (domain.BotId, error)
	DeleteBot(ctx context.Context, id domain.BotId) error
	RenameBot(ctx context.Context, id domain.BotId, name domain.BotName) error
	FetchBots(ctx context.Context) ([]domain.Bot, error)
	FetchBot(ctx context.Context, id domain.BotId) (domain.Bot, bool, error)

	FetchBotBuilds(ctx context.Context, id domain.BotId) ([]domain.Build, error)
	UpsertBuild(ctx context.Context, b domain.Build) error

	CreateMatch(ctx context.Context, m domain.Match) (domain.MatchId, error)
	FetchMatchesWithAttrs(ctx context.Context, needed []domain.AttributeRef) ([]domain.Match, error)
	FetchTurnAttributes(ctx context.Context, matchIds []domain.MatchId, attributeName string) ([]domain.MatchAttribute, error)

	CreateLeaderboard(ctx context.Context, id domain.LeaderboardId, name domain.LeaderboardName, filterText string) error
	PatchLeaderboard(ctx context.Context, id domain.LeaderboardId, name domain.LeaderboardName, filterText string) error
	DeleteLeaderboard(ctx context.Context, id domain.LeaderboardId) error
	FetchLeaderboards(ctx context.Context) ([]PersistedLeaderboard, error)

	// BotStats answers the matchmaker's per-bot matches-played counts.
	BotStats(ctx context.Context) ([]BotStats, error)
}

// PersistedLeaderboard is the raw row shape FetchLeaderboards returns;
// the Arena actor rehydrates it into a *leaderboard.Leaderboard.
type PersistedLeaderboard struct {
	Id         domain.LeaderboardId
	Name       domain.LeaderboardName
	FilterText string
}

// BotStats is the matchmaker's view of a bot: how many matches it has
// played so far, used to compute the "under min matches" set.
type BotStats struct {
	BotId         domain.BotId
	MatchesPlayed uint64
}

// MatchRow pairs a match with a creation time. No Store method takes or
// returns it: CreateMatch takes a domain.Match and stamps the created_at
// column the Postgres/SQLite schemas index on itself.
type MatchRow struct {
	Match     domain.Match
	CreatedAt time.Time
}
