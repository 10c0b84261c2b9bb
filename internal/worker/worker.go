// Package worker implements the worker abstraction (SPEC_FULL.md C6 /
// spec.md section 4.6): dispatch build/play jobs and deliver
// asynchronous results on a shared result stream.
package worker

import (
	"context"

	"cgarena/internal/domain"
)

// BuildBotInput is everything an embedded worker needs to build one bot.
type BuildBotInput struct {
	BotId  domain.BotId
	Source domain.SourceCode
	Lang   domain.Language
}

// PlayMatchInput schedules one match on a worker.
type PlayMatchInput struct {
	Seed   int64
	BotIds []domain.BotId
}

// PlayMatchOutput is what a worker reports back after running a match.
// The arena assigns a fresh MatchId on commit.
type PlayMatchOutput struct {
	Seed         int64
	Participants []domain.Participant
	Attributes   []domain.MatchAttribute
}

// Worker is the execution-backend abstraction. Each worker has a
// stable Name (the first/default worker is "embedded").
type Worker interface {
	Name() domain.WorkerName

	// IsBuildValid is a lightweight existence probe: does this worker
	// still have a usable build artifact for this bot?
	IsBuildValid(ctx context.Context, botId domain.BotId) bool

	// Build synchronously (from the caller's view) builds one bot;
	// failures carry captured stderr rather than a Go error, since a
	// failed build is a successful operation with terminal Failure
	// status (spec.md section 7).
	Build(ctx context.Context, input BuildBotInput) (ok bool, stderr string, err error)

	// EnqueueMatch is fire-and-forget; the worker eventually emits a
	// PlayMatchOutput on Results().
	EnqueueMatch(ctx context.Context, input PlayMatchInput) error

	// Results is the multi-producer single-consumer stream the Arena
	// actor drains. Delivery is at-most-once per enqueue.
	Results() <-chan PlayMatchOutput
}
