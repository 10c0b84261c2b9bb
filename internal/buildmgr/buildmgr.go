// Package buildmgr implements the build manager (SPEC_FULL.md C7 /
// spec.md section 4.7): idempotent reconciliation of every known bot
// towards "built on every worker", and a bounded drain loop that
// actually runs the builds.
package buildmgr

import (
	"context"
	"log"

	"golang.org/x/sync/semaphore"

	"cgarena/internal/domain"
	"cgarena/internal/store"
	"cgarena/internal/worker"
)

// pendingChanSize matches spec.md section 5's "build = 16" bounded
// channel budget.
const pendingChanSize = 16

// job is one (bot, worker) pair awaiting a build attempt.
type job struct {
	bot domain.Bot
	w   worker.Worker
}

// Manager drives build reconciliation. One Manager instance serves
// the whole arena; it does not own bot or worker identity, only the
// reconcile-then-drain build pipeline.
type Manager struct {
	store   store.Store
	workers []worker.Worker

	// threadsFor bounds concurrent drains per worker to its configured
	// thread count, per spec.md section 4.7's "must not exceed the
	// worker's configured thread count".
	threadsFor map[domain.WorkerName]int64

	pending chan job
}

func New(s store.Store, workers []worker.Worker, threads map[domain.WorkerName]int64) *Manager {
	return &Manager{
		store:      s,
		workers:    workers,
		threadsFor: threads,
		pending:    make(chan job, pendingChanSize),
	}
}

// ReconcileAll runs the startup reconciliation pass over every bot in
// the store (spec.md section 4.7, "triggered on startup").
func (m *Manager) ReconcileAll(ctx context.Context) error {
	bots, err := m.store.FetchBots(ctx)
	if err != nil {
		return err
	}
	for _, b := range bots {
		m.ReconcileBot(ctx, b)
	}
	return nil
}

// ReconcileBot runs the per-bot reconciliation steps 1-3 of spec.md
// section 4.7 for every known worker, enqueueing work onto the
// pending-builds channel. Called on startup and on every bot-creation
// command.
func (m *Manager) ReconcileBot(ctx context.Context, b domain.Bot) {
	existing, err := m.store.FetchBotBuilds(ctx, b.Id)
	if err != nil {
		log.Printf("buildmgr: fetching builds for bot %d: %v", b.Id, err)
		return
	}
	byWorker := make(map[domain.WorkerName]domain.Build, len(existing))
	for _, build := range existing {
		byWorker[build.WorkerName] = build
	}

	for _, w := range m.workers {
		current, ok := byWorker[w.Name()]
		if ok && current.Status.IsSuccess() && w.IsBuildValid(ctx, b.Id) {
			continue
		}
		fresh := domain.NewBuild(b.Id, w.Name())
		if err := m.store.UpsertBuild(ctx, fresh); err != nil {
			log.Printf("buildmgr: upserting pending build for bot %d on %s: %v", b.Id, w.Name(), err)
			continue
		}
		select {
		case m.pending <- job{bot: b, w: w}:
		case <-ctx.Done():
			return
		default:
			log.Printf("buildmgr: pending-builds channel full, dropping build for bot %d on %s (will retry on next reconciliation)", b.Id, w.Name())
		}
	}
}

// Run drains the pending-builds channel until ctx is cancelled,
// bounding concurrent builds per worker to its configured thread
// count via a semaphore.
func (m *Manager) Run(ctx context.Context) {
	sems := make(map[domain.WorkerName]*semaphore.Weighted, len(m.workers))
	for _, w := range m.workers {
		n := m.threadsFor[w.Name()]
		if n <= 0 {
			n = 1
		}
		sems[w.Name()] = semaphore.NewWeighted(n)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-m.pending:
			if !ok {
				return
			}
			sem, ok := sems[j.w.Name()]
			if !ok {
				log.Printf("buildmgr: unknown worker %s, skipping", j.w.Name())
				continue
			}
			go m.runOne(ctx, sem, j)
		}
	}
}

func (m *Manager) runOne(ctx context.Context, sem *semaphore.Weighted, j job) {
	if err := sem.Acquire(ctx, 1); err != nil {
		return
	}
	defer sem.Release(1)

	running := domain.NewBuild(j.bot.Id, j.w.Name()).Status.IntoRunning()
	if err := m.store.UpsertBuild(ctx, domain.Build{BotId: j.bot.Id, WorkerName: j.w.Name(), Status: running}); err != nil {
		log.Printf("buildmgr: marking build running for bot %d on %s: %v", j.bot.Id, j.w.Name(), err)
		return
	}

	ok, stderr, err := j.w.Build(ctx, worker.BuildBotInput{BotId: j.bot.Id, Source: j.bot.Source, Lang: j.bot.Language})
	if err != nil {
		log.Printf("buildmgr: worker %s errored building bot %d: %v", j.w.Name(), j.bot.Id, err)
		return
	}

	var terminal domain.BuildStatus
	if ok {
		terminal = running.IntoSuccess()
	} else {
		terminal = running.IntoFailure(stderr)
	}
	if err := m.store.UpsertBuild(ctx, domain.Build{BotId: j.bot.Id, WorkerName: j.w.Name(), Status: terminal}); err != nil {
		log.Printf("buildmgr: marking build terminal for bot %d on %s: %v", j.bot.Id, j.w.Name(), err)
	}
}
