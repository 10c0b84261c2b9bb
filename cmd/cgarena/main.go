// Command cgarena is the arena's CLI bootstrap (SPEC_FULL.md section
// 6 / spec.md section 6), grounded in the teacher's server/main.go
// (godotenv.Load, signal-driven shutdown, plain log output) but using
// spf13/cobra for subcommand parsing instead of hand-rolled flag
// parsing, per SPEC_FULL.md's domain-stack commitment.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"cgarena/internal/arena"
	"cgarena/internal/buildmgr"
	"cgarena/internal/config"
	"cgarena/internal/domain"
	"cgarena/internal/httpapi"
	"cgarena/internal/matchmaker"
	"cgarena/internal/ranking"
	"cgarena/internal/store"
	"cgarena/internal/worker"
)

func main() {
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "cgarena",
		Short: "Self-hosted bot tournament arena",
	}
	root.AddCommand(newCmd(), runCmd(), statusCmd())

	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}

func newCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "new <path>",
		Short: "Initialize a new arena directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if err := os.MkdirAll(filepath.Join(path, "bots"), 0o755); err != nil {
				return fmt.Errorf("creating arena directory: %w", err)
			}
			if err := config.WriteDefault(path); err != nil {
				return fmt.Errorf("writing default config: %w", err)
			}
			fmt.Printf("initialized arena at %s\n", path)
			return nil
		},
	}
}

func runCmd() *cobra.Command {
	run := &cobra.Command{
		Use:   "run",
		Short: "Run the arena",
	}
	run.AddCommand(&cobra.Command{
		Use:   "server",
		Short: "Start the arena HTTP server in the current directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(".")
		},
	})
	return run
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print a snapshot of bots and leaderboards as a table",
		RunE: func(cmd *cobra.Command, args []string) error {
			return printStatus(".")
		},
	}
}

func runServer(arenaDir string) error {
	cfg, err := config.Load(arenaDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, closeStore, err := openStore(ctx, arenaDir, cfg)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer closeStore()

	defaultElo := ranking.DefaultEloConfig()
	openSkill := ranking.DefaultOpenSkillConfig()
	openSkill.Beta = orDefault(cfg.Ranking.OpenSkillBeta, openSkill.Beta)
	openSkill.Tau = orDefault(cfg.Ranking.OpenSkillTau, openSkill.Tau)
	trueSkill := ranking.DefaultTrueSkillConfig()
	trueSkill.Beta = orDefault(cfg.Ranking.TrueSkillBeta, trueSkill.Beta)
	trueSkill.Tau = orDefault(cfg.Ranking.TrueSkillTau, trueSkill.Tau)
	ranker, err := ranking.NewFromAlgorithm(
		cfg.Ranking.Algorithm,
		ranking.EloConfig{
			K:             orDefault(cfg.Ranking.EloK, defaultElo.K),
			InitialRating: orDefault(cfg.Ranking.EloInitialRating, defaultElo.InitialRating),
		},
		openSkill,
		trueSkill,
	)
	if err != nil {
		return fmt.Errorf("configuring ranking algorithm: %w", err)
	}

	workers, threads, err := buildWorkers(arenaDir, cfg)
	if err != nil {
		return err
	}

	mgr := buildmgr.New(s, workers, threads)
	go mgr.Run(ctx)
	if err := mgr.ReconcileAll(ctx); err != nil {
		log.Printf("initial build reconciliation failed: %v", err)
	}

	a, err := arena.New(ctx, s, ranker, workers, mgr)
	if err != nil {
		return fmt.Errorf("constructing arena: %w", err)
	}
	go a.Run(ctx)

	mm := matchmaker.New(s, s, matchmaker.GameConfig(cfg.Game), matchmaker.MatchmakingConfig(cfg.Matchmaking), workers)
	go runMatchmaker(ctx, a, mm)

	feed := httpapi.NewLiveFeed()
	go feed.Run(ctx, a, time.Second)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpapi.New(a, feed),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("listening on http://localhost:%d (Ctrl+C to stop)", cfg.Server.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func runMatchmaker(ctx context.Context, a *arena.Arena, mm *matchmaker.Matchmaker) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !a.MatchmakingEnabled() {
				continue
			}
			if _, err := mm.Tick(ctx); err != nil {
				log.Printf("matchmaker: tick failed: %v", err)
			}
		}
	}
}

func buildWorkers(arenaDir string, cfg config.Config) ([]worker.Worker, map[domain.WorkerName]int64, error) {
	var workers []worker.Worker
	threads := make(map[domain.WorkerName]int64)
	for _, wc := range cfg.Workers {
		if wc.Type != "embedded" {
			return nil, nil, fmt.Errorf("unsupported worker type %q", wc.Type)
		}
		w := worker.NewEmbeddedWorker(arenaDir, worker.EmbeddedConfig{
			Threads:      int(wc.Threads),
			CmdBuild:     wc.CmdBuild,
			CmdRun:       wc.CmdRun,
			CmdPlayMatch: wc.CmdPlayMatch,
		})
		workers = append(workers, w)
		threads[w.Name()] = int64(wc.Threads)
	}
	return workers, threads, nil
}

func orDefault(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

// openStore opens and migrates the backend cfg.Store selects (sqlite
// by default), returning a close callback that logs any error Close
// returns since *SQLite and *Postgres don't share a Close signature.
func openStore(ctx context.Context, arenaDir string, cfg config.Config) (store.Store, func(), error) {
	switch cfg.Store.BackendOrDefault() {
	case "postgres":
		s, err := store.OpenPostgres(ctx, cfg.Store.DSN)
		if err != nil {
			return nil, nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			return nil, nil, fmt.Errorf("migrating postgres store: %w", err)
		}
		return s, s.Close, nil
	case "sqlite":
		s, err := store.OpenSQLite(filepath.Join(arenaDir, "cgarena.db"))
		if err != nil {
			return nil, nil, err
		}
		if err := s.Migrate(ctx); err != nil {
			return nil, nil, fmt.Errorf("migrating sqlite store: %w", err)
		}
		return s, func() {
			if err := s.Close(); err != nil {
				log.Printf("closing store: %v", err)
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store backend %q", cfg.Store.Backend)
	}
}

func printStatus(arenaDir string) error {
	cfg, err := config.Load(arenaDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	ctx := context.Background()

	s, closeStore, err := openStore(ctx, arenaDir, cfg)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer closeStore()

	bots, err := s.FetchBots(ctx)
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Name", "Language", "Created"})
	for _, b := range bots {
		table.Append([]string{
			fmt.Sprintf("%d", b.Id),
			b.Name.String(),
			b.Language.String(),
			b.CreatedAt.Format(time.RFC3339),
		})
	}
	table.Render()
	return nil
}
