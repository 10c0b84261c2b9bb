package worker

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/semaphore"

	"cgarena/internal/domain"
)

const botsDir = "bots"

// EmbeddedConfig mirrors original_source/embedded_worker.rs's
// EmbeddedWorkerConfig: shell commands with {DIR}/{LANG} substitution
// and a bound on concurrent jobs.
type EmbeddedConfig struct {
	Threads      int
	CmdBuild     string
	CmdRun       string
	CmdPlayMatch string
}

// EmbeddedWorker runs builds as local subprocesses under a per-bot
// working directory (bots/<id>) and matches under a fresh per-match
// directory (matches/<ulid>), like
// original_source/embedded_worker.rs's EmbeddedWorker, translated to
// Go's os/exec and bounded by a semaphore sized to cfg.Threads instead
// of a tokio Semaphore.
type EmbeddedWorker struct {
	workerPath string
	cfg        EmbeddedConfig
	sem        *semaphore.Weighted
	results    chan PlayMatchOutput
	playMatch  func(ctx context.Context, dir string, seed int64, botIds []domain.BotId) (PlayMatchOutput, error)
}

func NewEmbeddedWorker(workerPath string, cfg EmbeddedConfig) *EmbeddedWorker {
	threads := cfg.Threads
	if threads <= 0 {
		threads = 1
	}
	w := &EmbeddedWorker{
		workerPath: workerPath,
		cfg:        cfg,
		sem:        semaphore.NewWeighted(int64(threads)),
		results:    make(chan PlayMatchOutput, 100),
	}
	w.playMatch = w.runMatchProcess
	return w
}

func (w *EmbeddedWorker) Name() domain.WorkerName { return domain.EmbeddedWorkerName }

func (w *EmbeddedWorker) botDir(botId domain.BotId) string {
	return filepath.Join(w.workerPath, botsDir, strconv.FormatInt(int64(botId), 10))
}

func (w *EmbeddedWorker) IsBuildValid(ctx context.Context, botId domain.BotId) bool {
	info, err := os.Stat(w.botDir(botId))
	return err == nil && info.IsDir()
}

// Build writes the bot's source file and shells out to cfg.CmdBuild
// with {DIR} and {LANG} substituted, matching
// original_source/embedded_worker.rs::build.
func (w *EmbeddedWorker) Build(ctx context.Context, input BuildBotInput) (bool, string, error) {
	if err := w.sem.Acquire(ctx, 1); err != nil {
		return false, "", err
	}
	defer w.sem.Release(1)

	dir := w.botDir(input.BotId)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, "", fmt.Errorf("creating bot dir: %w", err)
	}

	ext := fileExtension(input.Lang)
	sourcePath := filepath.Join(dir, "source"+ext)
	if err := os.WriteFile(sourcePath, []byte(input.Source.String()), 0o644); err != nil {
		return false, "", fmt.Errorf("writing source: %w", err)
	}

	cmdline := substituteTokens(w.cfg.CmdBuild, dir, input.Lang.String())
	parts := strings.Fields(cmdline)
	if len(parts) == 0 {
		return false, "", fmt.Errorf("empty build command")
	}

	cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return false, stderr.String(), nil
	}
	return true, "", nil
}

func substituteTokens(cmd, dir, lang string) string {
	cmd = strings.ReplaceAll(cmd, "{DIR}", dir)
	cmd = strings.ReplaceAll(cmd, "{LANG}", lang)
	return cmd
}

func fileExtension(lang domain.Language) string {
	switch strings.ToLower(lang.String()) {
	case "python", "py":
		return ".py"
	case "go", "golang":
		return ".go"
	case "rust", "rs":
		return ".rs"
	case "cpp", "c++":
		return ".cpp"
	case "java":
		return ".java"
	case "javascript", "js":
		return ".js"
	default:
		return ".txt"
	}
}

func (w *EmbeddedWorker) EnqueueMatch(ctx context.Context, input PlayMatchInput) error {
	go func() {
		if err := w.sem.Acquire(context.Background(), 1); err != nil {
			return
		}
		defer w.sem.Release(1)

		matchDir := filepath.Join(w.workerPath, "matches", newMatchToken())
		out, err := w.playMatch(ctx, matchDir, input.Seed, input.BotIds)
		if err != nil {
			// A referee process failure produces no output; the match
			// is silently dropped from the result stream, and the
			// scheduler's next cycle proceeds (spec.md section 7).
			return
		}
		w.results <- out
	}()
	return nil
}

func newMatchToken() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}

func (w *EmbeddedWorker) Results() <-chan PlayMatchOutput { return w.results }

var _ Worker = (*EmbeddedWorker)(nil)

// runMatchProcess shells out to cfg.CmdPlayMatch, matching the
// teacher's "referee executable" model. Only {DIR} (the match
// directory) is substituted and {LANG} becomes empty; the seed and bot
// ids are not passed to the process, and its stdout is not read. The
// result carries the given seed, no attributes, and ranks participants
// by their order in botIds. Another runner can be set through the
// playMatch field.
func (w *EmbeddedWorker) runMatchProcess(ctx context.Context, dir string, seed int64, botIds []domain.BotId) (PlayMatchOutput, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return PlayMatchOutput{}, err
	}
	cmdline := substituteTokens(w.cfg.CmdPlayMatch, dir, "")
	parts := strings.Fields(cmdline)
	if len(parts) == 0 {
		return PlayMatchOutput{}, fmt.Errorf("empty play-match command")
	}
	cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
	cmd.Dir = dir
	if err := cmd.Run(); err != nil {
		return PlayMatchOutput{}, err
	}

	participants := make([]domain.Participant, len(botIds))
	for i, id := range botIds {
		participants[i] = domain.Participant{BotId: id, Rank: uint8(i)}
	}
	return PlayMatchOutput{Seed: seed, Participants: participants}, nil
}
