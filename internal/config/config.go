// Package config loads cgarena_config.toml (SPEC_FULL.md section 6 /
// spec.md section 6, grounded on original_source/config.rs), using
// BurntSushi/toml for decoding and godotenv for optional local .env
// overrides, following the teacher's own server/main.go bootstrap
// style (best-effort godotenv.Load, explicit config struct).
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"cgarena/internal/ranking"
)

// FileName is the config file's fixed name inside an arena directory.
const FileName = "cgarena_config.toml"

type Config struct {
	Game        GameConfig        `toml:"game"`
	Matchmaking MatchmakingConfig `toml:"matchmaking"`
	Ranking     RankingConfig     `toml:"ranking"`
	Server      ServerConfig      `toml:"server"`
	Store       StoreConfig       `toml:"store"`
	Workers     []WorkerConfig    `toml:"workers"`
}

type GameConfig struct {
	MinPlayers uint32 `toml:"min_players"`
	MaxPlayers uint32 `toml:"max_players"`
	Symmetric  bool   `toml:"symmetric"`
}

type MatchmakingConfig struct {
	MinMatches           uint32  `toml:"min_matches"`
	MinMatchesPreference float64 `toml:"min_matches_preference"`
}

// RankingConfig unions the three supported algorithms. Only the
// fields relevant to Algorithm are meaningful; unset numeric fields
// fall back to each strategy's package default via
// ranking.NewFromAlgorithm's callers.
type RankingConfig struct {
	Algorithm ranking.Algorithm `toml:"algorithm"`

	EloK             float64 `toml:"elo_k"`
	EloInitialRating float64 `toml:"elo_initial_rating"`

	OpenSkillBeta float64 `toml:"open_skill_beta"`
	OpenSkillTau  float64 `toml:"open_skill_tau"`

	TrueSkillBeta float64 `toml:"true_skill_beta"`
	TrueSkillTau  float64 `toml:"true_skill_tau"`
}

type ServerConfig struct {
	Port uint16 `toml:"port"`
}

// StoreConfig selects the persistence backend. Backend defaults to
// "sqlite" (the embedded, single-binary deployment) when the `[store]`
// table is omitted entirely, since the zero value of Backend is "".
// DSN is ignored for "sqlite", which always opens arenaDir/cgarena.db.
type StoreConfig struct {
	Backend string `toml:"backend"`
	DSN     string `toml:"dsn"`
}

// BackendOrDefault returns cfg's configured store backend, defaulting to sqlite
// when the config file leaves it unset.
func (c StoreConfig) BackendOrDefault() string {
	if c.Backend == "" {
		return "sqlite"
	}
	return c.Backend
}

// WorkerConfig is the `[[workers]]` array-of-tables entry. Only
// type = "embedded" is implemented, matching spec.md's worker
// abstraction scope; Load accepts any type, and cmd/cgarena's
// buildWorkers rejects the others at startup.
type WorkerConfig struct {
	Type         string `toml:"type"`
	Threads      uint8  `toml:"threads"`
	CmdBuild     string `toml:"cmd_build"`
	CmdRun       string `toml:"cmd_run"`
	CmdPlayMatch string `toml:"cmd_play_match"`
}

// Load reads and decodes the config file at arenaDir/cgarena_config.toml,
// after a best-effort godotenv.Load() for .env-provided overrides of
// any environment variables the deployment relies on (e.g. secrets for
// a remote worker, not modeled by the TOML schema itself).
func Load(arenaDir string) (Config, error) {
	_ = godotenv.Load(filepath.Join(arenaDir, ".env"))

	path := filepath.Join(arenaDir, FileName)
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("loading config %s: %w", path, err)
	}
	return cfg, nil
}

// WriteDefault writes the bundled default config to arenaDir, failing
// if a config file already exists there (the `new` CLI command's
// contract: never clobber an existing arena).
func WriteDefault(arenaDir string) error {
	path := filepath.Join(arenaDir, FileName)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer f.Close()
	_, err = f.Write(DefaultConfigTOML)
	return err
}
