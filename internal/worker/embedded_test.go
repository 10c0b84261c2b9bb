package worker

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"cgarena/internal/domain"
)

func TestBuildWritesSourceAndRunsCommand(t *testing.T) {
	dir := t.TempDir()
	w := NewEmbeddedWorker(dir, EmbeddedConfig{
		Threads:  2,
		CmdBuild: "true",
	})

	lang, _ := domain.NewLanguage("python")
	src, _ := domain.NewSourceCode("print('hi')")
	ok, stderr, err := w.Build(context.Background(), BuildBotInput{BotId: 1, Source: src, Lang: lang})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if !ok {
		t.Fatalf("expected build to succeed, stderr=%q", stderr)
	}
	if !w.IsBuildValid(context.Background(), 1) {
		t.Error("expected build to be valid after success")
	}

	contents, err := os.ReadFile(filepath.Join(dir, botsDir, "1", "source.py"))
	if err != nil {
		t.Fatalf("expected source file written: %v", err)
	}
	if string(contents) != "print('hi')" {
		t.Errorf("unexpected source contents: %q", contents)
	}
}

func TestBuildFailureReturnsStderrNotError(t *testing.T) {
	dir := t.TempDir()
	w := NewEmbeddedWorker(dir, EmbeddedConfig{
		Threads:  1,
		CmdBuild: "false",
	})
	lang, _ := domain.NewLanguage("go")
	src, _ := domain.NewSourceCode("package main")
	ok, _, err := w.Build(context.Background(), BuildBotInput{BotId: 2, Source: src, Lang: lang})
	if err != nil {
		t.Fatalf("a failing build command is not an arena error: %v", err)
	}
	if ok {
		t.Error("expected build to report failure")
	}
}

func TestIsBuildValidFalseForUnknownBot(t *testing.T) {
	dir := t.TempDir()
	w := NewEmbeddedWorker(dir, EmbeddedConfig{Threads: 1})
	if w.IsBuildValid(context.Background(), 999) {
		t.Error("expected no build artifact for unknown bot")
	}
}
