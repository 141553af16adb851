package prompt

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/misty-step/imploid/internal/imperrors"
	"github.com/misty-step/imploid/internal/model"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestLoadPrefersHomeOverInstalledDefault(t *testing.T) {
	home := t.TempDir()
	installed := t.TempDir()
	writeFile(t, filepath.Join(home, "claude-default.md"), "home copy issue ${issueNumber}")
	writeFile(t, filepath.Join(installed, "claude-default.md"), "installed copy")

	l := New(home, installed)
	text, err := l.Load(model.ProcessorClaude, 42, "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if text != "home copy issue 42" {
		t.Fatalf("Load() = %q, want home copy with substitution", text)
	}
}

func TestLoadFallsBackToInstalledDefault(t *testing.T) {
	home := t.TempDir()
	installed := t.TempDir()
	writeFile(t, filepath.Join(installed, "codex-default.md"), "installed issue ${issueNumber}")

	l := New(home, installed)
	text, err := l.Load(model.ProcessorCodex, 7, "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if text != "installed issue 7" {
		t.Fatalf("Load() = %q, want installed default", text)
	}
}

func TestLoadNamedOverrideChecksBothDirs(t *testing.T) {
	home := t.TempDir()
	installed := t.TempDir()
	writeFile(t, filepath.Join(installed, "custom.md"), "custom prompt")

	l := New(home, installed)
	text, err := l.Load(model.ProcessorClaude, 1, "custom")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if text != "custom prompt" {
		t.Fatalf("Load() = %q, want custom prompt", text)
	}
}

func TestLoadAbsoluteOverrideBypassesDirs(t *testing.T) {
	dir := t.TempDir()
	absPath := filepath.Join(dir, "my-prompt.md")
	writeFile(t, absPath, "absolute prompt")

	l := New(t.TempDir(), t.TempDir())
	text, err := l.Load(model.ProcessorClaude, 1, absPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if text != "absolute prompt" {
		t.Fatalf("Load() = %q, want absolute prompt", text)
	}
}

func TestLoadMissingReturnsPromptNotFound(t *testing.T) {
	l := New(t.TempDir(), t.TempDir())
	_, err := l.Load(model.ProcessorClaude, 1, "")
	if err == nil {
		t.Fatal("expected error for missing prompt")
	}
	var notFound *imperrors.PromptNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("error = %v, want *imperrors.PromptNotFound", err)
	}
}

func TestLoadCachesReadFile(t *testing.T) {
	home := t.TempDir()
	path := filepath.Join(home, "claude-default.md")
	writeFile(t, path, "version one")

	l := New(home, t.TempDir())
	first, err := l.Load(model.ProcessorClaude, 1, "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	// Mutate the file on disk; the cached read should still win.
	writeFile(t, path, "version two")
	second, err := l.Load(model.ProcessorClaude, 1, "")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if first != second {
		t.Fatalf("cache miss: first=%q second=%q", first, second)
	}
}
