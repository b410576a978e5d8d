package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/anvil-platform/anvilpkg/internal/conflict"
	"github.com/anvil-platform/anvilpkg/internal/logging"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), FileName)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadOverlaysDefinedKeys(t *testing.T) {
	path := writeConfig(t, `
repository_path = "store"
sources = ["feeds/main", " ", "/abs/feed"]
safe = true
file_conflict_action = "Overwrite"
log_level = "debug"
metrics_file = "out/anvilpkg.prom"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	base := filepath.Dir(path)
	want := Config{
		RepositoryPath:     filepath.Join(base, "store"),
		Sources:            []string{filepath.Join(base, "feeds/main"), "/abs/feed"},
		Safe:               true,
		FileConflictAction: conflict.ActionOverwrite,
		LogLevel:           logging.LevelDebug,
		MetricsFile:        filepath.Join(base, "out/anvilpkg.prom"),
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("unexpected config (-want +got):\n%s", diff)
	}
}

func TestLoadKeepsDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "prerelease = true\n"))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	want := Default()
	want.Prerelease = true
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("unexpected config (-want +got):\n%s", diff)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"unknown key":     "colour = \"blue\"\n",
		"conflict action": "file_conflict_action = \"merge\"\n",
		"log level":       "log_level = \"loud\"\n",
		"empty store":     "repository_path = \"\"\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, body)); !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestLoadAcceptsWarnLevel(t *testing.T) {
	cfg, err := Load(writeConfig(t, "log_level = \"warn\"\n"))
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.LogLevel != logging.LevelInfo {
		t.Fatalf("expected warn to map to info, got %q", cfg.LogLevel)
	}
}
