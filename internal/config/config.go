// Package config loads anvilpkg.toml. Keys missing from the file keep their
// defaults.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/anvil-platform/anvilpkg/internal/conflict"
	"github.com/anvil-platform/anvilpkg/internal/logging"
)

// FileName is the config file looked up in the working directory.
const FileName = "anvilpkg.toml"

var ErrInvalidConfig = errors.New("config: invalid config")

type Config struct {
	// RepositoryPath is the shared store root.
	RepositoryPath string
	// Sources are folder feeds, queried in order.
	Sources            []string
	Safe               bool
	Prerelease         bool
	FileConflictAction conflict.Action
	NonInteractive     bool
	TargetFramework    string
	LogLevel           logging.Level
	// MetricsFile, when set, receives the run's metrics in textfile format.
	MetricsFile string
}

type fileConfig struct {
	RepositoryPath     string   `toml:"repository_path"`
	Sources            []string `toml:"sources"`
	Safe               bool     `toml:"safe"`
	Prerelease         bool     `toml:"prerelease"`
	FileConflictAction string   `toml:"file_conflict_action"`
	NonInteractive     bool     `toml:"non_interactive"`
	TargetFramework    string   `toml:"target_framework"`
	LogLevel           string   `toml:"log_level"`
	MetricsFile        string   `toml:"metrics_file"`
}

func Default() Config {
	return Config{
		RepositoryPath: "packages",
		LogLevel:       logging.LevelInfo,
	}
}

// Load overlays the keys defined in the file at path on Default. Relative
// paths in the file are resolved against the file's directory.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("config: load %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("%w: %s: unknown key %q", ErrInvalidConfig, path, undecoded[0].String())
	}
	base := filepath.Dir(path)

	if meta.IsDefined("repository_path") {
		cfg.RepositoryPath = resolve(base, raw.RepositoryPath)
	}
	if meta.IsDefined("sources") {
		cfg.Sources = cfg.Sources[:0]
		for _, s := range raw.Sources {
			if s = strings.TrimSpace(s); s != "" {
				cfg.Sources = append(cfg.Sources, resolve(base, s))
			}
		}
	}
	if meta.IsDefined("safe") {
		cfg.Safe = raw.Safe
	}
	if meta.IsDefined("prerelease") {
		cfg.Prerelease = raw.Prerelease
	}
	if meta.IsDefined("file_conflict_action") {
		action, err := conflict.ParseAction(raw.FileConflictAction)
		if err != nil {
			return Config{}, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
		}
		cfg.FileConflictAction = action
	}
	if meta.IsDefined("non_interactive") {
		cfg.NonInteractive = raw.NonInteractive
	}
	if meta.IsDefined("target_framework") {
		cfg.TargetFramework = strings.TrimSpace(raw.TargetFramework)
	}
	if meta.IsDefined("log_level") {
		level, err := logging.ParseLevel(raw.LogLevel)
		if err != nil {
			return Config{}, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
		}
		cfg.LogLevel = level
	}
	if meta.IsDefined("metrics_file") {
		cfg.MetricsFile = resolve(base, raw.MetricsFile)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks settings that flags can also change.
func (c Config) Validate() error {
	if strings.TrimSpace(c.RepositoryPath) == "" {
		return fmt.Errorf("%w: repository_path must not be empty", ErrInvalidConfig)
	}
	if _, err := conflict.ParseAction(string(c.FileConflictAction)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if _, err := logging.ParseLevel(string(c.LogLevel)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

func resolve(base, p string) string {
	p = strings.TrimSpace(p)
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}
