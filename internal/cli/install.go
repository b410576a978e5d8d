package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"github.com/anvil-platform/anvilpkg/internal/config"
	"github.com/anvil-platform/anvilpkg/internal/conflict"
	"github.com/anvil-platform/anvilpkg/internal/engine"
	"github.com/anvil-platform/anvilpkg/internal/logging"
	"github.com/anvil-platform/anvilpkg/internal/metrics"
	"github.com/anvil-platform/anvilpkg/internal/repository"
	"github.com/anvil-platform/anvilpkg/internal/semver"
	"github.com/anvil-platform/anvilpkg/internal/store"
)

var errNoManifests = errors.New("no packages*.yaml manifests found")

type installFlags struct {
	id                 string
	version            string
	sources            []string
	repositoryPath     string
	safe               bool
	prerelease         bool
	fileConflictAction string
	nonInteractive     bool
	targetFramework    string
	verbose            bool
	configFile         string
	metricsFile        string
}

func newInstallCommand() *cobra.Command {
	f := &installFlags{}
	cmd := &cobra.Command{
		Use:   "install [manifest or directory]...",
		Short: "Update the packages of one or more projects",
		Long: `Update packages referenced by project manifests. Directories are
searched recursively for packages*.yaml files. Without --id every installed
package is updated, dependents before their dependencies.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInstall(cmd, f, args)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.id, "id", "", "package id to update (default: all installed packages)")
	flags.StringVar(&f.version, "version", "", "exact version to move --id to")
	flags.StringSliceVarP(&f.sources, "source", "s", nil, "folder feed to resolve packages from (repeatable)")
	flags.StringVar(&f.repositoryPath, "repository-path", "", "shared package store directory")
	flags.BoolVar(&f.safe, "safe", false, "only update within the installed minor version line")
	flags.BoolVar(&f.prerelease, "prerelease", false, "allow prerelease versions")
	flags.StringVar(&f.fileConflictAction, "file-conflict-action", "", "overwrite, ignore or prompt")
	flags.BoolVar(&f.nonInteractive, "non-interactive", false, "never prompt; file conflicts are ignored")
	flags.StringVar(&f.targetFramework, "target-framework", "", "only follow dependencies for this framework")
	flags.BoolVarP(&f.verbose, "verbose", "v", false, "log debug output and full error chains")
	flags.StringVar(&f.configFile, "config", "", "config file (default ./"+config.FileName+" when present)")
	flags.StringVar(&f.metricsFile, "metrics-file", "", "write run metrics in prometheus textfile format")
	return cmd
}

func runInstall(cmd *cobra.Command, f *installFlags, args []string) error {
	cfg, err := loadConfig(cmd, f)
	if err != nil {
		return err
	}

	level := cfg.LogLevel
	if f.verbose {
		level = logging.LevelDebug
	}
	log, err := logging.New(logging.Options{Level: level})
	if err != nil {
		return err
	}
	ctx := logr.NewContext(cmd.Context(), log)

	var version semver.Version
	if strings.TrimSpace(f.version) != "" {
		if strings.TrimSpace(f.id) == "" {
			return errors.New("--version requires --id")
		}
		if version, err = semver.ParseVersion(f.version); err != nil {
			return err
		}
	}

	if len(args) == 0 {
		args = []string{"."}
	}
	manifests, err := discoverManifests(args, cfg.RepositoryPath)
	if err != nil {
		return err
	}

	if len(cfg.Sources) == 0 {
		return errors.New("no package source configured; pass --source or set sources in " + config.FileName)
	}
	var source repository.Aggregate
	for _, s := range cfg.Sources {
		feed, err := repository.NewFolder(s)
		if err != nil {
			return err
		}
		source = append(source, feed)
	}

	st, err := store.New(cfg.RepositoryPath)
	if err != nil {
		return err
	}

	policy := &conflict.Policy{Default: cfg.FileConflictAction}
	if !cfg.NonInteractive {
		policy.Prompter = &conflict.Console{In: cmd.InOrStdin(), Out: cmd.OutOrStdout()}
	}

	e := &engine.Engine{Store: st, Source: source, Conflicts: policy, Log: log}
	report := e.Run(ctx, manifests, engine.Options{
		ID:              strings.TrimSpace(f.id),
		Version:         version,
		Safe:            cfg.Safe,
		AllowPrerelease: cfg.Prerelease,
		TargetFramework: cfg.TargetFramework,
		Verbose:         f.verbose,
	})
	printReport(cmd, report)

	if cfg.MetricsFile != "" {
		if err := metrics.WriteTextfile(cfg.MetricsFile); err != nil {
			logging.Warn(log, "could not write metrics", "path", cfg.MetricsFile, "error", err.Error())
		}
	}
	return nil
}

// loadConfig reads the config file, then applies the flags the user set.
func loadConfig(cmd *cobra.Command, f *installFlags) (config.Config, error) {
	cfg := config.Default()
	path := f.configFile
	if path == "" {
		if _, err := os.Stat(config.FileName); err == nil {
			path = config.FileName
		}
	}
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("source") {
		cfg.Sources = f.sources
	}
	if flags.Changed("repository-path") {
		cfg.RepositoryPath = f.repositoryPath
	}
	if flags.Changed("safe") {
		cfg.Safe = f.safe
	}
	if flags.Changed("prerelease") {
		cfg.Prerelease = f.prerelease
	}
	if flags.Changed("file-conflict-action") {
		action, err := conflict.ParseAction(f.fileConflictAction)
		if err != nil {
			return config.Config{}, err
		}
		cfg.FileConflictAction = action
	}
	if flags.Changed("non-interactive") {
		cfg.NonInteractive = f.nonInteractive
	}
	if flags.Changed("target-framework") {
		cfg.TargetFramework = f.targetFramework
	}
	if flags.Changed("metrics-file") {
		cfg.MetricsFile = f.metricsFile
	}
	return cfg, cfg.Validate()
}

// discoverManifests expands directories into the packages*.yaml files below
// them, skipping hidden directories and the store itself.
func discoverManifests(args []string, storeRoot string) ([]string, error) {
	skip := ""
	if storeRoot != "" {
		if abs, err := filepath.Abs(storeRoot); err == nil {
			skip = abs
		}
	}

	seen := map[string]bool{}
	var out []string
	add := func(p string) error {
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		if !seen[abs] {
			seen[abs] = true
			out = append(out, abs)
		}
		return nil
	}

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			if err := add(arg); err != nil {
				return nil, err
			}
			continue
		}
		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() {
				abs, _ := filepath.Abs(path)
				if path != arg && (strings.HasPrefix(d.Name(), ".") || abs == skip) {
					return filepath.SkipDir
				}
				return nil
			}
			if isManifestName(d.Name()) {
				return add(path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w in %s", errNoManifests, strings.Join(args, ", "))
	}
	sort.Strings(out)
	return out, nil
}

func isManifestName(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasPrefix(lower, "packages") && (strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml"))
}

func printReport(cmd *cobra.Command, report engine.Report) {
	out := cmd.OutOrStdout()
	for _, a := range report.Actions {
		fmt.Fprintln(out, a.String())
	}
	for _, f := range report.Failures {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", f.Project, f.Err)
	}
	fmt.Fprintf(out, "%d project(s), %d action(s), %d failed\n", len(report.Projects), len(report.Actions), len(report.Failures))
}
