// Package engine drives a run across several projects: each project's
// manifest is loaded, missing store entries are restored, and its actions are
// resolved and executed against the shared store. A failing project is
// reported and the run moves on.
package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/go-logr/logr"

	"github.com/anvil-platform/anvilpkg/internal/conflict"
	"github.com/anvil-platform/anvilpkg/internal/executor"
	"github.com/anvil-platform/anvilpkg/internal/install"
	"github.com/anvil-platform/anvilpkg/internal/logging"
	"github.com/anvil-platform/anvilpkg/internal/manifest"
	"github.com/anvil-platform/anvilpkg/internal/metrics"
	"github.com/anvil-platform/anvilpkg/internal/project"
	"github.com/anvil-platform/anvilpkg/internal/repository"
	"github.com/anvil-platform/anvilpkg/internal/resolver"
	"github.com/anvil-platform/anvilpkg/internal/semver"
)

// ErrPartialProjectFailure wraps every per-project failure in a Report.
var ErrPartialProjectFailure = errors.New("engine: project failed")

// Store is the shared store as a run uses it.
type Store interface {
	executor.Store
	repository.Repository
	RegisterRepository(manifestPath string) error
	Repositories() ([]string, error)
}

type Engine struct {
	Store     Store
	Source    repository.Repository
	Conflicts conflict.Resolver
	Log       logr.Logger
}

type Options struct {
	// ID selects one package; empty updates every installed package.
	ID string
	// Version pins the target version of ID; zero picks the best match.
	Version         semver.Version
	Safe            bool
	AllowPrerelease bool
	TargetFramework string
	// Verbose logs the full error chain of a failed project instead of its
	// innermost message.
	Verbose bool
}

// ProjectFailure records why one project's sequence aborted.
type ProjectFailure struct {
	Project  string
	Manifest string
	Err      error
}

type Report struct {
	Projects []string
	// Actions are the resolved actions of every project that got as far as
	// execution, in execution order.
	Actions  []resolver.Action
	Failures []ProjectFailure
}

// Err summarizes the failures, or returns nil when every project succeeded.
func (r Report) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %d of %d projects", ErrPartialProjectFailure, len(r.Failures), len(r.Projects))
}

type loaded struct {
	project *project.Project
	path    string
}

// Run updates the projects whose manifests are listed in manifestPaths.
func (e *Engine) Run(ctx context.Context, manifestPaths []string, opts Options) Report {
	log := e.Log
	if log.GetSink() == nil {
		log = logr.FromContextOrDiscard(ctx)
	}
	var report Report

	var projects []loaded
	inRun := map[string]bool{}
	for _, path := range manifestPaths {
		m, err := manifest.Load(path)
		if err != nil {
			report.Projects = append(report.Projects, path)
			e.fail(log, &report, opts, path, path, err)
			continue
		}
		p := &project.Project{
			Name:            m.Name(),
			References:      m,
			Constraints:     m,
			TargetFramework: opts.TargetFramework,
		}
		report.Projects = append(report.Projects, p.Name)
		projects = append(projects, loaded{project: p, path: m.Path()})
		inRun[m.Path()] = true
	}

	all := make([]*project.Project, 0, len(projects))
	paths := map[*project.Project]string{}
	for _, l := range projects {
		all = append(all, l.project)
		paths[l.project] = l.path
	}
	all = append(all, e.registeredProjects(log, inRun)...)

	exec := &executor.Executor{
		Store:     e.Store,
		Conflicts: e.Conflicts,
		Projects:  all,
		AfterInstall: func(ctx context.Context, a resolver.Action) error {
			if path := paths[a.Project]; path != "" {
				return e.Store.RegisterRepository(path)
			}
			return nil
		},
		Log: log,
	}

	for _, l := range projects {
		if err := ctx.Err(); err != nil {
			e.fail(log, &report, opts, l.project.Name, l.path, err)
			continue
		}
		plog := log.WithValues("project", l.project.Name)
		pctx := logr.NewContext(ctx, plog)

		if err := e.restore(pctx, plog, l.project); err != nil {
			e.fail(log, &report, opts, l.project.Name, l.path, err)
			continue
		}

		start := time.Now()
		util := &install.Utility{
			Resolver:        resolver.New(),
			Safe:            opts.Safe,
			AllowPrerelease: opts.AllowPrerelease,
			Log:             log,
		}
		target := install.Target{
			Project: l.project,
			Source:  e.Source,
			Local:   repository.NewLocal(l.project.References, repository.Aggregate{e.Store, e.Source}),
		}
		actions, err := util.ResolveActions(pctx, opts.ID, opts.Version, []install.Target{target})
		metrics.ObserveResolution(time.Since(start))
		if err != nil {
			e.fail(log, &report, opts, l.project.Name, l.path, err)
			continue
		}
		logging.Debug(plog).Info("resolved actions", "count", len(actions))

		report.Actions = append(report.Actions, actions...)
		if err := exec.Execute(pctx, actions); err != nil {
			e.fail(log, &report, opts, l.project.Name, l.path, err)
		}
	}
	return report
}

// restore extracts referenced packages missing from the store, so that
// dependency checks see what the manifest already claims. A reference the
// source cannot provide is only logged.
func (e *Engine) restore(ctx context.Context, log logr.Logger, p *project.Project) error {
	for _, ref := range p.References.References() {
		if e.Store.Exists(ref.ID, ref.Version) {
			continue
		}
		pkg, _, err := repository.FindPackage(ctx, e.Source, ref.ID, repository.Query{
			Version:         ref.Version,
			AllowPrerelease: true,
			AllowUnlisted:   true,
		})
		if err != nil {
			logging.Warn(log, "cannot restore package", "package", ref.ID+" "+ref.Version.String(), "error", err.Error())
			continue
		}
		log.Info("restoring package", "package", pkg.String())
		if err := e.Store.Extract(ctx, pkg, e.Conflicts); err != nil {
			return fmt.Errorf("engine: restore %s: %w", pkg, err)
		}
	}
	return nil
}

// registeredProjects loads the manifests registered with the store that are
// not part of this run. They only count as references.
func (e *Engine) registeredProjects(log logr.Logger, inRun map[string]bool) []*project.Project {
	paths, err := e.Store.Repositories()
	if err != nil {
		logging.Warn(log, "could not read registered manifests", "error", err.Error())
		return nil
	}
	var out []*project.Project
	for _, path := range paths {
		abs, err := filepath.Abs(path)
		if err != nil || inRun[abs] {
			continue
		}
		m, err := manifest.Load(abs)
		if err != nil {
			logging.Warn(log, "skipping registered manifest", "manifest", abs, "error", err.Error())
			continue
		}
		out = append(out, &project.Project{Name: m.Name(), References: m, Constraints: m})
	}
	return out
}

func (e *Engine) fail(log logr.Logger, report *Report, opts Options, name, path string, err error) {
	metrics.RecordProjectFailure()
	report.Failures = append(report.Failures, ProjectFailure{
		Project:  name,
		Manifest: path,
		Err:      fmt.Errorf("%w: %s: %w", ErrPartialProjectFailure, name, err),
	})
	if opts.Verbose {
		log.Error(err, "project failed", "project", name)
		return
	}
	logging.Warn(log, innermost(err).Error(), "project", name)
}

// innermost strips the aggregation layers around err: the first failure of
// an aggregate, and the cause inside a *executor.ProjectError. Wrapping done
// with %w is kept, since that is where the detail lives.
func innermost(err error) error {
	for {
		var perr *executor.ProjectError
		switch u := err.(type) {
		case interface{ Errors() []error }:
			errs := u.Errors()
			if len(errs) == 0 {
				return err
			}
			err = errs[0]
		case interface{ Unwrap() []error }:
			errs := u.Unwrap()
			if len(errs) == 0 {
				return err
			}
			err = errs[0]
		default:
			if errors.As(err, &perr) && perr.Err != nil {
				err = perr.Err
				continue
			}
			return err
		}
	}
}
