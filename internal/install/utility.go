// Package install decides which package versions a request should move each
// project to, and queues the matching operations on a resolver.
//
// Unsafe mode (the default) moves to the requested version, or to the newest
// version allowed by the project's constraint. Safe mode stays within the
// installed version's minor line. Either way a project that does not
// reference the package is left alone.
package install

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-logr/logr"

	"github.com/anvil-platform/anvilpkg/internal/graph"
	"github.com/anvil-platform/anvilpkg/internal/logging"
	"github.com/anvil-platform/anvilpkg/internal/packages"
	"github.com/anvil-platform/anvilpkg/internal/project"
	"github.com/anvil-platform/anvilpkg/internal/repository"
	"github.com/anvil-platform/anvilpkg/internal/resolver"
	"github.com/anvil-platform/anvilpkg/internal/semver"
)

// Target is one project together with the sources it resolves against.
type Target struct {
	Project *project.Project
	// Source is where new versions come from.
	Source repository.Repository
	// Local is the project's installed view. Update-all requests read the
	// dependency order from the first target's Local.
	Local repository.LocalRepository
}

// Utility queues install operations on Resolver.
type Utility struct {
	Resolver        resolver.Resolver
	Safe            bool
	AllowPrerelease bool
	// Log defaults to the logger carried by the context.
	Log logr.Logger
}

// ResolveActions queues the operations needed to update id in every target
// and returns the resolved action list. An empty id updates every package
// installed in the first target, dependents before their dependencies; a
// package the source does not know is then logged and skipped. A zero version
// means "best available".
func (u *Utility) ResolveActions(ctx context.Context, id string, version semver.Version, targets []Target) ([]resolver.Action, error) {
	if u.Resolver == nil {
		return nil, errors.New("install: no resolver configured")
	}
	log := u.Log
	if log.GetSink() == nil {
		log = logr.FromContextOrDiscard(ctx)
	}
	for i, t := range targets {
		if t.Project == nil || t.Project.References == nil || t.Source == nil {
			return nil, fmt.Errorf("%w: target %d needs a project, its references and a source", ErrInvalidTarget, i)
		}
	}
	if len(targets) == 0 {
		return nil, nil
	}

	if strings.TrimSpace(id) == "" {
		first := targets[0]
		if first.Local == nil {
			return nil, fmt.Errorf("%w: update of all packages needs a local repository", ErrInvalidTarget)
		}
		installed, err := graph.ByDependencyOrder(ctx, first.Local, first.Project.TargetFramework)
		if err != nil {
			return nil, fmt.Errorf("install: order installed packages: %w", err)
		}
		order := graph.Reverse(installed)
		for _, t := range targets {
			for _, p := range order {
				err := u.addUpdate(ctx, log, t, p.ID, semver.Version{})
				if errors.Is(err, repository.ErrPackageNotFound) {
					log.Info("skipping package unknown to the source", "project", t.Project.Name, "package", p.ID, "reason", err.Error())
					continue
				}
				if err != nil {
					u.Resolver.Reset()
					return nil, err
				}
			}
		}
		return u.Resolver.ResolveActions(ctx)
	}

	for _, t := range targets {
		if err := u.addUpdate(ctx, log, t, id, version); err != nil {
			u.Resolver.Reset()
			return nil, err
		}
	}
	return u.Resolver.ResolveActions(ctx)
}

func (u *Utility) addUpdate(ctx context.Context, log logr.Logger, t Target, id string, version semver.Version) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	log = log.WithValues("project", t.Project.Name, "package", id)
	if u.Safe {
		return u.addSafeUpdate(ctx, log, t, id)
	}
	return u.addUnsafeUpdate(ctx, log, t, id, version)
}

func (u *Utility) addUnsafeUpdate(ctx context.Context, log logr.Logger, t Target, id string, version semver.Version) error {
	logging.Debug(log).Info("looking for updates")
	installed, isInstalled := u.baseline(t, id)
	constraint, hasConstraint := t.Project.ConstraintFor(id)

	if !version.IsZero() {
		p, _, err := repository.FindPackage(ctx, t.Source, id, repository.Query{
			Version:         version,
			AllowPrerelease: u.AllowPrerelease,
		})
		if err != nil {
			var nf *repository.NotFoundError
			if errors.As(err, &nf) && nf.Version != "" {
				log.Info("requested version is not available", "version", version.String(), "reason", err.Error())
				return fmt.Errorf("%w: %s %s", ErrInvalidVersion, id, version)
			}
			logging.Debug(log).Info("package lookup failed", "error", err.Error())
			return err
		}
		if !isInstalled {
			logging.Debug(log).Info("package not installed in project; skipping")
			return nil
		}
		if installed.Equal(p.Version) {
			u.logNoUpdates(log, t, id, constraint, hasConstraint)
			return nil
		}
		return u.queue(ctx, log, t, p, installed)
	}

	if !isInstalled {
		logging.Debug(log).Info("package not installed in project; skipping")
		return nil
	}
	dependents, err := u.dependentsRange(ctx, t, id)
	if err != nil {
		return err
	}
	p, ok, err := repository.FindPackage(ctx, t.Source, id, repository.Query{
		Range:           dependents,
		Constraint:      constraint,
		HasConstraint:   hasConstraint,
		AllowPrerelease: u.AllowPrerelease,
	})
	if err != nil {
		logging.Debug(log).Info("package lookup failed", "error", err.Error())
		return err
	}
	if !ok || semver.Compare(p.Version, installed) <= 0 {
		u.logNoUpdates(log, t, id, constraint, hasConstraint)
		return nil
	}
	return u.queue(ctx, log, t, p, installed)
}

func (u *Utility) addSafeUpdate(ctx context.Context, log logr.Logger, t Target, id string) error {
	installed, isInstalled := u.baseline(t, id)
	if !isInstalled {
		logging.Debug(log).Info("package not installed in project; skipping")
		return nil
	}
	safe := semver.SafeRangeFrom(installed)
	logging.Debug(log).Info("looking for updates", "range", safe.PrettyPrint())

	dependents, err := u.dependentsRange(ctx, t, id)
	if err != nil {
		return err
	}
	constraint, hasConstraint := t.Project.ConstraintFor(id)
	p, ok, err := repository.FindPackage(ctx, t.Source, id, repository.Query{
		Range:           safe.Intersect(dependents),
		Constraint:      constraint,
		HasConstraint:   hasConstraint,
		AllowPrerelease: u.AllowPrerelease,
	})
	if err != nil {
		logging.Debug(log).Info("package lookup failed", "error", err.Error())
		return err
	}
	if !ok || semver.Compare(p.Version, installed) <= 0 {
		u.logNoUpdates(log, t, id, constraint, hasConstraint)
		return nil
	}
	return u.queue(ctx, log, t, p, installed)
}

// baseline is the version the project will reference for id once the
// operations queued so far have run: a planned install wins over the
// installed version. Update-all visits dependents first, so a dependency may
// already have been pulled forward.
func (u *Utility) baseline(t Target, id string) (semver.Version, bool) {
	if v, ok := u.Resolver.Planned(t.Project, id); ok {
		return v, true
	}
	return t.Project.References.CurrentVersion(id)
}

// dependentsRange intersects the ranges the project's other packages, at
// their baseline versions, declare on id.
func (u *Utility) dependentsRange(ctx context.Context, t Target, id string) (semver.VersionRange, error) {
	out := semver.AnyVersion()
	for _, ref := range t.Project.References.References() {
		if packages.SameID(ref.ID, id) {
			continue
		}
		v, _ := u.baseline(t, ref.ID)
		p, ok, err := u.metadata(ctx, t, ref.ID, v)
		if err != nil {
			return out, err
		}
		if !ok {
			continue
		}
		for _, d := range p.DependenciesFor(t.Project.TargetFramework) {
			if packages.SameID(d.ID, id) {
				out = out.Intersect(d.Range)
			}
		}
	}
	return out, nil
}

// metadata finds id@v in the source, falling back to the installed view.
func (u *Utility) metadata(ctx context.Context, t Target, id string, v semver.Version) (packages.Package, bool, error) {
	p, ok, err := repository.FindPackage(ctx, t.Source, id, repository.Query{
		Version:         v,
		AllowPrerelease: true,
		AllowUnlisted:   true,
	})
	switch {
	case err == nil:
		return p, ok, nil
	case !errors.Is(err, repository.ErrPackageNotFound):
		return packages.Package{}, false, err
	case t.Local == nil:
		return packages.Package{}, false, nil
	}
	found, err := t.Local.FindPackagesByID(ctx, id)
	if err != nil {
		return packages.Package{}, false, err
	}
	for _, p := range found {
		if p.Version.Equal(v) {
			return p, true, nil
		}
	}
	return packages.Package{}, false, nil
}

func (u *Utility) logNoUpdates(log logr.Logger, t Target, id string, constraint semver.VersionRange, hasConstraint bool) {
	if hasConstraint && t.Project.Constraints != nil {
		log.Info("applying constraint", "constraint", constraint.PrettyPrint(), "source", t.Project.Constraints.Source())
	}
	log.Info("no updates available")
}

// queue adds p and any dependency the project does not already satisfy,
// dependencies first. Nothing is queued when a dependency cannot be resolved.
func (u *Utility) queue(ctx context.Context, log logr.Logger, t Target, p packages.Package, from semver.Version) error {
	var plan []packages.Package
	if err := u.plan(ctx, t, p, map[packages.Key]bool{}, &plan); err != nil {
		return err
	}
	log.Info("updating package", "from", from.String(), "to", p.Version.String())
	for _, step := range plan {
		if !packages.SameID(step.ID, p.ID) {
			logging.Debug(log).Info("adding dependency", "dependency", step.String())
		}
		u.Resolver.AddOperation(resolver.Install, step, t.Project)
	}
	return nil
}

func (u *Utility) plan(ctx context.Context, t Target, p packages.Package, visiting map[packages.Key]bool, plan *[]packages.Package) error {
	if visiting[p.Key()] {
		return nil
	}
	visiting[p.Key()] = true

	for _, dep := range p.DependenciesFor(t.Project.TargetFramework) {
		if u.satisfied(t, dep, *plan) {
			continue
		}
		constraint, hasConstraint := t.Project.ConstraintFor(dep.ID)
		d, ok, err := repository.FindPackage(ctx, t.Source, dep.ID, repository.Query{
			Range:           dep.Range,
			Constraint:      constraint,
			HasConstraint:   hasConstraint,
			AllowPrerelease: u.AllowPrerelease,
			PreferLowest:    true,
		})
		if err != nil {
			return fmt.Errorf("install: dependency %s of %s: %w", dep.ID, p, err)
		}
		if !ok {
			return fmt.Errorf("%w: %s %s required by %s", ErrDependencyUnresolved, dep.ID, dep.Range.PrettyPrint(), p)
		}
		if err := u.plan(ctx, t, d, visiting, plan); err != nil {
			return err
		}
	}
	*plan = append(*plan, p)
	return nil
}

// satisfied reports whether the version the project will reference for dep
// (planned here, queued earlier, or installed) lies in dep's range.
func (u *Utility) satisfied(t Target, dep packages.Dependency, plan []packages.Package) bool {
	for i := len(plan) - 1; i >= 0; i-- {
		if packages.SameID(plan[i].ID, dep.ID) {
			return dep.Range.Contains(plan[i].Version)
		}
	}
	if v, ok := u.Resolver.Planned(t.Project, dep.ID); ok {
		return dep.Range.Contains(v)
	}
	if v, ok := t.Project.References.CurrentVersion(dep.ID); ok {
		return dep.Range.Contains(v)
	}
	return false
}
