// Package executor applies resolved actions to project manifests and the
// shared store, strictly in order.
package executor

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/anvil-platform/anvilpkg/internal/conflict"
	"github.com/anvil-platform/anvilpkg/internal/metrics"
	"github.com/anvil-platform/anvilpkg/internal/packages"
	"github.com/anvil-platform/anvilpkg/internal/project"
	"github.com/anvil-platform/anvilpkg/internal/resolver"
	"github.com/anvil-platform/anvilpkg/internal/semver"
)

// Store is the shared store as the executor uses it.
type Store interface {
	Exists(id string, v semver.Version) bool
	Extract(ctx context.Context, p packages.Package, r conflict.Resolver) error
	Remove(ctx context.Context, id string, v semver.Version) error
}

// Executor runs action lists. One Executor is shared by every project of a
// run so that each package version is extracted at most once.
type Executor struct {
	Store     Store
	Conflicts conflict.Resolver
	// Projects are consulted, together with the projects named by the
	// actions, before a store entry is removed.
	Projects []*project.Project
	// AfterInstall runs synchronously after each successful Install. An error
	// fails that Install.
	AfterInstall func(ctx context.Context, a resolver.Action) error
	Log          logr.Logger

	extracted sets.Set[string]
}

// Execute applies actions in order. When an action fails, the remaining
// actions of its project are skipped and the other projects continue. The
// failures are returned as an aggregate of *ProjectError.
func (e *Executor) Execute(ctx context.Context, actions []resolver.Action) error {
	if e.extracted == nil {
		e.extracted = sets.New[string]()
	}
	log := e.Log
	if log.GetSink() == nil {
		log = logr.FromContextOrDiscard(ctx)
	}

	involved := append([]*project.Project(nil), e.Projects...)
	for _, a := range actions {
		if a.Project != nil && !contains(involved, a.Project) {
			involved = append(involved, a.Project)
		}
	}

	failed := map[*project.Project]bool{}
	var errs []error
	for _, a := range actions {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if a.Project == nil || a.Project.References == nil {
			errs = append(errs, fmt.Errorf("%w: %s", resolver.ErrInvalidOperation, a))
			continue
		}
		if failed[a.Project] {
			metrics.RecordAction(a.Type.String(), metrics.ResultSkipped)
			continue
		}

		alog := log.WithValues("project", a.Project.Name, "package", a.Package.String())
		var err error
		switch a.Type {
		case resolver.Install:
			err = e.install(logr.NewContext(ctx, alog), alog, a)
		case resolver.Uninstall:
			err = e.uninstall(logr.NewContext(ctx, alog), alog, a, involved)
		default:
			err = fmt.Errorf("%w: %s", resolver.ErrInvalidOperation, a.Type)
		}
		if err != nil {
			failed[a.Project] = true
			metrics.RecordAction(a.Type.String(), metrics.ResultFailure)
			errs = append(errs, &ProjectError{Project: a.Project.Name, Action: a, Err: err})
			continue
		}
		metrics.RecordAction(a.Type.String(), metrics.ResultSuccess)
	}
	return utilerrors.NewAggregate(errs)
}

func (e *Executor) install(ctx context.Context, log logr.Logger, a resolver.Action) error {
	p := a.Package
	for _, d := range p.DependenciesFor(a.Project.TargetFramework) {
		v, ok := a.Project.References.CurrentVersion(d.ID)
		if !ok || !d.Range.Contains(v) {
			return fmt.Errorf("%w: %s requires %s %s", ErrDependencyNotInstalled, p, d.ID, d.Range.PrettyPrint())
		}
		if !e.Store.Exists(d.ID, v) {
			return fmt.Errorf("%w: %s requires %s %s, which is not in the store", ErrDependencyNotInstalled, p, d.ID, v)
		}
	}

	key := p.Key().String()
	if !e.extracted.Has(key) {
		if !e.Store.Exists(p.ID, p.Version) {
			if err := e.Store.Extract(ctx, p, e.Conflicts); err != nil {
				return err
			}
		}
		e.extracted.Insert(key)
	}

	if err := a.Project.References.AddReference(p); err != nil {
		return err
	}
	if err := a.Project.References.Save(); err != nil {
		return err
	}
	log.Info("installed package")

	if e.AfterInstall != nil {
		if err := e.AfterInstall(ctx, a); err != nil {
			return fmt.Errorf("executor: post-install: %w", err)
		}
	}
	return nil
}

func (e *Executor) uninstall(ctx context.Context, log logr.Logger, a resolver.Action, involved []*project.Project) error {
	p := a.Package
	if err := a.Project.References.RemoveReference(p.ID); err != nil {
		return err
	}
	if err := a.Project.References.Save(); err != nil {
		return err
	}
	log.Info("uninstalled package")

	for _, other := range involved {
		if other.References != nil && other.Has(p.ID, p.Version) {
			return nil
		}
	}
	if err := e.Store.Remove(ctx, p.ID, p.Version); err != nil {
		return err
	}
	e.extracted.Delete(p.Key().String())
	return nil
}

func contains(list []*project.Project, p *project.Project) bool {
	for _, q := range list {
		if q == p {
			return true
		}
	}
	return false
}
