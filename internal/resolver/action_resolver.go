package resolver

import (
	"context"
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/anvil-platform/anvilpkg/internal/packages"
	"github.com/anvil-platform/anvilpkg/internal/project"
	"github.com/anvil-platform/anvilpkg/internal/semver"
)

// opKey identifies an operation. Projects compare by identity: two manifests
// may share a name.
type opKey struct {
	typ     ActionType
	project *project.Project
	pkg     packages.Key
}

// ActionResolver is the default Resolver.
type ActionResolver struct {
	pending []Action
}

var _ Resolver = (*ActionResolver)(nil)

func New() *ActionResolver {
	return &ActionResolver{}
}

func (r *ActionResolver) AddOperation(t ActionType, p packages.Package, target *project.Project) {
	r.pending = append(r.pending, Action{Type: t, Package: p, Project: target})
}

// Reset drops every queued operation.
func (r *ActionResolver) Reset() {
	r.pending = nil
}

// Pending is the number of queued, unresolved operations.
func (r *ActionResolver) Pending() int {
	return len(r.pending)
}

func (r *ActionResolver) Planned(target *project.Project, id string) (semver.Version, bool) {
	var v semver.Version
	found := false
	for _, op := range r.pending {
		if op.Project != target || !packages.SameID(op.Package.ID, id) {
			continue
		}
		switch op.Type {
		case Install:
			v, found = op.Package.Version, true
		case Uninstall:
			if found && v.Equal(op.Package.Version) {
				v, found = semver.Version{}, false
			}
		}
	}
	return v, found
}

// ResolveActions computes the final action list:
//
//  1. exact repeats of an operation are dropped;
//  2. an Install of the version a project already references is dropped;
//  3. an Install replacing a different referenced version of the same id is
//     preceded by a synthesized Uninstall of that version;
//  4. an Uninstall of a version the project does not reference is dropped.
//
// Submission order is otherwise preserved. Each project's references are
// simulated across the list, so later operations see earlier ones. The queue
// is cleared only when resolution succeeds.
func (r *ActionResolver) ResolveActions(ctx context.Context) ([]Action, error) {
	seen := sets.New[opKey]()
	state := map[*project.Project]map[string]semver.Version{}
	current := func(p *project.Project, id string) (semver.Version, bool) {
		refs, ok := state[p]
		if !ok {
			refs = map[string]semver.Version{}
			state[p] = refs
		}
		key := packages.NormalizeID(id)
		if v, ok := refs[key]; ok {
			return v, !v.IsZero()
		}
		v, ok := p.References.CurrentVersion(id)
		if !ok {
			v = semver.Version{}
		}
		refs[key] = v
		return v, ok
	}

	var out []Action
	for _, op := range r.pending {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := validate(op); err != nil {
			return nil, err
		}

		key := opKey{typ: op.Type, project: op.Project, pkg: op.Package.Key()}
		if seen.Has(key) {
			continue
		}
		seen.Insert(key)

		id := packages.NormalizeID(op.Package.ID)
		cur, referenced := current(op.Project, op.Package.ID)

		switch op.Type {
		case Install:
			if referenced && cur.Equal(op.Package.Version) {
				continue
			}
			if referenced {
				out = append(out, Action{
					Type:    Uninstall,
					Package: packages.Package{ID: op.Package.ID, Version: cur, Listed: true},
					Project: op.Project,
				})
			}
			out = append(out, op)
			state[op.Project][id] = op.Package.Version
		case Uninstall:
			if !referenced || !cur.Equal(op.Package.Version) {
				continue
			}
			out = append(out, op)
			state[op.Project][id] = semver.Version{}
		}
	}

	r.pending = nil
	return out, nil
}

func validate(op Action) error {
	if op.Project == nil || op.Project.References == nil {
		return fmt.Errorf("%w: %s without project", ErrInvalidOperation, op.Type)
	}
	if strings.TrimSpace(op.Package.ID) == "" || op.Package.Version.IsZero() {
		return fmt.Errorf("%w: %s with incomplete package %q", ErrInvalidOperation, op.Type, op.Package.String())
	}
	if op.Type != Install && op.Type != Uninstall {
		return fmt.Errorf("%w: unknown action %s", ErrInvalidOperation, op.Type)
	}
	return nil
}
