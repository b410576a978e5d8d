package repository

import (
	"context"

	"github.com/anvil-platform/anvilpkg/internal/packages"
	"github.com/anvil-platform/anvilpkg/internal/project"
)

// Local is a project's installed view: the references recorded in its
// manifest, resolved to full metadata through meta (normally the shared
// store). A reference whose metadata is missing is reported as a bare package
// without dependencies.
type Local struct {
	refs project.ReferenceSet
	meta Repository
}

var _ LocalRepository = (*Local)(nil)

func NewLocal(refs project.ReferenceSet, meta Repository) *Local {
	return &Local{refs: refs, meta: meta}
}

func (l *Local) FindPackagesByID(ctx context.Context, id string) ([]packages.Package, error) {
	v, ok := l.refs.CurrentVersion(id)
	if !ok {
		return nil, nil
	}
	p, err := l.resolve(ctx, project.Reference{ID: id, Version: v})
	if err != nil {
		return nil, err
	}
	return []packages.Package{p}, nil
}

func (l *Local) InstalledPackages(ctx context.Context) ([]packages.Package, error) {
	refs := l.refs.References()
	out := make([]packages.Package, 0, len(refs))
	for _, ref := range refs {
		p, err := l.resolve(ctx, ref)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// DependencyEdges returns the installed package for every dependency id of p
// the project references. The installed version need not satisfy the
// declared range; the edge still constrains ordering.
func (l *Local) DependencyEdges(ctx context.Context, p packages.Package, framework string) ([]packages.Package, error) {
	var out []packages.Package
	for _, dep := range p.DependenciesFor(framework) {
		v, ok := l.refs.CurrentVersion(dep.ID)
		if !ok {
			continue
		}
		resolved, err := l.resolve(ctx, project.Reference{ID: dep.ID, Version: v})
		if err != nil {
			return nil, err
		}
		out = append(out, resolved)
	}
	return out, nil
}

func (l *Local) resolve(ctx context.Context, ref project.Reference) (packages.Package, error) {
	if l.meta != nil {
		found, err := l.meta.FindPackagesByID(ctx, ref.ID)
		if err != nil {
			return packages.Package{}, err
		}
		for _, p := range found {
			if p.Version.Equal(ref.Version) {
				return p, nil
			}
		}
	}
	return packages.Package{ID: ref.ID, Version: ref.Version, Listed: true}, nil
}
