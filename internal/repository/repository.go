// Package repository is the read-only view over package sources: remote-like
// feeds, the shared store, and a project's installed set.
package repository

import (
	"context"
	"sort"

	"github.com/anvil-platform/anvilpkg/internal/packages"
	"github.com/anvil-platform/anvilpkg/internal/semver"
)

// Repository enumerates every version of a package id a source knows about.
// An unknown id yields an empty slice, not an error.
type Repository interface {
	FindPackagesByID(ctx context.Context, id string) ([]packages.Package, error)
}

// LocalRepository is the installed view of one project.
type LocalRepository interface {
	Repository
	InstalledPackages(ctx context.Context) ([]packages.Package, error)
	// DependencyEdges resolves p's dependencies to installed packages.
	DependencyEdges(ctx context.Context, p packages.Package, framework string) ([]packages.Package, error)
}

// Query selects one version of a package.
type Query struct {
	// Version, when set, takes precedence over Range and Constraint.
	Version semver.Version
	Range   semver.VersionRange
	// Constraint is intersected with Range when HasConstraint is set.
	Constraint      semver.VersionRange
	HasConstraint   bool
	AllowPrerelease bool
	AllowUnlisted   bool
	// PreferLowest picks the lowest match instead of the highest.
	PreferLowest bool
}

// FindPackage selects a single package from repo.
//
// With an exact Version the package must exist and pass the unlisted and
// prerelease gates, otherwise a *NotFoundError is returned. Without one, the
// best version within Range ∩ Constraint is returned; no qualifying version
// yields ok=false and a nil error. An id unknown to repo is always a
// *NotFoundError.
func FindPackage(ctx context.Context, repo Repository, id string, q Query) (packages.Package, bool, error) {
	all, err := repo.FindPackagesByID(ctx, id)
	if err != nil {
		return packages.Package{}, false, err
	}
	all = Dedupe(all)
	if len(all) == 0 {
		return packages.Package{}, false, &NotFoundError{ID: id}
	}

	if !q.Version.IsZero() {
		for _, p := range all {
			if !p.Version.Equal(q.Version) {
				continue
			}
			if !p.Listed && !q.AllowUnlisted {
				return packages.Package{}, false, &NotFoundError{ID: id, Version: q.Version.String(), Reason: "unlisted"}
			}
			if p.Version.IsPrerelease() && !q.AllowPrerelease {
				return packages.Package{}, false, &NotFoundError{ID: id, Version: q.Version.String(), Reason: "prerelease not allowed"}
			}
			return p, true, nil
		}
		return packages.Package{}, false, &NotFoundError{ID: id, Version: q.Version.String()}
	}

	r := q.Range
	if q.HasConstraint {
		r = r.Intersect(q.Constraint)
	}

	var best packages.Package
	found := false
	for _, p := range all {
		if !p.Listed && !q.AllowUnlisted {
			continue
		}
		if !semver.Match(p.Version, r, q.AllowPrerelease) {
			continue
		}
		if !found {
			best, found = p, true
			continue
		}
		c := semver.Compare(p.Version, best.Version)
		if (q.PreferLowest && c < 0) || (!q.PreferLowest && c > 0) {
			best = p
		}
	}
	return best, found, nil
}

// Dedupe drops later duplicates of the same (id, version), keeping source
// order, and returns the survivors sorted by ascending version.
func Dedupe(pkgs []packages.Package) []packages.Package {
	seen := make(map[packages.Key]struct{}, len(pkgs))
	out := make([]packages.Package, 0, len(pkgs))
	for _, p := range pkgs {
		k := p.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return semver.Compare(out[i].Version, out[j].Version) < 0
	})
	return out
}
