// Package packages holds the immutable package model shared by feeds, the
// shared store, and the resolution engine.
package packages

import (
	"io/fs"
	"strings"

	"github.com/anvil-platform/anvilpkg/internal/semver"
)

// Package is a versioned unit with declared dependencies. Values are treated
// as immutable once fetched from a repository.
type Package struct {
	ID      string
	Version semver.Version
	// Listed is false for withdrawn versions; they resolve only when a caller
	// explicitly allows unlisted packages.
	Listed           bool
	Dependencies     []Dependency
	TargetFrameworks []string
	// Content is the file tree extracted into the shared store. It may be nil
	// for metadata-only packages.
	Content fs.FS
}

// Dependency is a declared edge from a package to another package id.
type Dependency struct {
	ID    string
	Range semver.VersionRange
	// Safe marks a range that was derived with semver.SafeRangeFrom.
	Safe bool
	// TargetFramework restricts the edge to one framework; empty applies to all.
	TargetFramework string
}

// Key identifies a package version independent of id casing.
type Key struct {
	ID      string
	Version string
}

func (k Key) String() string {
	return k.ID + "@" + k.Version
}

// NewKey builds the canonical key for id and version.
func NewKey(id string, v semver.Version) Key {
	return Key{ID: NormalizeID(id), Version: v.String()}
}

// NormalizeID folds an id for case-insensitive comparison.
func NormalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// SameID compares package ids case-insensitively.
func SameID(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func (p Package) Key() Key {
	return NewKey(p.ID, p.Version)
}

func (p Package) String() string {
	return p.ID + " " + p.Version.String()
}

// DependenciesFor returns the edges that apply to framework. An empty
// framework keeps every edge.
func (p Package) DependenciesFor(framework string) []Dependency {
	if framework == "" {
		return p.Dependencies
	}
	out := make([]Dependency, 0, len(p.Dependencies))
	for _, d := range p.Dependencies {
		if d.TargetFramework == "" || strings.EqualFold(d.TargetFramework, framework) {
			out = append(out, d)
		}
	}
	return out
}
