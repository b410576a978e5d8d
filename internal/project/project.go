// Package project describes a consuming project as the resolution engine sees
// it: a reference set it may mutate plus read-only constraints.
package project

import (
	"github.com/anvil-platform/anvilpkg/internal/constraint"
	"github.com/anvil-platform/anvilpkg/internal/packages"
	"github.com/anvil-platform/anvilpkg/internal/semver"
)

// Reference is one installed package entry of a project.
type Reference struct {
	ID              string
	Version         semver.Version
	TargetFramework string
}

// ReferenceSet is a project's mapping of installed package id to version.
// Only the action executor mutates it.
type ReferenceSet interface {
	CurrentVersion(id string) (semver.Version, bool)
	// AddReference records p, replacing any reference with the same id.
	AddReference(p packages.Package) error
	RemoveReference(id string) error
	// References lists the entries in a stable order.
	References() []Reference
	Save() error
}

// Project is a consuming project.
type Project struct {
	Name            string
	References      ReferenceSet
	Constraints     constraint.Provider
	TargetFramework string
}

// ConstraintFor returns the project's pin for id, tolerating a nil provider.
func (p *Project) ConstraintFor(id string) (semver.VersionRange, bool) {
	if p.Constraints == nil {
		return semver.AnyVersion(), false
	}
	return p.Constraints.ConstraintFor(id)
}

// Has reports whether the project currently references exactly id@v.
func (p *Project) Has(id string, v semver.Version) bool {
	cur, ok := p.References.CurrentVersion(id)
	return ok && cur.Equal(v)
}
