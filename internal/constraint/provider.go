// Package constraint supplies per-project version pins that narrow which
// versions the resolution engine may pick for a package id.
package constraint

import (
	"strings"

	"github.com/anvil-platform/anvilpkg/internal/packages"
	"github.com/anvil-platform/anvilpkg/internal/semver"
)

// Provider returns the pinned range for a package id, if any.
type Provider interface {
	ConstraintFor(id string) (semver.VersionRange, bool)
	// Source names where the constraints come from, for log messages.
	Source() string
}

// None is a Provider without constraints.
var None Provider = Static{}

// Static is an in-memory Provider keyed by case-insensitive id.
type Static struct {
	Name   string
	Ranges map[string]semver.VersionRange
}

func NewStatic(name string) Static {
	return Static{Name: name, Ranges: map[string]semver.VersionRange{}}
}

// Pin records r for id, replacing any earlier pin.
func (s Static) Pin(id string, r semver.VersionRange) Static {
	s.Ranges[packages.NormalizeID(id)] = r
	return s
}

func (s Static) ConstraintFor(id string) (semver.VersionRange, bool) {
	r, ok := s.Ranges[packages.NormalizeID(id)]
	return r, ok
}

func (s Static) Source() string {
	return s.Name
}

// Aggregate intersects the constraints of every provider that pins an id.
type Aggregate []Provider

func (a Aggregate) ConstraintFor(id string) (semver.VersionRange, bool) {
	out := semver.AnyVersion()
	found := false
	for _, p := range a {
		if p == nil {
			continue
		}
		if r, ok := p.ConstraintFor(id); ok {
			out = out.Intersect(r)
			found = true
		}
	}
	return out, found
}

func (a Aggregate) Source() string {
	names := make([]string, 0, len(a))
	for _, p := range a {
		if p == nil || p.Source() == "" {
			continue
		}
		names = append(names, p.Source())
	}
	return strings.Join(names, ", ")
}
