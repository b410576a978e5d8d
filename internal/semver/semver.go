package semver

import (
	"fmt"
	"strings"

	mm "github.com/Masterminds/semver/v3"
)

// Version is a semantic version with an optional prerelease label.
//
// This is a thin wrapper around github.com/Masterminds/semver/v3. The zero
// value is "no version" and is used as an unbounded range endpoint.
type Version struct {
	v *mm.Version
}

// ParseVersion accepts loose versions ("1.0", "v1.2.3-beta") and normalizes
// them to major.minor.patch.
func ParseVersion(raw string) (Version, error) {
	v, err := mm.NewVersion(strings.TrimSpace(raw))
	if err != nil {
		return Version{}, fmt.Errorf("semver: parse version %q: %w", raw, err)
	}
	return Version{v: v}, nil
}

func MustParseVersion(raw string) Version {
	v, err := ParseVersion(raw)
	if err != nil {
		panic(err)
	}
	return v
}

func (v Version) IsZero() bool {
	return v.v == nil
}

func (v Version) Major() uint64 {
	if v.v == nil {
		return 0
	}
	return v.v.Major()
}

func (v Version) Minor() uint64 {
	if v.v == nil {
		return 0
	}
	return v.v.Minor()
}

func (v Version) Patch() uint64 {
	if v.v == nil {
		return 0
	}
	return v.v.Patch()
}

// Prerelease returns the prerelease label without the leading dash.
func (v Version) Prerelease() string {
	if v.v == nil {
		return ""
	}
	return v.v.Prerelease()
}

func (v Version) IsPrerelease() bool {
	return v.Prerelease() != ""
}

// NextMinor returns major.(minor+1).0 with any prerelease label dropped.
func (v Version) NextMinor() Version {
	if v.v == nil {
		return Version{}
	}
	next := v.v.IncMinor()
	return Version{v: &next}
}

// String returns the normalized form, or "" for the zero value.
func (v Version) String() string {
	if v.v == nil {
		return ""
	}
	return v.v.String()
}

// Equal ignores build metadata, matching Compare.
func (v Version) Equal(o Version) bool {
	return Compare(v, o) == 0
}

// Compare compares a and b, returning:
// -1 if a < b
//
//	0 if a == b
//	1 if a > b
func Compare(a, b Version) int {
	if a.v == nil && b.v == nil {
		return 0
	}
	if a.v == nil {
		return -1
	}
	if b.v == nil {
		return 1
	}
	return a.v.Compare(b.v)
}

// Match reports whether v lies in r. Prerelease versions are only admitted
// when allowPrerelease is set.
func Match(v Version, r VersionRange, allowPrerelease bool) bool {
	if v.IsZero() {
		return false
	}
	if v.IsPrerelease() && !allowPrerelease {
		return false
	}
	return r.Contains(v)
}

// MaxSatisfying returns the highest version in candidates that matches r.
//
// If multiple versions are equal, the first encountered wins.
func MaxSatisfying(r VersionRange, candidates []Version, allowPrerelease bool) (Version, bool) {
	var best Version
	found := false
	for _, candidate := range candidates {
		if !Match(candidate, r, allowPrerelease) {
			continue
		}
		if !found || Compare(candidate, best) > 0 {
			best = candidate
			found = true
		}
	}
	return best, found
}

// MinSatisfying returns the lowest version in candidates that matches r.
func MinSatisfying(r VersionRange, candidates []Version, allowPrerelease bool) (Version, bool) {
	var best Version
	found := false
	for _, candidate := range candidates {
		if !Match(candidate, r, allowPrerelease) {
			continue
		}
		if !found || Compare(candidate, best) < 0 {
			best = candidate
			found = true
		}
	}
	return best, found
}
