package packages

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/anvil-platform/anvilpkg/internal/semver"
)

var ErrInvalidSpec = errors.New("packages: invalid package spec")

// spec is the on-disk form of package metadata (package.yaml).
type spec struct {
	ID               string           `yaml:"id"`
	Version          string           `yaml:"version"`
	Listed           *bool            `yaml:"listed,omitempty"`
	TargetFrameworks []string         `yaml:"targetFrameworks,omitempty"`
	Dependencies     []dependencySpec `yaml:"dependencies,omitempty"`
}

type dependencySpec struct {
	ID              string `yaml:"id"`
	Range           string `yaml:"range,omitempty"`
	Safe            bool   `yaml:"safe,omitempty"`
	TargetFramework string `yaml:"targetFramework,omitempty"`
}

// Decode parses package metadata. Content is left nil; callers attach it.
func Decode(data []byte) (Package, error) {
	var s spec
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Package{}, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}

	id := strings.TrimSpace(s.ID)
	if id == "" {
		return Package{}, fmt.Errorf("%w: missing id", ErrInvalidSpec)
	}
	v, err := semver.ParseVersion(s.Version)
	if err != nil {
		return Package{}, fmt.Errorf("%w: %s: %v", ErrInvalidSpec, id, err)
	}

	p := Package{
		ID:               id,
		Version:          v,
		Listed:           s.Listed == nil || *s.Listed,
		TargetFrameworks: s.TargetFrameworks,
	}
	for _, d := range s.Dependencies {
		depID := strings.TrimSpace(d.ID)
		if depID == "" {
			return Package{}, fmt.Errorf("%w: %s: dependency without id", ErrInvalidSpec, id)
		}
		r, err := semver.ParseRange(d.Range)
		if err != nil {
			return Package{}, fmt.Errorf("%w: %s -> %s: %v", ErrInvalidSpec, id, depID, err)
		}
		p.Dependencies = append(p.Dependencies, Dependency{
			ID:              depID,
			Range:           r,
			Safe:            d.Safe,
			TargetFramework: strings.TrimSpace(d.TargetFramework),
		})
	}
	return p, nil
}

// Encode renders package metadata in the form Decode reads.
func Encode(p Package) ([]byte, error) {
	s := spec{
		ID:               p.ID,
		Version:          p.Version.String(),
		TargetFrameworks: p.TargetFrameworks,
	}
	if !p.Listed {
		listed := false
		s.Listed = &listed
	}
	for _, d := range p.Dependencies {
		ds := dependencySpec{
			ID:              d.ID,
			Safe:            d.Safe,
			TargetFramework: d.TargetFramework,
		}
		if !d.Range.IsAny() {
			ds.Range = d.Range.Interval()
		}
		s.Dependencies = append(s.Dependencies, ds)
	}
	return yaml.Marshal(&s)
}
