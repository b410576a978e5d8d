// Package manifest persists a project's installed package references as a
// packages.yaml file. A Manifest serves as the project's reference set and as
// its constraint provider (allowedVersions).
package manifest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/anvil-platform/anvilpkg/internal/constraint"
	"github.com/anvil-platform/anvilpkg/internal/fsutil"
	"github.com/anvil-platform/anvilpkg/internal/packages"
	"github.com/anvil-platform/anvilpkg/internal/project"
	"github.com/anvil-platform/anvilpkg/internal/semver"
)

// FileName is the default manifest name looked up inside a project directory.
const FileName = "packages.yaml"

var ErrInvalidManifest = errors.New("manifest: invalid manifest")

type file struct {
	Packages []entry `yaml:"packages"`
}

type entry struct {
	ID              string `yaml:"id"`
	Version         string `yaml:"version"`
	TargetFramework string `yaml:"targetFramework,omitempty"`
	AllowedVersions string `yaml:"allowedVersions,omitempty"`
}

type reference struct {
	project.Reference
	allowed    semver.VersionRange
	hasAllowed bool
}

// Manifest is a project's reference set. It is not safe for concurrent use.
type Manifest struct {
	name string
	path string
	refs []reference
	// retired keeps allowedVersions of removed entries so that an update,
	// which removes then re-adds an id, keeps the pin.
	retired map[string]semver.VersionRange
	saves   int
}

var (
	_ project.ReferenceSet = (*Manifest)(nil)
	_ constraint.Provider  = (*Manifest)(nil)
)

// Load reads the manifest at path. A missing file yields an empty manifest
// that is created on the first Save.
func Load(path string) (*Manifest, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	m := &Manifest{
		name:    filepath.Base(filepath.Dir(abs)),
		path:    abs,
		retired: map[string]semver.VersionRange{},
	}

	data, err := os.ReadFile(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("manifest: read %s: %w", abs, err)
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidManifest, abs, err)
	}
	for _, e := range f.Packages {
		ref, err := parseEntry(e)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidManifest, abs, err)
		}
		if _, ok := m.find(ref.ID); ok {
			return nil, fmt.Errorf("%w: %s: duplicate package %q", ErrInvalidManifest, abs, ref.ID)
		}
		m.refs = append(m.refs, ref)
	}
	return m, nil
}

// NewInMemory returns a manifest that is never written to disk.
func NewInMemory(name string) *Manifest {
	return &Manifest{name: name, retired: map[string]semver.VersionRange{}}
}

func parseEntry(e entry) (reference, error) {
	id := strings.TrimSpace(e.ID)
	if id == "" {
		return reference{}, errors.New("package entry without id")
	}
	v, err := semver.ParseVersion(e.Version)
	if err != nil {
		return reference{}, fmt.Errorf("package %q: %w", id, err)
	}
	ref := reference{Reference: project.Reference{ID: id, Version: v, TargetFramework: strings.TrimSpace(e.TargetFramework)}}
	if strings.TrimSpace(e.AllowedVersions) != "" {
		r, err := semver.ParseRange(e.AllowedVersions)
		if err != nil {
			return reference{}, fmt.Errorf("package %q: allowedVersions: %w", id, err)
		}
		ref.allowed, ref.hasAllowed = r, true
	}
	return ref, nil
}

// Name is the project name: the manifest's directory, or the in-memory name.
func (m *Manifest) Name() string {
	return m.name
}

// Path is empty for in-memory manifests.
func (m *Manifest) Path() string {
	return m.path
}

// Saves counts successful Save calls.
func (m *Manifest) Saves() int {
	return m.saves
}

func (m *Manifest) find(id string) (int, bool) {
	for i, r := range m.refs {
		if packages.SameID(r.ID, id) {
			return i, true
		}
	}
	return -1, false
}

func (m *Manifest) CurrentVersion(id string) (semver.Version, bool) {
	i, ok := m.find(id)
	if !ok {
		return semver.Version{}, false
	}
	return m.refs[i].Version, true
}

func (m *Manifest) AddReference(p packages.Package) error {
	if strings.TrimSpace(p.ID) == "" || p.Version.IsZero() {
		return fmt.Errorf("manifest: add reference: incomplete package identity %q", p.String())
	}
	ref := reference{Reference: project.Reference{ID: p.ID, Version: p.Version}}
	if i, ok := m.find(p.ID); ok {
		ref.TargetFramework = m.refs[i].TargetFramework
		ref.allowed, ref.hasAllowed = m.refs[i].allowed, m.refs[i].hasAllowed
		m.refs[i] = ref
		return nil
	}
	key := packages.NormalizeID(p.ID)
	if r, ok := m.retired[key]; ok {
		ref.allowed, ref.hasAllowed = r, true
		delete(m.retired, key)
	}
	m.refs = append(m.refs, ref)
	return nil
}

func (m *Manifest) RemoveReference(id string) error {
	i, ok := m.find(id)
	if !ok {
		return nil
	}
	if m.refs[i].hasAllowed {
		m.retired[packages.NormalizeID(id)] = m.refs[i].allowed
	}
	m.refs = append(m.refs[:i], m.refs[i+1:]...)
	return nil
}

func (m *Manifest) References() []project.Reference {
	out := make([]project.Reference, 0, len(m.refs))
	for _, r := range m.refs {
		out = append(out, r.Reference)
	}
	sort.Slice(out, func(i, j int) bool {
		return packages.NormalizeID(out[i].ID) < packages.NormalizeID(out[j].ID)
	})
	return out
}

// Pin sets the allowedVersions constraint of an existing entry.
func (m *Manifest) Pin(id string, r semver.VersionRange) error {
	i, ok := m.find(id)
	if !ok {
		return fmt.Errorf("manifest: pin %q: package not referenced", id)
	}
	m.refs[i].allowed, m.refs[i].hasAllowed = r, true
	return nil
}

func (m *Manifest) ConstraintFor(id string) (semver.VersionRange, bool) {
	i, ok := m.find(id)
	if !ok || !m.refs[i].hasAllowed {
		return semver.VersionRange{}, false
	}
	return m.refs[i].allowed, true
}

func (m *Manifest) Source() string {
	if m.path != "" {
		return m.path
	}
	return m.name
}

// Save writes the manifest atomically. Entries are sorted by id.
func (m *Manifest) Save() error {
	if m.path == "" {
		m.saves++
		return nil
	}

	var f file
	for _, r := range m.refs {
		e := entry{ID: r.ID, Version: r.Version.String(), TargetFramework: r.TargetFramework}
		if r.hasAllowed {
			e.AllowedVersions = r.allowed.Interval()
		}
		f.Packages = append(f.Packages, e)
	}
	sort.Slice(f.Packages, func(i, j int) bool {
		return packages.NormalizeID(f.Packages[i].ID) < packages.NormalizeID(f.Packages[j].ID)
	})

	data, err := yaml.Marshal(&f)
	if err != nil {
		return fmt.Errorf("manifest: encode %s: %w", m.path, err)
	}
	if err := fsutil.WriteFileAtomic(m.path, data, 0o644); err != nil {
		return fmt.Errorf("manifest: save %s: %w", m.path, err)
	}
	m.saves++
	return nil
}
