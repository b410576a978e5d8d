package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/anvil-platform/anvilpkg/internal/fsutil"
)

// RegistryFileName lists the manifests that reference the store.
const RegistryFileName = "repositories.yaml"

type registryFile struct {
	Repositories []registryEntry `yaml:"repositories"`
}

type registryEntry struct {
	Path string `yaml:"path"`
}

// RegisterRepository records the manifest at manifestPath as a user of the
// store. Paths are kept relative to the store root when possible.
func (s *Store) RegisterRepository(manifestPath string) error {
	abs, err := filepath.Abs(manifestPath)
	if err != nil {
		return err
	}

	s.registryMu.Lock()
	defer s.registryMu.Unlock()

	current, err := s.readRegistry()
	if err != nil {
		return err
	}
	for _, p := range current {
		if p == abs {
			return nil
		}
	}
	current = append(current, abs)
	sort.Strings(current)

	var f registryFile
	for _, p := range current {
		stored := p
		if rel, err := filepath.Rel(s.root, p); err == nil {
			stored = filepath.ToSlash(rel)
		}
		f.Repositories = append(f.Repositories, registryEntry{Path: stored})
	}
	data, err := yaml.Marshal(&f)
	if err != nil {
		return fmt.Errorf("store: encode registry: %w", err)
	}
	if err := fsutil.WriteFileAtomic(filepath.Join(s.root, RegistryFileName), data, 0o644); err != nil {
		return fmt.Errorf("store: write registry: %w", err)
	}
	return nil
}

// Repositories returns the absolute paths of registered manifests that still
// exist.
func (s *Store) Repositories() ([]string, error) {
	s.registryMu.Lock()
	defer s.registryMu.Unlock()

	all, err := s.readRegistry()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(all))
	for _, p := range all {
		if _, err := os.Stat(p); err == nil {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Store) readRegistry() ([]string, error) {
	path := filepath.Join(s.root, RegistryFileName)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: read registry: %w", err)
	}
	var f registryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("store: decode registry %s: %w", path, err)
	}
	out := make([]string, 0, len(f.Repositories))
	for _, e := range f.Repositories {
		if e.Path == "" {
			continue
		}
		p := filepath.FromSlash(e.Path)
		if !filepath.IsAbs(p) {
			p = filepath.Join(s.root, p)
		}
		out = append(out, filepath.Clean(p))
	}
	return out, nil
}
