// Package store is the shared, de-duplicated package store. Each package
// version is materialized once under
//
//	<root>/<id>.<version>/
//
// and serves every project that references it. The entry's .package.yaml is
// written after its content, so an entry without it is incomplete.
package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-logr/logr"
	"golang.org/x/sync/singleflight"

	"github.com/anvil-platform/anvilpkg/internal/conflict"
	"github.com/anvil-platform/anvilpkg/internal/fsutil"
	"github.com/anvil-platform/anvilpkg/internal/logging"
	"github.com/anvil-platform/anvilpkg/internal/metrics"
	"github.com/anvil-platform/anvilpkg/internal/packages"
	"github.com/anvil-platform/anvilpkg/internal/repository"
	"github.com/anvil-platform/anvilpkg/internal/semver"
)

// MetadataFileName marks a complete entry.
const MetadataFileName = ".package.yaml"

// Store is a filesystem-backed shared store.
type Store struct {
	root string

	extracting singleflight.Group
	registryMu sync.Mutex
}

var _ repository.Repository = (*Store)(nil)

// New opens the store at root, creating the directory when missing.
func New(root string) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidRoot)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if info, err := os.Stat(abs); err == nil && !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrInvalidRoot, abs)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("store: create %s: %w", abs, err)
	}
	return &Store{root: abs}, nil
}

func (s *Store) Root() string {
	return s.root
}

// Dir is the entry directory for id and v. An existing directory whose name
// differs only in case is reused.
func (s *Store) Dir(id string, v semver.Version) string {
	name := strings.TrimSpace(id) + "." + v.String()
	entries, err := os.ReadDir(s.root)
	if err == nil {
		for _, e := range entries {
			if e.IsDir() && strings.EqualFold(e.Name(), name) {
				return filepath.Join(s.root, e.Name())
			}
		}
	}
	return filepath.Join(s.root, name)
}

// Exists reports whether a complete entry for id and v is present.
func (s *Store) Exists(id string, v semver.Version) bool {
	info, err := os.Stat(filepath.Join(s.Dir(id, v), MetadataFileName))
	return err == nil && info.Mode().IsRegular()
}

// Extract materializes p. A complete entry is left untouched. Content files
// identical to what is on disk are skipped; differing files go to resolver,
// and a declined overwrite keeps the existing file. Concurrent calls for the
// same package share one extraction.
func (s *Store) Extract(ctx context.Context, p packages.Package, resolver conflict.Resolver) error {
	_, err, _ := s.extracting.Do(p.Key().String(), func() (any, error) {
		return nil, s.extract(ctx, p, resolver)
	})
	return err
}

func (s *Store) extract(ctx context.Context, p packages.Package, resolver conflict.Resolver) error {
	log := logr.FromContextOrDiscard(ctx).WithValues("package", p.String())
	if s.Exists(p.ID, p.Version) {
		logging.Debug(log).Info("package already in store")
		return nil
	}

	dir := s.Dir(p.ID, p.Version)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		metrics.RecordExtraction(metrics.ResultFailure)
		return fmt.Errorf("store: create %s: %w", dir, err)
	}

	if p.Content != nil {
		err := fs.WalkDir(p.Content, ".", func(name string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if name == "." {
				return nil
			}
			target := filepath.Join(dir, filepath.FromSlash(name))
			if !fsutil.IsWithin(target, dir) || path.Clean(name) == MetadataFileName {
				return fmt.Errorf("%w: %s", ErrSandboxViolation, name)
			}
			if d.IsDir() {
				return os.MkdirAll(target, 0o755)
			}
			if !d.Type().IsRegular() {
				return fmt.Errorf("%w: %s is not a regular file", ErrSandboxViolation, name)
			}
			return s.writeContent(log, p.Content, name, target, resolver)
		})
		if err != nil {
			metrics.RecordExtraction(metrics.ResultFailure)
			return fmt.Errorf("store: extract %s: %w", p, err)
		}
	}

	meta, err := packages.Encode(p)
	if err != nil {
		metrics.RecordExtraction(metrics.ResultFailure)
		return fmt.Errorf("store: encode %s: %w", p, err)
	}
	if err := fsutil.WriteFileAtomic(filepath.Join(dir, MetadataFileName), meta, 0o644); err != nil {
		metrics.RecordExtraction(metrics.ResultFailure)
		return fmt.Errorf("store: write metadata for %s: %w", p, err)
	}

	metrics.RecordExtraction(metrics.ResultSuccess)
	log.Info("added package to store", "path", dir)
	return nil
}

func (s *Store) writeContent(log logr.Logger, content fs.FS, name, target string, resolver conflict.Resolver) error {
	data, err := fs.ReadFile(content, name)
	if err != nil {
		return err
	}

	existing, err := os.ReadFile(target)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return err
	case bytes.Equal(existing, data):
		return nil
	default:
		res := conflict.Ignore
		if resolver != nil {
			res = resolver.ResolveFileConflict(fmt.Sprintf("File %q already exists with different content. Overwrite?", target))
		}
		metrics.RecordConflict(res.String())
		if !res.Overwrites() {
			logging.Warn(log, "kept existing file", "error", fmt.Errorf("%w: %s", ErrExtractionConflict, name))
			return nil
		}
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	return os.WriteFile(target, data, 0o644)
}

// Remove deletes the entry for id and v. Removing a missing entry succeeds.
func (s *Store) Remove(ctx context.Context, id string, v semver.Version) error {
	dir := s.Dir(id, v)
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	// Drop the completeness marker first so a partial removal is not mistaken
	// for an installed entry.
	if err := os.Remove(filepath.Join(dir, MetadataFileName)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("store: remove %s: %w", dir, err)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("store: remove %s: %w", dir, err)
	}
	metrics.RecordRemoval()
	logr.FromContextOrDiscard(ctx).Info("removed package from store", "package", id+" "+v.String())
	return nil
}

// FindPackagesByID lists the complete entries for id. Returned packages carry
// metadata only.
func (s *Store) FindPackagesByID(ctx context.Context, id string) ([]packages.Package, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("store: read %s: %w", s.root, err)
	}
	prefix := strings.ToLower(strings.TrimSpace(id)) + "."

	var out []packages.Package
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !e.IsDir() || !strings.HasPrefix(strings.ToLower(e.Name()), prefix) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.root, e.Name(), MetadataFileName))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("store: read %s: %w", e.Name(), err)
		}
		p, err := packages.Decode(data)
		if err != nil {
			return nil, fmt.Errorf("store: %s: %w", e.Name(), err)
		}
		// "Foo.Bar.1.0.0" shares the "foo." prefix; the metadata decides.
		if !packages.SameID(p.ID, id) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}
