package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/anvil-platform/anvilpkg/internal/packages"
)

const (
	// SpecFileName is the metadata file inside a feed version directory.
	SpecFileName = "package.yaml"
	// ContentDirName holds the files extracted into the shared store.
	ContentDirName = "content"
)

// Folder is a feed laid out on disk as
//
//	<root>/<id>/<version>/package.yaml
//	<root>/<id>/<version>/content/...
type Folder struct {
	root string
}

func NewFolder(root string) (*Folder, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("repository: feed %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("repository: feed %s: not a directory", root)
	}
	return &Folder{root: abs}, nil
}

func (f *Folder) Root() string {
	return f.root
}

func (f *Folder) FindPackagesByID(ctx context.Context, id string) ([]packages.Package, error) {
	ids, err := os.ReadDir(f.root)
	if err != nil {
		return nil, fmt.Errorf("repository: read feed %s: %w", f.root, err)
	}

	var out []packages.Package
	for _, idDir := range ids {
		if !idDir.IsDir() || !packages.SameID(idDir.Name(), id) {
			continue
		}
		base := filepath.Join(f.root, idDir.Name())
		versions, err := os.ReadDir(base)
		if err != nil {
			return nil, fmt.Errorf("repository: read feed %s: %w", base, err)
		}
		for _, vDir := range versions {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if !vDir.IsDir() {
				continue
			}
			p, err := readFolderPackage(filepath.Join(base, vDir.Name()))
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			if err != nil {
				return nil, err
			}
			if !packages.SameID(p.ID, id) {
				continue
			}
			out = append(out, p)
		}
	}
	return out, nil
}

func readFolderPackage(dir string) (packages.Package, error) {
	data, err := os.ReadFile(filepath.Join(dir, SpecFileName))
	if err != nil {
		return packages.Package{}, err
	}
	p, err := packages.Decode(data)
	if err != nil {
		return packages.Package{}, fmt.Errorf("repository: %s: %w", dir, err)
	}
	content := filepath.Join(dir, ContentDirName)
	if info, err := os.Stat(content); err == nil && info.IsDir() {
		p.Content = os.DirFS(content)
	}
	return p, nil
}
