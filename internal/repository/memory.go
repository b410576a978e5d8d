package repository

import (
	"context"

	"github.com/anvil-platform/anvilpkg/internal/packages"
)

// Memory is an in-process source.
type Memory struct {
	byID map[string][]packages.Package
}

func NewMemory(pkgs ...packages.Package) *Memory {
	m := &Memory{byID: map[string][]packages.Package{}}
	m.Add(pkgs...)
	return m
}

func (m *Memory) Add(pkgs ...packages.Package) {
	for _, p := range pkgs {
		id := packages.NormalizeID(p.ID)
		m.byID[id] = append(m.byID[id], p)
	}
}

func (m *Memory) FindPackagesByID(ctx context.Context, id string) ([]packages.Package, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	found := m.byID[packages.NormalizeID(id)]
	out := make([]packages.Package, len(found))
	copy(out, found)
	return out, nil
}
