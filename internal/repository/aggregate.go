package repository

import (
	"context"

	"github.com/anvil-platform/anvilpkg/internal/packages"
)

// Aggregate queries several sources in order. Identical (id, version) entries
// from later sources are dropped.
type Aggregate []Repository

func (a Aggregate) FindPackagesByID(ctx context.Context, id string) ([]packages.Package, error) {
	var all []packages.Package
	for _, r := range a {
		if r == nil {
			continue
		}
		found, err := r.FindPackagesByID(ctx, id)
		if err != nil {
			return nil, err
		}
		all = append(all, found...)
	}
	return Dedupe(all), nil
}
