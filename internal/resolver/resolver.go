package resolver

import (
	"context"

	"github.com/anvil-platform/anvilpkg/internal/packages"
	"github.com/anvil-platform/anvilpkg/internal/project"
	"github.com/anvil-platform/anvilpkg/internal/semver"
)

// Resolver turns queued operations into an ordered action list.
//
// Callers queue operations in dependency order; the resolver does not
// re-sort them.
type Resolver interface {
	AddOperation(t ActionType, p packages.Package, target *project.Project)
	// Planned reports the version a queued, unresolved Install would leave
	// referenced for id in target.
	Planned(target *project.Project, id string) (semver.Version, bool)
	ResolveActions(ctx context.Context) ([]Action, error)
	// Reset discards queued operations, e.g. after a request fails halfway.
	Reset()
}
