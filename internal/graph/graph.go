// Package graph orders installed packages by their dependency edges.
//
// Sort produces dependency-first order: every package appears after the
// packages it depends on. Update order is the reverse, so that a dependent is
// updated (and may pull a compatible dependency forward) before the
// dependency itself is touched.
//
// Cycles are tolerated: a node met while it is still being visited is treated
// as already resolved, and the first visit fixes its position. Sort never
// fails on a cycle.
package graph

import (
	"context"
	"sort"

	"github.com/anvil-platform/anvilpkg/internal/packages"
	"github.com/anvil-platform/anvilpkg/internal/repository"
	"github.com/anvil-platform/anvilpkg/internal/semver"
)

type visitState uint8

const (
	unvisited visitState = iota
	visiting
	visited
)

// EdgeFunc returns the packages p depends on. Targets outside the sorted set
// are ignored.
type EdgeFunc func(p packages.Package) ([]packages.Package, error)

type frame struct {
	node int
	next int
}

// Sort returns pkgs in dependency-first order. Duplicate (id, version)
// entries are collapsed. Roots are visited in (id, version) order so the
// result is deterministic regardless of input order.
func Sort(pkgs []packages.Package, edges EdgeFunc) ([]packages.Package, error) {
	nodes := make([]packages.Package, 0, len(pkgs))
	index := make(map[packages.Key]int, len(pkgs))
	for _, p := range pkgs {
		k := p.Key()
		if _, ok := index[k]; ok {
			continue
		}
		index[k] = len(nodes)
		nodes = append(nodes, p)
	}

	order := make([]int, len(nodes))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(i, j int) bool {
		a, b := nodes[order[i]], nodes[order[j]]
		if ida, idb := packages.NormalizeID(a.ID), packages.NormalizeID(b.ID); ida != idb {
			return ida < idb
		}
		return semver.Compare(a.Version, b.Version) < 0
	})

	adj := make([][]int, len(nodes))
	for i, p := range nodes {
		targets, err := edges(p)
		if err != nil {
			return nil, err
		}
		for _, t := range targets {
			if j, ok := index[t.Key()]; ok && j != i {
				adj[i] = append(adj[i], j)
			}
		}
	}

	state := make([]visitState, len(nodes))
	out := make([]packages.Package, 0, len(nodes))
	stack := make([]frame, 0, len(nodes))

	for _, root := range order {
		if state[root] != unvisited {
			continue
		}
		state[root] = visiting
		stack = append(stack, frame{node: root})

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.next < len(adj[top.node]) {
				child := adj[top.node][top.next]
				top.next++
				// visiting: back edge of a cycle, skip re-entry.
				// visited: already emitted.
				if state[child] == unvisited {
					state[child] = visiting
					stack = append(stack, frame{node: child})
				}
				continue
			}
			state[top.node] = visited
			out = append(out, nodes[top.node])
			stack = stack[:len(stack)-1]
		}
	}
	return out, nil
}

// ByDependencyOrder sorts the installed set of local. The framework narrows
// which dependency edges count; empty keeps all of them.
func ByDependencyOrder(ctx context.Context, local repository.LocalRepository, framework string) ([]packages.Package, error) {
	installed, err := local.InstalledPackages(ctx)
	if err != nil {
		return nil, err
	}
	return Sort(installed, func(p packages.Package) ([]packages.Package, error) {
		return local.DependencyEdges(ctx, p, framework)
	})
}

// Reverse returns a reversed copy: the update order for a dependency order.
func Reverse(pkgs []packages.Package) []packages.Package {
	out := make([]packages.Package, len(pkgs))
	for i, p := range pkgs {
		out[len(pkgs)-1-i] = p
	}
	return out
}
