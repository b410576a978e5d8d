package resolver

import (
	"fmt"

	"github.com/anvil-platform/anvilpkg/internal/packages"
	"github.com/anvil-platform/anvilpkg/internal/project"
)

// ActionType is the kind of change an Action applies to a project.
type ActionType int

const (
	Install ActionType = iota
	Uninstall
)

func (t ActionType) String() string {
	switch t {
	case Install:
		return "Install"
	case Uninstall:
		return "Uninstall"
	default:
		return fmt.Sprintf("ActionType(%d)", int(t))
	}
}

// Action is one planned change. Actions are produced by ResolveActions,
// executed once in order, and never persisted.
//
// For Uninstall only the package identity (ID, Version) is meaningful.
type Action struct {
	Type    ActionType
	Package packages.Package
	Project *project.Project
}

func (a Action) String() string {
	name := ""
	if a.Project != nil {
		name = a.Project.Name
	}
	return fmt.Sprintf("%s(%s, %s)", a.Type, a.Package, name)
}

// ForProject filters actions down to one project, keeping order.
func ForProject(actions []Action, p *project.Project) []Action {
	var out []Action
	for _, a := range actions {
		if a.Project == p {
			out = append(out, a)
		}
	}
	return out
}
