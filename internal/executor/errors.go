package executor

import (
	"errors"
	"fmt"

	"github.com/anvil-platform/anvilpkg/internal/resolver"
)

var (
	// ErrDependencyNotInstalled indicates an Install whose dependency is not
	// referenced by the project in range, or not materialized in the store.
	ErrDependencyNotInstalled = errors.New("executor: dependency not installed")
)

// ProjectError is the failure that aborted one project's action sequence.
type ProjectError struct {
	Project string
	Action  resolver.Action
	Err     error
}

func (e *ProjectError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("project %s: %s: %v", e.Project, e.Action, e.Err)
}

func (e *ProjectError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
