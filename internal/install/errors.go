package install

import "errors"

var (
	// ErrInvalidVersion indicates an explicitly requested version the source
	// cannot provide.
	ErrInvalidVersion = errors.New("install: invalid version")
	ErrInvalidTarget  = errors.New("install: invalid target")
	// ErrDependencyUnresolved indicates a dependency of a package to be
	// installed has no version in its declared range.
	ErrDependencyUnresolved = errors.New("install: unresolved dependency")
)
