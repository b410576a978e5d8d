package resolver

import "errors"

var (
	// ErrInvalidOperation indicates a queued operation without a project or
	// without a complete package identity.
	ErrInvalidOperation = errors.New("resolver: invalid operation")
)
