package store

import "errors"

var (
	// ErrExtractionConflict marks a file left in place because the conflict
	// resolver declined to overwrite it. It is logged, never returned.
	ErrExtractionConflict = errors.New("store: file conflict")
	// ErrSandboxViolation indicates content that would be written outside its
	// package directory.
	ErrSandboxViolation = errors.New("store: path escapes package directory")
	ErrInvalidRoot      = errors.New("store: invalid store root")
)
