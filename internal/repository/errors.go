package repository

import (
	"errors"
	"fmt"
)

var (
	// ErrPackageNotFound indicates that the id, or an explicitly requested
	// version of it, is absent from the source.
	ErrPackageNotFound = errors.New("package not found")
)

// NotFoundError carries the identity that could not be resolved. Version is
// empty when the id itself is unknown.
type NotFoundError struct {
	ID      string
	Version string
	Reason  string
}

func (e *NotFoundError) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("%s: %s", ErrPackageNotFound.Error(), e.ID)
	if e.Version != "" {
		msg += " " + e.Version
	}
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	return msg
}

func (e *NotFoundError) Unwrap() error { return ErrPackageNotFound }
