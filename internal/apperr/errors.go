// Package apperr defines sentinel errors shared across Horizon packages.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	// ErrPrecondition marks an operation refused because the board
	// configuration does not allow it (virtualization off, no story directory).
	ErrPrecondition = errors.New("precondition failed")
)
