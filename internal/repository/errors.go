// Package repository defines the MySQL data access layer and the error
// values shared by every store implementation.  Handlers never see these
// errors directly; the service layer translates them into domain kinds.
package repository

import "errors"

// ErrNotFound is returned when a row does not exist or is not owned by the
// caller.  The two cases are deliberately indistinguishable.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when an operation is invalid in the current
// state of a row, e.g. appending to an archived conversation or appending
// a reply after the history moved on.
var ErrConflict = errors.New("conflict")

var (
	ErrEmailExists    = errors.New("email already exists")
	ErrUsernameExists = errors.New("username already exists")
)
