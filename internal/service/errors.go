// Package service holds the conversation manager and the settings service.
// Store errors are translated here into the domain kinds below; handlers
// map the kinds to status codes with errors.Is.
package service

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/iliyamo/ollama-chat-backend/internal/repository"
)

var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrForbidden  = errors.New("forbidden")
)

// kindError carries a caller-facing message and unwraps to its kind.
type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

func newError(kind error, format string, args ...any) error {
	return &kindError{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// storeErr maps repository sentinels onto domain kinds; anything else is
// an internal failure and passes through.
func storeErr(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return newError(ErrNotFound, "%s not found", what)
	case errors.Is(err, repository.ErrConflict):
		return newError(ErrConflict, "%s is archived", what)
	}
	return err
}
