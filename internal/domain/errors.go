package domain

import (
	"errors"
	"fmt"
)

// Error kinds shared by services and handlers. Match them with errors.Is;
// anything that matches none of them is an internal error.
var (
	ErrValidation = errors.New("validation failed")
	ErrAuth       = errors.New("authentication failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrForbidden  = errors.New("forbidden")
	// ErrUpstream marks a failure of the commerce platform rather than ours
	ErrUpstream = errors.New("upstream failure")
)

// Error carries a client-facing message together with its kind
type Error struct {
	kind error
	msg  string
}

// Errorf builds an Error of the given kind
func Errorf(kind error, format string, args ...any) error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string { return e.msg }

func (e *Error) Unwrap() error { return e.kind }
