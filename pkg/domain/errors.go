package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the domain layer wraps exactly one
// of them, so callers can branch with errors.Is.
var (
	ErrValidation = errors.New("validation error")
	ErrState      = errors.New("state error")
	ErrConflict   = errors.New("conflict error")
)

type Error struct {
	kind error
	msg  string
}

func (e *Error) Error() string {
	return e.msg
}

func (e *Error) Unwrap() error {
	return e.kind
}

func (e *Error) Kind() error {
	return e.kind
}

func NewValidationError(format string, args ...any) error {
	return &Error{kind: ErrValidation, msg: fmt.Sprintf(format, args...)}
}

func NewStateError(format string, args ...any) error {
	return &Error{kind: ErrState, msg: fmt.Sprintf(format, args...)}
}

func NewConflictError(format string, args ...any) error {
	return &Error{kind: ErrConflict, msg: fmt.Sprintf(format, args...)}
}

// IsDomainError reports whether err is a rule violation raised by the
// domain layer rather than an infrastructure failure.
func IsDomainError(err error) bool {
	var domainErr *Error
	return errors.As(err, &domainErr)
}
