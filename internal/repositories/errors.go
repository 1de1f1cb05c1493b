package repositories

import (
	"errors"
	"fmt"
)

// ErrorKind categorises persistence failures.
type ErrorKind int

const (
	ErrorKindUnknown ErrorKind = iota
	ErrorKindNotFound
	ErrorKindConflict
	ErrorKindUnavailable
)

// Error is the RepositoryError used by the memory and SQL backends.
type Error struct {
	Op   string
	Kind ErrorKind
	Err  error
}

var _ RepositoryError = (*Error)(nil)

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsNotFound reports whether the error represents a missing record.
func (e *Error) IsNotFound() bool { return e != nil && e.Kind == ErrorKindNotFound }

// IsConflict reports whether the error represents a uniqueness or concurrency conflict.
func (e *Error) IsConflict() bool { return e != nil && e.Kind == ErrorKindConflict }

// IsUnavailable reports whether the error represents a transient backend outage.
func (e *Error) IsUnavailable() bool { return e != nil && e.Kind == ErrorKindUnavailable }

// NewNotFound builds a not-found repository error.
func NewNotFound(op string, format string, args ...any) *Error {
	return &Error{Op: op, Kind: ErrorKindNotFound, Err: fmt.Errorf(format, args...)}
}

// NewConflict builds a conflict repository error.
func NewConflict(op string, err error) *Error {
	return &Error{Op: op, Kind: ErrorKindConflict, Err: err}
}

// NewUnavailable builds an unavailable repository error.
func NewUnavailable(op string, err error) *Error {
	return &Error{Op: op, Kind: ErrorKindUnavailable, Err: err}
}

// IsNotFound reports whether err carries a not-found repository error.
func IsNotFound(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

// IsConflict reports whether err carries a conflict repository error.
func IsConflict(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}
