package repositories

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a StoreError for service-level mapping.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindNotFound
	KindConflict
	KindUnavailable
	KindInvalidInput
)

// StoreError is the backend-neutral RepositoryError used by adapters that do not carry
// their own error type (the in-memory store in particular).
type StoreError struct {
	Op   string
	Kind ErrorKind
	Err  error
}

var _ RepositoryError = (*StoreError)(nil)

// NewStoreError builds a StoreError for the operation.
func NewStoreError(op string, kind ErrorKind, err error) *StoreError {
	if err == nil {
		err = errors.New("repository error")
	}
	return &StoreError{Op: op, Kind: kind, Err: err}
}

// NotFound is shorthand for a KindNotFound StoreError.
func NotFound(op, format string, args ...any) *StoreError {
	return NewStoreError(op, KindNotFound, fmt.Errorf(format, args...))
}

// Conflict is shorthand for a KindConflict StoreError.
func Conflict(op, format string, args ...any) *StoreError {
	return NewStoreError(op, KindConflict, fmt.Errorf(format, args...))
}

func (e *StoreError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *StoreError) IsNotFound() bool    { return e != nil && e.Kind == KindNotFound }
func (e *StoreError) IsConflict() bool    { return e != nil && e.Kind == KindConflict }
func (e *StoreError) IsUnavailable() bool { return e != nil && e.Kind == KindUnavailable }

// IsNotFound reports whether err carries a not-found repository classification.
func IsNotFound(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

// IsConflict reports whether err carries a conflict repository classification.
func IsConflict(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}

// InvalidInput is shorthand for a KindInvalidInput StoreError, used for malformed page tokens.
func InvalidInput(op, format string, args ...any) *StoreError {
	return NewStoreError(op, KindInvalidInput, fmt.Errorf(format, args...))
}

// IsInvalidInput reports whether err is a StoreError rejecting caller input.
func IsInvalidInput(err error) bool {
	var storeErr *StoreError
	return errors.As(err, &storeErr) && storeErr.Kind == KindInvalidInput
}

// CounterErrorCode enumerates failure reasons for counter operations.
type CounterErrorCode string

const (
	// CounterErrorInvalidInput indicates the caller supplied an empty counter id or a non-positive step.
	CounterErrorInvalidInput CounterErrorCode = "counter_invalid_input"
	// CounterErrorOverflow indicates the increment would overflow int64.
	CounterErrorOverflow CounterErrorCode = "counter_overflow"
)

// CounterError wraps counter-specific failures with machine readable codes.
type CounterError struct {
	Code    CounterErrorCode
	Message string
	Err     error
}

// NewCounterError constructs a typed counter error.
func NewCounterError(code CounterErrorCode, message string, err error) *CounterError {
	if message == "" {
		message = string(code)
	}
	return &CounterError{Code: code, Message: message, Err: err}
}

func (e *CounterError) Error() string {
	if e == nil {
		return ""
	}
	return "counter: " + e.Message
}

func (e *CounterError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
