// Package errs provides the typed errors shared by the revision tracker.
package errs

import (
	"errors"
	"fmt"
)

// Kind represents the category of an error.
type Kind int

const (
	// Connection indicates the SCM service or repository could not be reached.
	Connection Kind = iota + 1
	// Query indicates a malformed or rejected repository query.
	Query
	// CacheStore indicates a persistence read or write failure.
	CacheStore
	// Parse indicates a single malformed record. Callers absorb it.
	Parse
	// Validation indicates an input that breaks a precondition.
	Validation
	// Config indicates an invalid configuration.
	Config
)

// String returns a string representation of the kind.
func (k Kind) String() string {
	switch k {
	case Connection:
		return "connection"
	case Query:
		return "query"
	case CacheStore:
		return "cache store"
	case Parse:
		return "parse"
	case Validation:
		return "validation"
	case Config:
		return "config"
	default:
		return "unknown"
	}
}

// Error is the error type returned across package boundaries.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// Error returns the error message.
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s error", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// E wraps err with a kind and the operation that failed.
// A nil err yields nil so call sites can wrap unconditionally.
func E(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a new error of the given kind from a format string.
func Errorf(kind Kind, op string, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Is reports whether any error in err's chain has the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf returns the kind of the outermost *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
