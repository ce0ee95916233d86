// Package errors defines the error-kind taxonomy shared across the
// scan, materialize, and emit stages, as typed sentinels that compose
// with the standard library's errors.Is/As.
package errors

import (
	"errors"
	"fmt"
)

// Kind is one of the fixed error classes the scheduler uses to decide
// whether a failure is localized (log and continue), retryable, or
// fatal.
type Kind string

const (
	Config                 Kind = "config"
	IO                     Kind = "io"
	MalformedArchive       Kind = "malformed_archive"
	MissingControl         Kind = "missing_control"
	ControlParse           Kind = "control_parse"
	UnsupportedCompression Kind = "unsupported_compression"
	DBTransient            Kind = "db_transient"
	DBFatal                Kind = "db_fatal"
	Signing                Kind = "signing"
	DuplicateKey           Kind = "duplicate_key"
	Cancelled              Kind = "cancelled"
)

// RepoError wraps an underlying error with a Kind so callers can
// branch on error class without string matching.
type RepoError struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *RepoError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *RepoError) Unwrap() error { return e.Err }

// New constructs a RepoError of the given kind.
func New(kind Kind, msg string) *RepoError {
	return &RepoError{Kind: kind, Msg: msg}
}

// Wrap constructs a RepoError of the given kind wrapping err.
func Wrap(kind Kind, msg string, err error) *RepoError {
	return &RepoError{Kind: kind, Msg: msg, Err: err}
}

// Is reports whether err's kind matches kind, following the Unwrap
// chain.
func Is(err error, kind Kind) bool {
	var re *RepoError
	for errors.As(err, &re) {
		if re.Kind == kind {
			return true
		}
		err = re.Err
		if err == nil {
			return false
		}
	}
	return false
}

// IsFatal reports whether a scheduler stage should abort the whole
// run rather than skip the offending item. Only DBFatal and Signing
// (and Config, at startup) are fatal.
func IsFatal(err error) bool {
	return Is(err, DBFatal) || Is(err, Signing) || Is(err, Config)
}

// IsLocalized reports whether a scheduler stage should log, record an
// Issue, and continue to the next file.
func IsLocalized(err error) bool {
	return Is(err, MalformedArchive) ||
		Is(err, MissingControl) ||
		Is(err, ControlParse) ||
		Is(err, UnsupportedCompression) ||
		Is(err, IO) ||
		Is(err, DuplicateKey)
}
