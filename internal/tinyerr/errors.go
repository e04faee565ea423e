// Package tinyerr defines the closed error taxonomy shared across the
// storage, index, and query subsystems.
package tinyerr

import "errors"

// Kind classifies a failure into the taxonomy every user-visible
// operation is required to surface as.
type Kind string

const (
	NotFound           Kind = "not_found"
	DuplicateKey       Kind = "duplicate_key"
	CorruptDatabase    Kind = "corrupt_database"
	CorruptJournal     Kind = "corrupt_journal"
	IoFailure          Kind = "io_failure"
	BadArgument        Kind = "bad_argument"
	Unsupported        Kind = "unsupported"
	NoElements         Kind = "no_elements"
	MoreThanOneElement Kind = "more_than_one_element"
	TransactionAborted Kind = "transaction_aborted"
	Conflict           Kind = "conflict"
)

// Error is a taxonomy-tagged error. It wraps an optional cause so
// %w-style unwrapping keeps working through errors.Is/errors.As.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is lets errors.Is(err, tinyerr.New(Kind, "")) match any error of the
// same Kind regardless of message/cause.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind
	}
	return false
}

// New creates an Error of the given kind with no wrapped cause.
func New(kind Kind, message string) error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an Error of the given kind wrapping cause.
func Wrap(kind Kind, message string, cause error) error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Of returns the Kind of err if it (or something it wraps) is a
// *Error, and false otherwise.
func Of(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Is reports whether err carries the given Kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	k, ok := Of(err)
	return ok && k == kind
}
