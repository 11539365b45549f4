// Package apperror classifies failures of ledger operations so callers can
// act on them: reject input, report a missing record, or report a conflict
// with current state.
package apperror

import (
	"errors"
	"fmt"
)

// Kind is the class of an application error.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Sentinels for errors.Is checks against any *Error of the same kind.
var (
	ErrValidation = &Error{Kind: KindValidation, Message: "validation failed"}
	ErrNotFound   = &Error{Kind: KindNotFound, Message: "not found"}
	ErrConflict   = &Error{Kind: KindConflict, Message: "conflict"}
	ErrInternal   = &Error{Kind: KindInternal, Message: "internal error"}
)

// Error is an application error. RollID is set when the failure concerns an
// existing roll the caller may want to recover, e.g. a duplicate EAN.
type Error struct {
	Kind    Kind
	Message string
	RollID  string
	Fields  map[string]string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// ValidationFields reports per-field validation failures.
func ValidationFields(fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Message: "invalid request", Fields: fields}
}

func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// DuplicateEAN reports that ean is already used by rollID.
func DuplicateEAN(rollID string) *Error {
	return &Error{Kind: KindConflict, Message: "Roll with this EAN already exists", RollID: rollID}
}

// Internal wraps an unexpected store failure.
func Internal(msg string, err error) *Error {
	return &Error{Kind: KindInternal, Message: msg, Err: err}
}

// KindOf returns the kind of err, or KindInternal for errors that are not *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// As extracts the *Error from err, wrapping unknown errors as Internal.
func As(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal("internal error", err)
}
