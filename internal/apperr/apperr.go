// Package apperr defines the error kinds shared by the moderation engine.
//
// Every domain failure is an *Error carrying one of the Kind sentinels below,
// so callers can branch with errors.Is without knowing which package raised it.
package apperr

import (
	"errors"
	"fmt"
)

// Kind sentinels. An *Error matches exactly one of them with errors.Is.
var (
	ErrValidation      = errors.New("validation failed")
	ErrNotFound        = errors.New("not found")
	ErrStateConflict   = errors.New("state conflict")
	ErrPermission      = errors.New("permission denied")
	ErrExternalService = errors.New("external service failure")
)

// Error is a domain error with a kind, the operation that raised it and an
// optional underlying cause.
type Error struct {
	Kind    error  // One of the Err* sentinels
	Op      string // Operation name, e.g. "review_report"
	Message string // Human readable message
	Err     error  // Wrapped cause, may be nil
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.Error()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is this error's kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

// Validation reports missing or malformed input.
func Validation(op, format string, args ...any) *Error {
	return &Error{Kind: ErrValidation, Op: op, Message: fmt.Sprintf(format, args...)}
}

// NotFound reports an absent report, item or user.
func NotFound(op, format string, args ...any) *Error {
	return &Error{Kind: ErrNotFound, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Conflict reports an operation against a report in the wrong status.
func Conflict(op, format string, args ...any) *Error {
	return &Error{Kind: ErrStateConflict, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Permission reports a denied action.
func Permission(op, format string, args ...any) *Error {
	return &Error{Kind: ErrPermission, Op: op, Message: fmt.Sprintf(format, args...)}
}

// External wraps a failure of an external collaborator.
func External(op string, err error) *Error {
	return &Error{Kind: ErrExternalService, Op: op, Message: "external service failure", Err: err}
}

// Wrap attaches a cause to an error of the given kind.
func Wrap(kind error, op, message string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: cause}
}

// KindOf returns the kind sentinel of err, or nil when err is not a domain error.
func KindOf(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return nil
}
