// Package kernelerrors provides the structured error taxonomy the kernel
// uses when raising ERROR_RAISED events. Errors preserve message and causal
// context while still implementing the standard error interface, and
// support errors.Is/As through Unwrap, mirroring the teacher's toolerrors
// package shape.
package kernelerrors

import (
	"errors"
	"fmt"
)

// Kind classifies a kernel error into one of the closed taxonomy values
// named in the error handling design.
type Kind string

const (
	// KindCircularDependency marks a rejected addDependency call that would
	// have introduced a cycle in the task DAG.
	KindCircularDependency Kind = "circular_dependency"
	// KindContextOverflow marks a capacity admission that failed even after
	// eviction was attempted.
	KindContextOverflow Kind = "context_overflow"
	// KindExecutionError marks a failure raised by the external TaskExecutor.
	KindExecutionError Kind = "execution_error"
	// KindCrash is reserved for host-level panics; it must never originate
	// from inside the kernel itself.
	KindCrash Kind = "crash"
	// KindSubscriberError marks an event subscriber that panicked while
	// handling a published event.
	KindSubscriberError Kind = "subscriber_error"
)

// Error is a structured kernel failure carrying a classification Kind, a
// human-readable message, and an optional wrapped cause.
type Error struct {
	// Kind classifies the failure for ERROR_RAISED payloads and programmatic
	// handling via errors.Is/As.
	Kind Kind
	// Message is the human-readable summary of the failure.
	Message string
	// Cause links to the underlying error, enabling error chains.
	Cause error
}

// New constructs an Error of the given kind with the provided message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf constructs an Error of the given kind, formatting message like fmt.Sprintf.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs an Error of the given kind that wraps an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	if message == "" && cause != nil {
		message = cause.Error()
	}
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause to support errors.Is/As.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is reports whether target is an *Error with the same Kind, so callers can
// write errors.Is(err, kernelerrors.New(kernelerrors.KindCrash, "")) style
// checks, or more idiomatically use errors.As and compare Kind directly.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Payload renders the error as a plain map suitable for an ERROR_RAISED
// event payload.
func (e *Error) Payload() map[string]any {
	p := map[string]any{
		"kind":    string(e.Kind),
		"message": e.Message,
	}
	if e.Cause != nil {
		p["cause"] = e.Cause.Error()
	}
	return p
}
