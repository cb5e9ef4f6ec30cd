// Package errdefs defines the error kinds surfaced by anvil operations.
//
// Every failure returned to a caller carries exactly one kind. Kinds are
// juju/errors ConstError values, so callers match them with errors.Is no
// matter how many times the error was wrapped on the way up:
//
//	if errors.Is(err, errdefs.Precondition) {
//	    // wrong VM state for the requested transition
//	}
package errdefs

import (
	stderrors "errors"
	"fmt"

	"github.com/juju/errors"
)

const (
	// Connection is returned when a hypervisor endpoint cannot be reached.
	Connection = errors.ConstError("connection error")

	// NotFound is returned for missing VMs, volumes, pools and endpoints.
	NotFound = errors.NotFound

	// Precondition is returned when a VM is in the wrong state for an operation.
	Precondition = errors.ConstError("precondition failed")

	// Validation is returned for malformed numeric or attribute input.
	Validation = errors.NotValid

	// AlreadyExists is returned when a volume name collides with an existing one.
	AlreadyExists = errors.AlreadyExists

	// Resize is returned when the external resize tool fails.
	Resize = errors.ConstError("resize failed")

	// MediaBuild is returned when any step of unattended media synthesis fails.
	MediaBuild = errors.ConstError("media build failed")

	// Configuration is returned when a required option is missing or malformed.
	Configuration = errors.ConstError("configuration error")

	// NotSupported is returned for unknown hypervisor types and transports.
	NotSupported = errors.NotSupported

	// Template is returned when a descriptor template cannot be rendered.
	Template = errors.ConstError("template error")
)

// Error is a typed, human-readable failure.
type Error struct {
	Kind    errors.ConstError
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is the kind of this error.
func (e *Error) Is(target error) bool {
	kind, ok := target.(errors.ConstError)
	return ok && kind == e.Kind
}

// New returns an error of the given kind.
func New(kind errors.ConstError, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap returns an error of the given kind wrapping cause.
func Wrap(kind errors.ConstError, cause error, format string, args ...any) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Connectionf returns a Connection error.
func Connectionf(format string, args ...any) error {
	return New(Connection, format, args...)
}

// NotFoundf returns a NotFound error.
func NotFoundf(format string, args ...any) error {
	return New(NotFound, format, args...)
}

// Preconditionf returns a Precondition error.
func Preconditionf(format string, args ...any) error {
	return New(Precondition, format, args...)
}

// Validationf returns a Validation error.
func Validationf(format string, args ...any) error {
	return New(Validation, format, args...)
}

// AlreadyExistsf returns an AlreadyExists error.
func AlreadyExistsf(format string, args ...any) error {
	return New(AlreadyExists, format, args...)
}

// Configurationf returns a Configuration error.
func Configurationf(format string, args ...any) error {
	return New(Configuration, format, args...)
}

// NotSupportedf returns a NotSupported error.
func NotSupportedf(format string, args ...any) error {
	return New(NotSupported, format, args...)
}

// KindOf returns the kind of err, or the empty string when err is untyped.
func KindOf(err error) errors.ConstError {
	for _, kind := range []errors.ConstError{
		Connection, NotFound, Precondition, Validation, AlreadyExists,
		Resize, MediaBuild, Configuration, NotSupported, Template,
	} {
		if stderrors.Is(err, kind) {
			return kind
		}
	}
	return ""
}
