// Package celixerr defines the error-kind stack shared by the core
// components. The framework, registry, dispatcher and resolver return an
// *Error built here for failures a caller is expected to handle; the parsers
// in pkg/version, pkg/filter and internal/manifest return plain fmt.Errorf
// errors, and errors from an Installer are passed through as they come.
// Programmer errors (nil pointers, out-of-range internal indices)
// still panic.
package celixerr

import (
	"errors"
	"fmt"
)

// Kind classifies a framework error. Values match the error kinds in the
// specification's error handling design.
type Kind int

const (
	// IllegalArgument: caller passed null/empty/invalid filter or interface set.
	IllegalArgument Kind = iota
	// IllegalState: operation not valid in current bundle/registration state.
	IllegalState
	// ResolveFailed: one or more requirements unsatisfied; carries the list.
	ResolveFailed
	// FrameworkShutdown: operation attempted after framework shutdown initiated.
	FrameworkShutdown
	// OutOfMemory: allocation failure.
	OutOfMemory
	// IOError: cache/archive/file-format failure.
	IOError
	// ActivatorFailed: bundle activator returned an error or crashed.
	ActivatorFailed
	// InvalidReference: a service reference was used after its registration
	// entered the unregistering state.
	InvalidReference
)

func (k Kind) String() string {
	switch k {
	case IllegalArgument:
		return "ILLEGAL_ARGUMENT"
	case IllegalState:
		return "ILLEGAL_STATE"
	case ResolveFailed:
		return "RESOLVE_FAILED"
	case FrameworkShutdown:
		return "FRAMEWORK_SHUTDOWN"
	case OutOfMemory:
		return "OUT_OF_MEMORY"
	case IOError:
		return "IO_ERROR"
	case ActivatorFailed:
		return "ACTIVATOR_FAILED"
	case InvalidReference:
		return "INVALID_REFERENCE"
	default:
		return "UNKNOWN"
	}
}

// Error is the concrete error type returned by core operations.
type Error struct {
	Kind    Kind
	Message string
	Cause   error

	// Unresolved is populated only for ResolveFailed; it lists the
	// requirement names that could not be satisfied, in declaration order.
	Unresolved []string

	// BundleID and Hook are populated only for ActivatorFailed.
	BundleID int64
	Hook     string
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates an *Error with no wrapped cause.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an *Error that wraps cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// NewResolveFailed builds a ResolveFailed error carrying the unresolved
// requirement names.
func NewResolveFailed(unresolved []string) *Error {
	return &Error{
		Kind:       ResolveFailed,
		Message:    fmt.Sprintf("%d requirement(s) could not be resolved", len(unresolved)),
		Unresolved: unresolved,
	}
}

// NewActivatorFailed builds an ActivatorFailed error carrying the bundle id
// and the activator hook that failed.
func NewActivatorFailed(bundleID int64, hook string, cause error) *Error {
	return &Error{
		Kind:     ActivatorFailed,
		Message:  fmt.Sprintf("bundle %d: activator hook %q failed", bundleID, hook),
		Cause:    cause,
		BundleID: bundleID,
		Hook:     hook,
	}
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf returns the Kind of err if it is a *Error, and ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
