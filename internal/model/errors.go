// Package model defines the shared request/result data types for the
// file-operations engine: the tagged-union Operation/Change variants, the
// execution options, the aggregate result envelope, and the error taxonomy
// every component reports through.
package model

import (
	"errors"
	"fmt"
)

// ErrorKind names one entry of the error taxonomy. Kinds are stable strings
// so they survive JSON round-trips through the result envelope.
type ErrorKind string

const (
	KindSchemaInvalid           ErrorKind = "SchemaInvalid"
	KindDependencyMissing       ErrorKind = "DependencyMissing"
	KindDependencyCycle         ErrorKind = "DependencyCycle"
	KindPathEscape              ErrorKind = "PathEscape"
	KindNotFound                ErrorKind = "NotFound"
	KindAlreadyExists           ErrorKind = "AlreadyExists"
	KindPermissionDenied        ErrorKind = "PermissionDenied"
	KindIsDirectory             ErrorKind = "IsDirectory"
	KindSizeExceeded            ErrorKind = "SizeExceeded"
	KindBinary                  ErrorKind = "Binary"
	KindRegexInvalid            ErrorKind = "RegexInvalid"
	KindOutOfRange              ErrorKind = "OutOfRange"
	KindParseError              ErrorKind = "ParseError"
	KindExternalCommandFailed   ErrorKind = "ExternalCommandFailed"
	KindSnapshotBudgetExceeded  ErrorKind = "SnapshotBudgetExceeded"
	KindTransactionInvalidState ErrorKind = "TransactionInvalidState"
	KindTimeout                 ErrorKind = "Timeout"
	KindCancelled               ErrorKind = "Cancelled"
	KindUnsupported             ErrorKind = "Unsupported"
	KindInternal                ErrorKind = "Internal"
)

// Error is the structured error every component returns so the facade can
// render the taxonomy kind in the result envelope instead of a bare string.
type Error struct {
	Kind    ErrorKind
	Message string
	Path    string
	Wrapped error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Path)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Wrapped }

// NewError builds a taxonomy error.
func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapError builds a taxonomy error that wraps an underlying cause.
func WrapError(kind ErrorKind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Wrapped: cause}
}

// WithPath returns a copy of the error annotated with the offending path.
func (e *Error) WithPath(path string) *Error {
	cp := *e
	cp.Path = path
	return &cp
}

// KindOf extracts the taxonomy kind from err, defaulting to KindInternal
// when err is not (or does not wrap) a *Error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err is (or wraps) a *Error of the given kind.
func Is(err error, kind ErrorKind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// AsError coerces any error into the taxonomy, wrapping it as KindInternal
// when it is not already (or does not wrap) a *Error. Returns nil for a
// nil err so callers can assign OperationResult.Error unconditionally.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: KindInternal, Message: err.Error(), Wrapped: err}
}
