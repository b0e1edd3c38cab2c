// Package errs provides the unified error type used across bulkhelpers.
//
// Catalog, engine and driver setup code wrap their failures into *errs.Error
// before returning them. Callers use the Is* predicates to branch on the
// failure without importing driver-specific packages.
//
// Errors produced by the bulk-transfer primitive itself (constraint
// violations, broken connections during a transfer) are NOT wrapped: they
// reach the caller exactly as the driver returned them.
//
// Usage:
//
//	out, err := engine.BulkUpdate(ctx, orders, "orders", tx)
//	if errs.IsIdentityMismatch(err) {
//	    // an entity had no identity value, nothing was sent
//	}
package errs

import (
	"errors"
	"fmt"
)

// ErrKind categorises an error without exposing subsystem-specific codes.
type ErrKind int

const (
	ErrKindUnknown          ErrKind = iota
	ErrKindNotFound                 // no rows matched
	ErrKindConnectionFailed         // cannot reach the backend
	ErrKindTimeout                  // context deadline / cancellation
	ErrKindQueryFailed              // SQL execution error
	ErrKindInvalidInput             // bad arguments from the caller
	ErrKindPermissionDenied         // access denied / auth failure
	ErrKindSchemaNotFound           // table name does not resolve in the catalog
	ErrKindColumnMapping            // entity exposes no field matching a column
	ErrKindIdentityMismatch         // identity value missing where one is required
	ErrKindLoadFailure              // schema metadata query failed
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindNotFound:
		return "not_found"
	case ErrKindConnectionFailed:
		return "connection_failed"
	case ErrKindTimeout:
		return "timeout"
	case ErrKindQueryFailed:
		return "query_failed"
	case ErrKindInvalidInput:
		return "invalid_input"
	case ErrKindPermissionDenied:
		return "permission_denied"
	case ErrKindSchemaNotFound:
		return "schema_not_found"
	case ErrKindColumnMapping:
		return "column_mapping"
	case ErrKindIdentityMismatch:
		return "identity_mismatch"
	case ErrKindLoadFailure:
		return "load_failure"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by bulkhelpers subsystems.
type Error struct {
	Kind    ErrKind
	Message string
	Cause   error // original driver-level error, preserved for logging
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is / errors.As to traverse the cause chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// --- Constructors ---

// New creates an *Error with the given kind and message and no cause.
func New(kind ErrKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Newf is New with a format string.
func Newf(kind ErrKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an *Error with the given kind, message, and an underlying cause.
func Wrap(kind ErrKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// --- Predicates ---

// IsNotFound reports whether err represents a "not found" result.
func IsNotFound(err error) bool {
	return kindOf(err) == ErrKindNotFound
}

// IsTimeout reports whether err was caused by a deadline or context cancellation.
func IsTimeout(err error) bool {
	return kindOf(err) == ErrKindTimeout
}

// IsConnectionFailed reports whether err is a connectivity or auth failure.
func IsConnectionFailed(err error) bool {
	return kindOf(err) == ErrKindConnectionFailed
}

// IsQueryFailed reports whether err is a backend operation failure.
func IsQueryFailed(err error) bool {
	return kindOf(err) == ErrKindQueryFailed
}

// IsInvalidInput reports whether err was caused by bad input from the caller.
func IsInvalidInput(err error) bool {
	return kindOf(err) == ErrKindInvalidInput
}

// IsPermissionDenied reports whether err is an access control failure.
func IsPermissionDenied(err error) bool {
	return kindOf(err) == ErrKindPermissionDenied
}

// IsSchemaNotFound reports whether a table name could not be resolved.
func IsSchemaNotFound(err error) bool {
	return kindOf(err) == ErrKindSchemaNotFound
}

// IsColumnMapping reports whether an entity could not be mapped to any column.
func IsColumnMapping(err error) bool {
	return kindOf(err) == ErrKindColumnMapping
}

// IsIdentityMismatch reports whether an identity value was missing.
func IsIdentityMismatch(err error) bool {
	return kindOf(err) == ErrKindIdentityMismatch
}

// IsLoadFailure reports whether the schema catalog failed to load.
func IsLoadFailure(err error) bool {
	return kindOf(err) == ErrKindLoadFailure
}

// KindOf extracts the ErrKind from any error in the chain.
func KindOf(err error) ErrKind {
	return kindOf(err)
}

func kindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrKindUnknown
}
