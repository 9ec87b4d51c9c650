// Package errs provides the error type shared by every layer of the ingest service.
//
// Engines, the file reader, and sinks wrap their native errors into *errs.Error
// so the web layer can branch on a Kind instead of matching message strings:
//
//	// In an engine:
//	return errs.Wrap(errs.KindConnection, "authentication failed", chErr)
//
//	// At the request boundary:
//	if errs.Is(err, errs.KindColumn) { ... }
package errs

import (
	"context"
	"errors"
	"fmt"
)

// Kind categorises an error without exposing driver-specific codes.
type Kind int

const (
	KindUnknown    Kind = iota
	KindConnection      // network unreachable, credentials rejected, database missing
	KindSchema          // metadata lookup failed or table absent
	KindQuery           // malformed SQL, missing table or column at query time
	KindColumn          // requested column absent from the source
	KindValidation      // bad input from the caller (file, config, selection)
	KindIO              // stream read/write failure
	KindTimeout         // deadline exceeded or request cancelled
	KindBusy            // no transfer slot available
	KindNotFound        // exported file does not exist
)

func (k Kind) String() string {
	switch k {
	case KindConnection:
		return "connection_error"
	case KindSchema:
		return "schema_error"
	case KindQuery:
		return "query_error"
	case KindColumn:
		return "column_error"
	case KindValidation:
		return "validation_error"
	case KindIO:
		return "io_error"
	case KindTimeout:
		return "timeout"
	case KindBusy:
		return "busy"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Error is the single error type returned across package boundaries.
type Error struct {
	Kind    Kind
	Message string
	Cause   error // original error, kept for logging
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap allows errors.Is / errors.As to traverse the cause chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates an *Error with no cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Newf creates an *Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an *Error around cause. Context cancellation and deadline
// errors are always reported as KindTimeout regardless of kind.
func Wrap(kind Kind, msg string, cause error) *Error {
	if errors.Is(cause, context.DeadlineExceeded) || errors.Is(cause, context.Canceled) {
		kind = KindTimeout
	}
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// KindOf extracts the Kind of the outermost *Error in the chain.
// Bare context errors report KindTimeout.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTimeout
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Message returns the outermost caller-facing message of err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
