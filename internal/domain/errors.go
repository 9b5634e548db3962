package domain

import (
	"context"
	"errors"
	"fmt"
)

// Kind is the stable error classification surfaced to callers of both
// front ends.
type Kind string

const (
	// KindAuth means the credential is invalid or was revoked. Requires an
	// operator; never retried automatically.
	KindAuth Kind = "auth_error"

	// KindConnection means the session could not be reached. Retryable by the caller.
	KindConnection Kind = "connection_error"

	// KindValidation means the input was malformed. Fix and resubmit.
	KindValidation Kind = "validation_error"

	// KindNotFound means the referenced entity does not exist or is not
	// accessible to the account.
	KindNotFound Kind = "not_found"

	// KindInvalidPageToken means the page token is stale, unknown or was
	// issued for a different listing.
	KindInvalidPageToken Kind = "invalid_page_token"

	// KindUpstream means the messaging service rejected the call for a
	// reason outside the kinds above.
	KindUpstream Kind = "upstream_error"

	// KindInternal is any failure that carries no classification.
	KindInternal Kind = "internal_error"
)

// Retryable reports whether repeating the same call may succeed
func (k Kind) Retryable() bool {
	return k == KindConnection
}

// Error is a classified error. Message is safe to show to callers; Err keeps
// the underlying cause for logs and errors.Is.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// AuthError creates an auth_error
func AuthError(err error, format string, args ...any) *Error {
	return newError(KindAuth, err, format, args...)
}

// ConnectionError creates a connection_error
func ConnectionError(err error, format string, args ...any) *Error {
	return newError(KindConnection, err, format, args...)
}

// ValidationError creates a validation_error
func ValidationError(format string, args ...any) *Error {
	return newError(KindValidation, nil, format, args...)
}

// NotFound creates a not_found error
func NotFound(format string, args ...any) *Error {
	return newError(KindNotFound, nil, format, args...)
}

// InvalidPageToken creates an invalid_page_token error
func InvalidPageToken(format string, args ...any) *Error {
	return newError(KindInvalidPageToken, nil, format, args...)
}

// UpstreamError creates an upstream_error
func UpstreamError(err error, format string, args ...any) *Error {
	return newError(KindUpstream, err, format, args...)
}

// KindOf returns the classification of err. Context cancellation and
// deadlines count as connection errors; unclassified errors are internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindConnection
	}
	return KindInternal
}

// IsKind reports whether err is classified as kind
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
