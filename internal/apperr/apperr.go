// Package apperr defines the closed set of error kinds used across the
// store and engine layers (spec §7), so handlers can map kind to transport
// status without string matching.
package apperr

import "fmt"

// Kind is a closed enumeration of the error categories the core produces.
type Kind string

const (
	// InvalidArgument covers missing/blank fields, malformed CIDR,
	// malformed IDs, unknown status strings. Never retried.
	InvalidArgument Kind = "invalid_argument"
	// NotFound covers any job/device/profile not visible to the caller.
	// Chosen over a Forbidden kind everywhere, to avoid existence
	// disclosure.
	NotFound Kind = "not_found"
	// SecretCorrupt covers AEAD authentication failure during decrypt.
	SecretCorrupt Kind = "secret_corrupt"
	// TransportFailure covers no discovery worker responding, or a
	// malformed reply.
	TransportFailure Kind = "transport_failure"
	// Transient covers per-host timeouts, refused connects, and SSH auth
	// failures for a single host. Never surfaced past the stage that
	// produced it.
	Transient Kind = "transient"
	// Internal covers unexpected DB or orchestration errors.
	Internal Kind = "internal"
)

// Error wraps a Kind with a message and an optional cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an *Error of the given kind around a cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Is reports whether err (or something it wraps) is an *Error of kind k.
func Is(err error, k Kind) bool {
	var e *Error
	if as(err, &e) {
		return e.Kind == k
	}
	return false
}

func as(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
