package auth

import (
	"errors"
	"fmt"
)

// Kind classifies an auth failure for the transport layer. Credential and
// token failures map to fixed generic messages so callers cannot tell which
// internal branch failed.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalidCredentials
	KindUnauthorized
	KindConflict
	KindNotFound
	KindInvalidToken
	KindValidation
)

// Error is the typed failure returned by every service flow.
type Error struct {
	Kind    Kind
	Message string // user-facing message; generic for credential/token kinds
	Err     error  // underlying cause, never shown to users
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

// Fixed generic failures. The messages are deliberately identical across
// internal causes (missing user vs wrong password, absent vs expired token).
var (
	ErrInvalidCredentials = &Error{Kind: KindInvalidCredentials, Message: "email or password is wrong"}
	ErrUnauthorized       = &Error{Kind: KindUnauthorized, Message: "not authorized"}
	ErrInvalidActionToken = &Error{Kind: KindInvalidToken, Message: "invalid or expired token"}
	ErrEmailNotVerified   = &Error{Kind: KindUnauthorized, Message: "confirm your email to sign in"}
)

// Conflictf builds a Conflict error; conflict messages may name the field.
func Conflictf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// Validationf builds a Validation error; validation messages may name the field.
func Validationf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// NotFoundf builds a NotFound error for lookups where identity is already
// known to the caller.
func NotFoundf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Internal wraps an unexpected lower-level failure as an opaque error.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: "internal error", Err: err}
}

// KindOf extracts the taxonomy kind from any error; unclassified errors are
// treated as internal.
func KindOf(err error) Kind {
	var authErr *Error
	if errors.As(err, &authErr) {
		return authErr.Kind
	}
	return KindInternal
}
