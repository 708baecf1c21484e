// Package apperr defines the typed failure values returned by the auth engines.
// Engines never leak store or signing errors upward; every failure is one of
// these kinds, and the transport layer owns the mapping to HTTP statuses.
package apperr

import "errors"

type Kind int

const (
	KindInternal Kind = iota
	KindInvalidInput
	KindConflict
	KindRateLimited
	KindExpired
	KindUnauthenticated
	KindUnauthorized
)

// Stable machine-readable codes, part of the client contract.
const (
	CodeInternal        = "internal_server_error"
	CodeInvalidInput    = "invalid_input_error"
	CodeNotAllowed      = "method_not_allowed_error"
	CodeOTPExpired      = "otp_expired_error"
	CodeRequestExpired  = "request_expired_error"
	CodeUnauthenticated = "unauthenticated_error"
	CodeUnauthorized    = "unauthorised_error"
)

type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is makes two app errors equal when kind and code match, so tests and callers
// can compare against constructor results.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

func InvalidInput(msg string) *Error {
	return &Error{Kind: KindInvalidInput, Code: CodeInvalidInput, Message: msg}
}

func Conflict(msg string) *Error {
	return &Error{Kind: KindConflict, Code: CodeInvalidInput, Message: msg}
}

// RateLimited covers the daily ceilings and the account freeze; the reference
// surfaces all of them as "method not allowed, try tomorrow".
func RateLimited(msg string) *Error {
	return &Error{Kind: KindRateLimited, Code: CodeNotAllowed, Message: msg}
}

// NotAllowed marks a caller presenting a token that is not the one most
// recently issued for the challenge.
func NotAllowed(msg string) *Error {
	return &Error{Kind: KindUnauthorized, Code: CodeNotAllowed, Message: msg}
}

func OTPExpired(msg string) *Error {
	return &Error{Kind: KindExpired, Code: CodeOTPExpired, Message: msg}
}

func RequestExpired(msg string) *Error {
	return &Error{Kind: KindExpired, Code: CodeRequestExpired, Message: msg}
}

func Unauthenticated(msg string) *Error {
	return &Error{Kind: KindUnauthenticated, Code: CodeUnauthenticated, Message: msg}
}

func Unauthorized(msg string) *Error {
	return &Error{Kind: KindUnauthorized, Code: CodeUnauthorized, Message: msg}
}

func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Code: CodeInternal, Message: "something went wrong", Err: err}
}

// From extracts the typed error, wrapping anything foreign as Internal.
func From(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return Internal(err)
}

// KindOf is a convenience for tests and the transport layer.
func KindOf(err error) Kind {
	return From(err).Kind
}
