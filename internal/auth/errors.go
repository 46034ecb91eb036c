package auth

import (
	"errors"
	"fmt"

	dErrors "mailomat/pkg/domain-errors"
)

// Kind names the step of the gate that rejected a request.
type Kind string

const (
	KindMissingHeader      Kind = "missing_auth_header"
	KindInvalidUTF8        Kind = "invalid_utf8"
	KindWrongScheme        Kind = "wrong_auth_scheme"
	KindBase64Decode       Kind = "base64_decode"
	KindMissingColon       Kind = "missing_colon"
	KindInvalidCredentials Kind = "invalid_credentials"
	KindStore              Kind = "store"
)

// Error is the gate's typed failure. Detail is safe to log; it never contains the password.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func errMissingHeader() error {
	return &Error{Kind: KindMissingHeader, Detail: "authorization header is missing"}
}

func errInvalidUTF8(where string) error {
	return &Error{Kind: KindInvalidUTF8, Detail: where + " is not valid UTF-8"}
}

func errWrongScheme(expected string) error {
	return &Error{Kind: KindWrongScheme, Detail: fmt.Sprintf("expected %q scheme", expected)}
}

func errBase64(err error) error {
	return &Error{Kind: KindBase64Decode, Detail: "credentials are not valid base64", Err: err}
}

func errMissingColon() error {
	return &Error{Kind: KindMissingColon, Detail: "credentials must be username:password"}
}

func errInvalidCredentials(msg string) error {
	return &Error{Kind: KindInvalidCredentials, Detail: msg}
}

func errStore(err error) error {
	return &Error{Kind: KindStore, Detail: "credential lookup failed", Err: err}
}

// KindOf returns the kind of an auth error in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return ""
}

// ToDomain converts a gate failure to a coded error for the transport layer.
// Every header and credential failure is unauthorized; store failures are internal.
func ToDomain(err error) error {
	var ae *Error
	if !errors.As(err, &ae) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "authentication failed")
	}
	switch ae.Kind {
	case KindStore:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load operator credentials")
	case KindInvalidCredentials:
		return dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid username or password")
	default:
		return dErrors.Wrap(err, dErrors.CodeUnauthorized, ae.Detail)
	}
}
