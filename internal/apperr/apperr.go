// Package apperr defines the application error taxonomy. Handlers and
// middleware branch on error kinds via errors.Is, never on message text.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for HTTP status mapping and logging.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindAuthentication
	KindAuthorization
	KindNotFound
	KindConflict
	KindDatabase
	KindExternal
	KindUnavailable
	KindTimeout
)

// Error is a tagged application error. Two Errors match under errors.Is when
// their kind and message are equal, so wrapped copies of a sentinel still
// compare equal to it.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind && t.Message == e.Message
}

// New builds a sentinel error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap attaches an underlying cause to a kind and message. The cause is kept
// for logs; it never reaches a response body.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Validationf builds a client-input error naming the offending field.
func Validationf(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// WrapAs re-tags err with the sentinel's kind and message while keeping err
// as the cause, so errors.Is(result, sentinel) holds.
func WrapAs(sentinel *Error, err error) *Error {
	return &Error{Kind: sentinel.Kind, Message: sentinel.Message, Err: err}
}

// Token and credential failures.
var (
	ErrMalformedToken = New(KindValidation, "malformed token")
	ErrTamperedToken  = New(KindAuthentication, "tampered token")
	ErrCorruptToken   = New(KindAuthentication, "corrupt token")
	ErrTokenExpired   = New(KindAuthentication, "token expired")
	ErrWrongTokenType = New(KindAuthentication, "wrong token type")
	ErrMissingToken   = New(KindAuthentication, "missing token")
)

// Session failures.
var (
	ErrSessionNotFound         = New(KindAuthentication, "session not found")
	ErrSessionInactive         = New(KindAuthentication, "session inactive")
	ErrSessionExpired          = New(KindAuthentication, "session expired")
	ErrSessionMismatch         = New(KindAuthentication, "access token does not match session")
	ErrSessionValidationFailed = New(KindDatabase, "session validation failed")
)

// OTP and registration failures.
var (
	ErrInvalidOrExpiredOTP        = New(KindAuthentication, "invalid or expired otp")
	ErrAccountNotFound            = New(KindAuthentication, "no account for this email")
	ErrEmailConflict              = New(KindConflict, "email already registered")
	ErrNotificationDeliveryFailed = New(KindExternal, "notification delivery failed")
)

// Device channel failures.
var (
	ErrDeviceOffline         = New(KindUnavailable, "device offline")
	ErrDeviceResponseTimeout = New(KindTimeout, "device response timeout")
	ErrDeviceForbidden       = New(KindAuthorization, "device belongs to another business")
)

// Permission failures.
var (
	ErrPermissionDenied = New(KindAuthorization, "permission denied")
)

// HTTPStatus maps an error to a response status. Unknown errors are 500.
func HTTPStatus(err error) int {
	var e *Error
	if !errors.As(err, &e) {
		return http.StatusInternalServerError
	}
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindExternal, KindUnavailable:
		return http.StatusServiceUnavailable
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is what a client may see. Authentication failures collapse to
// one uniform message so responses do not reveal why a credential failed;
// database and unknown errors collapse to a generic message so driver detail
// never leaks.
func PublicMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return "internal server error"
	}
	switch e.Kind {
	case KindAuthentication:
		if errors.Is(err, ErrSessionMismatch) {
			return ErrSessionMismatch.Message
		}
		return "invalid or expired credential"
	case KindDatabase:
		return "internal server error"
	default:
		return e.Message
	}
}
