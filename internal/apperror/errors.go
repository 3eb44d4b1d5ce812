// Package apperror provides domain-specific error types for the campus
// service. These errors carry an HTTP status code, a machine-readable type
// and a user-safe message. The Echo error handler maps them to JSON responses.
//
// NEVER return raw database or infrastructure errors to the client. Always
// wrap them in an apperror type or return a generic internal error.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Machine-readable error types. Clients switch on these, not on messages.
const (
	TypeInvalidInput       = "invalid_input"
	TypeConflict           = "conflict"
	TypeInvalidCredentials = "invalid_credentials"
	TypeUnauthenticated    = "unauthenticated"
	TypeTokenExpired       = "token_expired"
	TypeTokenInvalid       = "token_invalid"
	TypeForbidden          = "forbidden"
	TypeNotFound           = "not_found"
	TypeOTPNotFound        = "otp_not_found"
	TypeOTPMismatch        = "otp_mismatch"
	TypeDeliveryFailed     = "delivery_failed"
	TypeTooManyRequests    = "too_many_requests"
	TypeInternal           = "internal_error"
)

// AppError is the base error type for all domain errors. It carries an
// HTTP status code, a machine-readable error type, and a human-readable
// message safe to show to the client.
type AppError struct {
	// Code is the HTTP status code (e.g., 404, 400, 500).
	Code int `json:"-"`

	// Type is a machine-readable error classifier (e.g., "not_found").
	Type string `json:"type"`

	// Message is a human-readable description safe for the client.
	Message string `json:"message"`

	// Internal holds the underlying error for logging. Never exposed to client.
	Internal error `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %s (internal: %v)", e.Type, e.Message, e.Internal)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *AppError) Unwrap() error {
	return e.Internal
}

func newError(code int, typ, message string) *AppError {
	return &AppError{Code: code, Type: typ, Message: message}
}

// --- Constructors ---

// NewInvalidInput creates a 400 error for malformed or missing request fields.
func NewInvalidInput(message string) *AppError {
	return newError(http.StatusBadRequest, TypeInvalidInput, message)
}

// NewConflict creates a 409 error for uniqueness violations.
func NewConflict(message string) *AppError {
	return newError(http.StatusConflict, TypeConflict, message)
}

// invalidCredentialsMessage is shared by every login failure so responses
// cannot be used to tell which check failed.
const invalidCredentialsMessage = "invalid email or password"

// NewInvalidCredentials creates the single 400 error returned for an unknown
// account, a role mismatch, or a wrong password.
func NewInvalidCredentials() *AppError {
	return newError(http.StatusBadRequest, TypeInvalidCredentials, invalidCredentialsMessage)
}

// NewUnauthenticated creates a 401 error for a missing or malformed credential.
func NewUnauthenticated(message string) *AppError {
	return newError(http.StatusUnauthorized, TypeUnauthenticated, message)
}

// NewTokenExpired creates a 401 error for a token past its expiry.
func NewTokenExpired() *AppError {
	return newError(http.StatusUnauthorized, TypeTokenExpired, "token has expired")
}

// NewTokenInvalid creates a 401 error for a token that fails verification.
func NewTokenInvalid() *AppError {
	return newError(http.StatusUnauthorized, TypeTokenInvalid, "token is invalid")
}

// NewForbidden creates a 403 Forbidden error.
func NewForbidden(message string) *AppError {
	return newError(http.StatusForbidden, TypeForbidden, message)
}

// NewNotFound creates a 404 Not Found error.
func NewNotFound(message string) *AppError {
	return newError(http.StatusNotFound, TypeNotFound, message)
}

// NewOTPNotFound creates a 400 error for a verification with no active code.
func NewOTPNotFound() *AppError {
	return newError(http.StatusBadRequest, TypeOTPNotFound, "no active verification code for this email")
}

// NewOTPMismatch creates a 400 error for a wrong verification code.
func NewOTPMismatch() *AppError {
	return newError(http.StatusBadRequest, TypeOTPMismatch, "verification code does not match")
}

// NewDeliveryFailed creates a 500 error for a failed email dispatch. The
// cause is kept for logging; the client sees a generic message.
func NewDeliveryFailed(err error) *AppError {
	return &AppError{
		Code:     http.StatusInternalServerError,
		Type:     TypeDeliveryFailed,
		Message:  "could not send the verification email, please try again",
		Internal: err,
	}
}

// NewTooManyRequests creates a 429 error for rate-limited callers.
func NewTooManyRequests() *AppError {
	return newError(http.StatusTooManyRequests, TypeTooManyRequests, "rate limit exceeded, please try again later")
}

// NewInternal creates a 500 Internal Server Error. The real error is stored
// in Internal for logging but the client only sees a generic message.
func NewInternal(err error) *AppError {
	return &AppError{
		Code:     http.StatusInternalServerError,
		Type:     TypeInternal,
		Message:  "An unexpected error occurred. Please try again.",
		Internal: err,
	}
}

// Is reports whether err is an AppError of the given type.
func Is(err error, typ string) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Type == typ
}

// SafeMessage returns the client-safe error message from an error. For any
// error that is not an AppError, returns a generic message to prevent
// leaking internal details.
func SafeMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "an unexpected error occurred"
}

// SafeCode returns the HTTP status code from an AppError, or 500 for
// any other error type.
func SafeCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return http.StatusInternalServerError
}
