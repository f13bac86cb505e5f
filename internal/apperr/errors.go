package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for the core taxonomy. Services return these (or Errors
// wrapping them); the HTTP boundary maps each to a status exactly once.
var (
	ErrValidation     = errors.New("validation failed")
	ErrConflict       = errors.New("conflict")
	ErrAuthentication = errors.New("authentication failed")
	ErrAuthorization  = errors.New("forbidden")
	ErrNotFound       = errors.New("not found")
	ErrTenantRequired = errors.New("tenant required")
)

// Error is a typed application error carrying a stable machine-readable code
// and an HTTP status mapping.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Validation creates a 422 error for malformed input.
func Validation(message string) *Error {
	return &Error{Code: "VALIDATION_ERROR", Message: message, Status: http.StatusUnprocessableEntity, Err: ErrValidation}
}

// Conflict creates a 409 error for duplicate resources.
func Conflict(message string) *Error {
	return &Error{Code: "CONFLICT", Message: message, Status: http.StatusConflict, Err: ErrConflict}
}

// Authentication creates a 401 error for bad credentials or bad tokens.
func Authentication(message string) *Error {
	return &Error{Code: "AUTHENTICATION_ERROR", Message: message, Status: http.StatusUnauthorized, Err: ErrAuthentication}
}

// Authorization creates a 403 error for insufficient role or cross-tenant access.
func Authorization(message string) *Error {
	return &Error{Code: "AUTHORIZATION_ERROR", Message: message, Status: http.StatusForbidden, Err: ErrAuthorization}
}

// NotFound creates a 404 error.
func NotFound(resource string) *Error {
	return &Error{Code: "NOT_FOUND", Message: resource + " not found", Status: http.StatusNotFound, Err: ErrNotFound}
}

// InvalidToken creates a 400 error for an invalid, expired, or already
// consumed one-time token (password reset confirm, invitation lookup).
func InvalidToken(message string) *Error {
	return &Error{Code: "INVALID_TOKEN", Message: message, Status: http.StatusBadRequest, Err: ErrValidation}
}

// TenantRequired creates a 400 error for requests with no resolvable tenant.
func TenantRequired() *Error {
	return &Error{Code: "TENANT_REQUIRED", Message: "tenant could not be determined from the request", Status: http.StatusBadRequest, Err: ErrTenantRequired}
}

// Internal wraps an unexpected error as a 500.
func Internal(err error) *Error {
	return &Error{Code: "INTERNAL_ERROR", Message: "an internal error occurred", Status: http.StatusInternalServerError, Err: err}
}

// HTTPStatus returns the status code for err, defaulting to 500.
func HTTPStatus(err error) int {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrAuthentication):
		return http.StatusUnauthorized
	case errors.Is(err, ErrAuthorization):
		return http.StatusForbidden
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrTenantRequired):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Code returns the stable machine code for err, defaulting to INTERNAL_ERROR.
func Code(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	switch {
	case errors.Is(err, ErrValidation):
		return "VALIDATION_ERROR"
	case errors.Is(err, ErrConflict):
		return "CONFLICT"
	case errors.Is(err, ErrAuthentication):
		return "AUTHENTICATION_ERROR"
	case errors.Is(err, ErrAuthorization):
		return "AUTHORIZATION_ERROR"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrTenantRequired):
		return "TENANT_REQUIRED"
	default:
		return "INTERNAL_ERROR"
	}
}
