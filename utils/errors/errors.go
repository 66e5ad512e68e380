package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// APIError is the single failure type returned by every service operation.
// Details holds the internal cause for server logs and is never rendered.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Details string `json:"-"`
}

// Error returns the error message
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches any APIError carrying the same code, so callers can write
// errors.Is(err, ErrNotFound) regardless of the message.
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func NewAPIError(code, message string, status int, details ...string) *APIError {
	err := &APIError{
		Code:    code,
		Message: message,
		Status:  status,
	}
	if len(details) > 0 {
		err.Details = details[0]
	}
	return err
}

const (
	CodeValidation         = "VALIDATION_ERROR"
	CodeNotFound           = "NOT_FOUND"
	CodeDuplicateEmail     = "DUPLICATE_EMAIL"
	CodeAuth               = "AUTH_ERROR"
	CodeForbidden          = "FORBIDDEN"
	CodeGeocodeNotFound    = "GEOCODE_NOT_FOUND"
	CodeGeocodeUnavailable = "GEOCODE_UNAVAILABLE"
	CodeStorage            = "STORAGE_ERROR"
	CodeRateLimited        = "RATE_LIMITED"
	CodeInternal           = "INTERNAL_SERVER_ERROR"
)

var (
	ErrInvalidInput       = NewAPIError(CodeValidation, "Invalid inputs passed, please check your data.", http.StatusUnprocessableEntity)
	ErrUnauthorized       = NewAPIError(CodeAuth, "Authentication failed.", http.StatusUnauthorized)
	ErrForbidden          = NewAPIError(CodeForbidden, "You are not allowed to modify this place.", http.StatusForbidden)
	ErrNotFound           = NewAPIError(CodeNotFound, "Resource not found", http.StatusNotFound)
	ErrDuplicateEmail     = NewAPIError(CodeDuplicateEmail, "User exists already, please login instead.", http.StatusUnprocessableEntity)
	ErrGeocodeNotFound    = NewAPIError(CodeGeocodeNotFound, "Could not find location for the specified address.", http.StatusUnprocessableEntity)
	ErrGeocodeUnavailable = NewAPIError(CodeGeocodeUnavailable, "Could not resolve the address, please try again later.", http.StatusInternalServerError)
	ErrStorage            = NewAPIError(CodeStorage, "Something went wrong, please try again later.", http.StatusInternalServerError)
	ErrRateLimited        = NewAPIError(CodeRateLimited, "Too many requests, please slow down.", http.StatusTooManyRequests)
	ErrInternal           = NewAPIError(CodeInternal, "An unknown error occurred!", http.StatusInternalServerError)
	ErrRouteNotFound      = NewAPIError(CodeNotFound, "Could not find this route.", http.StatusNotFound)
)

// Wrap returns err unchanged when it already is an *APIError, otherwise a new
// APIError whose Details keep the original error text.
func Wrap(err error, code, message string, status int) *APIError {
	var apiErr *APIError
	if stderrors.As(err, &apiErr) {
		return apiErr
	}
	details := ""
	if err != nil {
		details = err.Error()
	}
	return NewAPIError(code, message, status, details)
}

// Validation builds a 422 with a caller-facing message.
func Validation(message string, details ...string) *APIError {
	return NewAPIError(CodeValidation, message, http.StatusUnprocessableEntity, details...)
}

func NotFound(message string) *APIError {
	return NewAPIError(CodeNotFound, message, http.StatusNotFound)
}

func Auth(message string) *APIError {
	return NewAPIError(CodeAuth, message, http.StatusUnauthorized)
}

// Storage wraps a store failure. The cause is kept for logs only.
func Storage(message string, cause error) *APIError {
	details := ""
	if cause != nil {
		details = cause.Error()
	}
	return NewAPIError(CodeStorage, message, http.StatusInternalServerError, details)
}

func GeocodeUnavailable(cause error) *APIError {
	details := ""
	if cause != nil {
		details = cause.Error()
	}
	return NewAPIError(CodeGeocodeUnavailable, ErrGeocodeUnavailable.Message, http.StatusInternalServerError, details)
}

func GeocodeNotFound(address string) *APIError {
	return NewAPIError(CodeGeocodeNotFound, ErrGeocodeNotFound.Message, http.StatusUnprocessableEntity, address)
}

// Retryable reports whether the caller may retry the failed operation.
// Only storage failures are transient.
func Retryable(err error) bool {
	return stderrors.Is(err, ErrStorage)
}

// IsGeocode reports whether err is either of the address resolution failures.
func IsGeocode(err error) bool {
	return stderrors.Is(err, ErrGeocodeNotFound) || stderrors.Is(err, ErrGeocodeUnavailable)
}

// Is and As re-export the standard library helpers so callers need only
// this package.
func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target any) bool { return stderrors.As(err, target) }
