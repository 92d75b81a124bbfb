package errx

import (
	"errors"
	"fmt"
	"net/http"
)

const (
	// SystemErrorMessage is a user-facing fallback when internal errors occur.
	SystemErrorMessage = "internal server error"
	// RedisErrorMessage describes Redis related failures.
	RedisErrorMessage = "redis operation failed"
	// RedisNotFoundMessage is used when a Redis key does not exist.
	RedisNotFoundMessage = "redis key not found"
	// DatabaseErrorMessage describes SQL store failures.
	DatabaseErrorMessage = "database operation failed"
	// NotFoundMessage is used when a row does not exist.
	NotFoundMessage = "resource not found"
	// ConflictMessage is used when a unique constraint would be violated.
	ConflictMessage = "resource already exists"
)

// AppError wraps an underlying error with an HTTP status and safe message.
type AppError struct {
	Err     error
	Status  int
	Message string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

// Unwrap exposes the underlying error for errors.Is / errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with the provided information.
func New(err error, status int, message string) *AppError {
	return &AppError{
		Err:     err,
		Status:  status,
		Message: message,
	}
}

// BadRequest reports invalid client input; message is shown to the caller.
func BadRequest(message string) *AppError {
	return New(nil, http.StatusBadRequest, message)
}

// Unauthorized reports missing or invalid credentials.
func Unauthorized(message string) *AppError {
	return New(nil, http.StatusUnauthorized, message)
}

// Conflict reports a duplicate resource.
func Conflict(message string) *AppError {
	return New(nil, http.StatusConflict, message)
}

// NotFound reports a missing resource.
func NotFound(message string) *AppError {
	return New(nil, http.StatusNotFound, message)
}

// Unavailable reports a dependency that is not configured or not reachable.
func Unavailable(message string) *AppError {
	return New(nil, http.StatusServiceUnavailable, message)
}

// StatusOf returns the HTTP status and safe message carried by err.
// Errors that are not AppErrors map to 500 with the generic system message.
func StatusOf(err error) (int, string) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status, appErr.Message
	}
	return http.StatusInternalServerError, SystemErrorMessage
}
