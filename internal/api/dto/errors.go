package dto

import (
	"errors"
	"net/http"

	"github.com/cachewarming/receipt-match-backend/internal/infrastructure/storage"
)

// APIError represents a structured error response.
// All error responses from the API use this format for consistency.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes
const (
	ErrCodeNotFound      = "not_found"
	ErrCodeBadRequest    = "bad_request"
	ErrCodeValidation    = "validation_error"
	ErrCodeInvalidState  = "invalid_state"
	ErrCodeConflict      = "conflict"
	ErrCodeIntegrity     = "data_integrity_violation"
	ErrCodeInternalError = "internal_error"
)

// NewAPIError creates a new APIError with the given code and message.
func NewAPIError(code, message string) APIError {
	return APIError{
		Code:    code,
		Message: message,
	}
}

// NotFoundError creates a not found error response.
func NotFoundError(resource string) APIError {
	return NewAPIError(ErrCodeNotFound, resource+" not found")
}

// BadRequestError creates a bad request error response.
func BadRequestError(message string) APIError {
	return NewAPIError(ErrCodeBadRequest, message)
}

// InternalError creates an internal server error response.
func InternalError() APIError {
	return NewAPIError(ErrCodeInternalError, "an internal error occurred")
}

// FromError maps a service or storage error to an HTTP status and an
// APIError body. Unknown errors become a generic 500 so internal details
// never leak to clients.
func FromError(err error) (int, APIError) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, NewAPIError(ErrCodeNotFound, err.Error())
	case errors.Is(err, storage.ErrValidation):
		return http.StatusBadRequest, NewAPIError(ErrCodeValidation, err.Error())
	case errors.Is(err, storage.ErrInvalidState):
		return http.StatusConflict, NewAPIError(ErrCodeInvalidState, err.Error())
	case errors.Is(err, storage.ErrConflict):
		return http.StatusConflict, NewAPIError(ErrCodeConflict, err.Error())
	case errors.Is(err, storage.ErrIntegrity):
		return http.StatusConflict, NewAPIError(ErrCodeIntegrity, err.Error())
	default:
		return http.StatusInternalServerError, InternalError()
	}
}
