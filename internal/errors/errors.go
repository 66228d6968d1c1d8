package errors

import (
	"net/http"
)

// ErrorCode represents a standardized error code
type ErrorCode string

const (
	// Request errors (400xx)
	ErrInvalidRequest   ErrorCode = "40001"
	ErrValidationFailed ErrorCode = "40002"

	// Authentication errors (401xx)
	ErrInvalidCredentials ErrorCode = "40101"
	ErrTokenExpired       ErrorCode = "40102"

	// Resource errors (404xx)
	ErrShopNotFound    ErrorCode = "40401"
	ErrNoPendingReview ErrorCode = "40402"
	ErrNoAcceptedShop  ErrorCode = "40403"

	// Server errors (500xx)
	ErrInternalServer      ErrorCode = "50001"
	ErrUpstreamUnavailable ErrorCode = "50301"
	ErrUpstreamTimeout     ErrorCode = "50401"
)

// APIError represents a standardized API error
type APIError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Details    any       `json:"details,omitempty"`
	HTTPStatus int       `json:"-"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return e.Message
}

// ErrorResponse represents the error response format. Every response from
// this API carries a success boolean; failures add the error payload.
type ErrorResponse struct {
	Success   bool     `json:"success"`
	Error     APIError `json:"error"`
	RequestID string   `json:"request_id,omitempty"`
}

// NewErrorResponse builds the error envelope for an APIError
func NewErrorResponse(err *APIError, requestID string) ErrorResponse {
	return ErrorResponse{
		Success:   false,
		Error:     *err,
		RequestID: requestID,
	}
}

// Common errors
var (
	ErrInvalidCredentialsError = &APIError{
		Code:       ErrInvalidCredentials,
		Message:    "Invalid or missing admin token",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrTokenExpiredError = &APIError{
		Code:       ErrTokenExpired,
		Message:    "Token has expired",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrNoPendingReviewError = &APIError{
		Code:       ErrNoPendingReview,
		Message:    "No pending review found for this shop",
		HTTPStatus: http.StatusNotFound,
	}

	ErrNoAcceptedShopError = &APIError{
		Code:       ErrNoAcceptedShop,
		Message:    "No accepted review found for this shop",
		HTTPStatus: http.StatusNotFound,
	}

	ErrInternalServerError = &APIError{
		Code:       ErrInternalServer,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
	}

	ErrUpstreamTimeoutError = &APIError{
		Code:       ErrUpstreamTimeout,
		Message:    "Upstream service timeout",
		HTTPStatus: http.StatusGatewayTimeout,
	}

	ErrUpstreamUnavailableError = &APIError{
		Code:       ErrUpstreamUnavailable,
		Message:    "Upstream service unavailable",
		HTTPStatus: http.StatusServiceUnavailable,
	}
)

// NewValidationError creates a validation error with details
func NewValidationError(details any) *APIError {
	return &APIError{
		Code:       ErrValidationFailed,
		Message:    "Validation failed",
		Details:    details,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewInvalidRequestError creates an invalid request error
func NewInvalidRequestError(message string) *APIError {
	return &APIError{
		Code:       ErrInvalidRequest,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewNotFoundError creates a not-found error with a custom message
func NewNotFoundError(message string) *APIError {
	return &APIError{
		Code:       ErrShopNotFound,
		Message:    message,
		HTTPStatus: http.StatusNotFound,
	}
}

// NewUpstreamError creates a 500-class error for a failed dependency call
func NewUpstreamError(message string) *APIError {
	return &APIError{
		Code:       ErrInternalServer,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
	}
}
