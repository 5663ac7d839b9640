package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeNetwork    ErrorType = "network"
	ErrorTypeProcessing ErrorType = "processing"
	ErrorTypeTimeout    ErrorType = "timeout"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeInternal   ErrorType = "internal"
	ErrorTypeConflict   ErrorType = "conflict"

	// Pipeline taxonomy
	ErrorTypeInference  ErrorType = "inference"
	ErrorTypeUpload     ErrorType = "upload"
	ErrorTypeStoreRead  ErrorType = "store_read"
	ErrorTypeStoreWrite ErrorType = "store_write"
	ErrorTypeRejected   ErrorType = "rejected"
	ErrorTypeDecode     ErrorType = "decode"
)

// User-facing messages for the recoverable-empty outcomes
const (
	MsgNoHazards  = "no hazards detected"
	MsgNoLocation = "image lacks GPS metadata; use an image with location data."
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	Details    string    `json:"details,omitempty"`
	StatusCode int       `json:"status_code"`
	Cause      error     `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

func newError(t ErrorType, status int, message string, cause error) *AppError {
	return &AppError{
		Type:       t,
		Message:    message,
		StatusCode: status,
		Cause:      cause,
	}
}

// NewValidationError creates a new validation error
func NewValidationError(message string, cause error) *AppError {
	return newError(ErrorTypeValidation, http.StatusBadRequest, message, cause)
}

// NewNetworkError creates a new network error
func NewNetworkError(message string, cause error) *AppError {
	return newError(ErrorTypeNetwork, http.StatusBadGateway, message, cause)
}

// NewProcessingError creates a new processing error
func NewProcessingError(message string, cause error) *AppError {
	return newError(ErrorTypeProcessing, http.StatusUnprocessableEntity, message, cause)
}

// NewTimeoutError creates a new timeout error
func NewTimeoutError(message string, cause error) *AppError {
	return newError(ErrorTypeTimeout, http.StatusGatewayTimeout, message, cause)
}

// NewInternalError creates a new internal error
func NewInternalError(message string, cause error) *AppError {
	return newError(ErrorTypeInternal, http.StatusInternalServerError, message, cause)
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string, cause error) *AppError {
	return newError(ErrorTypeNotFound, http.StatusNotFound, message, cause)
}

// NewConflictError is returned when an operation does not fit the current submission state
func NewConflictError(message string, cause error) *AppError {
	return newError(ErrorTypeConflict, http.StatusConflict, message, cause)
}

// NewInferenceError wraps a failed call to the detection service
func NewInferenceError(message string, cause error) *AppError {
	return newError(ErrorTypeInference, http.StatusBadGateway, message, cause)
}

// NewUploadError wraps a failed artifact upload
func NewUploadError(message string, cause error) *AppError {
	return newError(ErrorTypeUpload, http.StatusBadGateway, message, cause)
}

// NewStoreReadError wraps a failed read from the report store
func NewStoreReadError(message string, cause error) *AppError {
	return newError(ErrorTypeStoreRead, http.StatusServiceUnavailable, message, cause)
}

// NewStoreWriteError wraps a failed write to the report store
func NewStoreWriteError(message string, cause error) *AppError {
	return newError(ErrorTypeStoreWrite, http.StatusServiceUnavailable, message, cause)
}

// NewRejectedError marks a submission that cannot proceed for a user-fixable reason
func NewRejectedError(message string) *AppError {
	return newError(ErrorTypeRejected, http.StatusUnprocessableEntity, message, nil)
}

// NewDecodeError wraps an image that could not be decoded
func NewDecodeError(message string, cause error) *AppError {
	return newError(ErrorTypeDecode, http.StatusUnprocessableEntity, message, cause)
}

// IsType checks if the error, or any error it wraps, is an AppError of the given type
func IsType(err error, errorType ErrorType) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}

// GetStatusCode extracts the HTTP status code from an error
func GetStatusCode(err error) int {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}

// UserMessage returns the message meant for the end user: the AppError message
// when there is one, else the raw error text.
func UserMessage(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
