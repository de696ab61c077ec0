package snapshot

import (
	"context"
	"errors"
	"fmt"

	"gym-snapshot/internal/catalog"
)

// SnapshotError represents errors raised by the snapshot engine
type SnapshotError struct {
	Type    ErrorType              `json:"type"`
	Message string                 `json:"message"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *SnapshotError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause error
func (e *SnapshotError) Unwrap() error {
	return e.Cause
}

// ErrorType represents the kinds of failure the engine reports
type ErrorType string

const (
	ErrorTypeAuthorizationDenied ErrorType = "AUTHORIZATION_DENIED"
	ErrorTypeInvalidFormat       ErrorType = "INVALID_FORMAT"
	ErrorTypeInvalidRequest      ErrorType = "INVALID_REQUEST"
	ErrorTypeNotFound            ErrorType = "NOT_FOUND"
	ErrorTypePathRejected        ErrorType = "PATH_REJECTED"
	ErrorTypeStoreIOFailure      ErrorType = "STORE_IO_FAILURE"
	ErrorTypeTimeout             ErrorType = "TIMEOUT"
	ErrorTypeConfiguration       ErrorType = "CONFIGURATION_ERROR"
	ErrorTypeCatalog             ErrorType = "CATALOG_ERROR"
)

// NewSnapshotError creates a new SnapshotError
func NewSnapshotError(errorType ErrorType, message string, cause error) *SnapshotError {
	return &SnapshotError{
		Type:    errorType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// WithContext adds context information to the error
func (e *SnapshotError) WithContext(key string, value interface{}) *SnapshotError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// Common error constructors
func NewAuthorizationDeniedError(message string, cause error) *SnapshotError {
	return NewSnapshotError(ErrorTypeAuthorizationDenied, message, cause)
}

func NewInvalidFormatError(message string, cause error) *SnapshotError {
	return NewSnapshotError(ErrorTypeInvalidFormat, message, cause)
}

func NewInvalidRequestError(message string, cause error) *SnapshotError {
	return NewSnapshotError(ErrorTypeInvalidRequest, message, cause)
}

func NewNotFoundError(message string, cause error) *SnapshotError {
	return NewSnapshotError(ErrorTypeNotFound, message, cause)
}

func NewPathRejectedError(message string, cause error) *SnapshotError {
	return NewSnapshotError(ErrorTypePathRejected, message, cause)
}

func NewStoreIOError(message string, cause error) *SnapshotError {
	return NewSnapshotError(ErrorTypeStoreIOFailure, message, cause)
}

func NewTimeoutError(message string, cause error) *SnapshotError {
	return NewSnapshotError(ErrorTypeTimeout, message, cause)
}

func NewConfigurationError(message string, cause error) *SnapshotError {
	return NewSnapshotError(ErrorTypeConfiguration, message, cause)
}

// ErrorTypeOf returns the type of the first SnapshotError in err's chain.
// Catalog errors are reported as ErrorTypeCatalog. Any other error yields "".
func ErrorTypeOf(err error) ErrorType {
	var snapErr *SnapshotError
	if errors.As(err, &snapErr) {
		return snapErr.Type
	}
	var catErr *catalog.CatalogError
	if errors.As(err, &catErr) {
		return ErrorTypeCatalog
	}
	return ""
}

func IsAuthorizationDenied(err error) bool { return ErrorTypeOf(err) == ErrorTypeAuthorizationDenied }

func IsInvalidFormat(err error) bool { return ErrorTypeOf(err) == ErrorTypeInvalidFormat }

func IsInvalidRequest(err error) bool { return ErrorTypeOf(err) == ErrorTypeInvalidRequest }

func IsNotFound(err error) bool { return ErrorTypeOf(err) == ErrorTypeNotFound }

func IsPathRejected(err error) bool { return ErrorTypeOf(err) == ErrorTypePathRejected }

func IsStoreIOFailure(err error) bool { return ErrorTypeOf(err) == ErrorTypeStoreIOFailure }

func IsTimeout(err error) bool { return ErrorTypeOf(err) == ErrorTypeTimeout }

// ValidationError represents validation-specific errors
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// ValidationErrors represents a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	return fmt.Sprintf("%d validation errors: %s (and %d more)", len(e), e[0].Error(), len(e)-1)
}

// Add adds a validation error to the collection
func (e *ValidationErrors) Add(field, message string, value interface{}) {
	*e = append(*e, ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	})
}

// HasErrors returns true if there are validation errors
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// classifyStoreError turns a failure against the destination store into a
// Timeout when a deadline caused it, and a StoreIOFailure otherwise.
func classifyStoreError(ctx context.Context, message string, err error) *SnapshotError {
	var snapErr *SnapshotError
	if errors.As(err, &snapErr) {
		return snapErr
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return NewTimeoutError(message, err)
	}
	return NewStoreIOError(message, err)
}
