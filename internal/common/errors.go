package common

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInternal     = errors.New("internal error")
	ErrDatabase     = errors.New("database error")
	ErrValidation   = errors.New("validation failed")
	ErrUpstream     = errors.New("upstream service error")
)

// Error codes carried on the progress stream and in import_runs.
const (
	CodeMissingCredentials = "MISSING_CREDENTIALS"
	CodeUserNoLocation     = "USER_NO_LOCATION"
	CodeAcquisitionFailed  = "ACQUISITION_FAILED"
	CodeEmptyContent       = "EMPTY_CONTENT"
	CodeExtractionTask     = "EXTRACTION_TASK_FAILED"
	CodeEnrichmentFailed   = "ENRICHMENT_FAILED"
	CodeMediaFailed        = "MEDIA_FAILED"
	CodePersistenceFailed  = "PERSISTENCE_FAILED"
	CodeImportInProgress   = "IMPORT_IN_PROGRESS"
	CodeInvalidInput       = "INVALID_INPUT"
	CodeConfig             = "CONFIG_ERROR"
	CodeNotFound           = "NOT_FOUND"
)

// UnknownErrorMessage is used whenever a terminal error has no message of its own.
const UnknownErrorMessage = "Unknown error occurred"

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// ConfigurationError reports missing tenant context or credentials. Never retried.
func ConfigurationError(code, message string) *AppError {
	return NewAppError(code, message, ErrUnauthorized)
}

func AcquisitionError(message string, cause error) *AppError {
	return NewAppError(CodeAcquisitionFailed, message, cause)
}

func PersistenceError(message string, cause error) *AppError {
	return NewAppError(CodePersistenceFailed, message, cause)
}

func InvalidInputError(message string) *AppError {
	return NewAppError(CodeInvalidInput, message, ErrInvalidInput)
}

// CodeOf returns the AppError code in err's chain, or "".
func CodeOf(err error) string {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// MessageOf returns a non-empty, user-facing message for err.
func MessageOf(err error) string {
	if err == nil {
		return UnknownErrorMessage
	}
	var ae *AppError
	if errors.As(err, &ae) && ae.Message != "" {
		return ae.Message
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return UnknownErrorMessage
}

// HTTPStatus maps an error to the status used by the non-streaming endpoints.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	}
	switch CodeOf(err) {
	case CodeImportInProgress:
		return http.StatusConflict
	case CodeAcquisitionFailed, CodeEmptyContent:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
