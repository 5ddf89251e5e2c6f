package common

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
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
	ErrInternal     = errors.New("internal error")
	ErrDatabase     = errors.New("database error")
	ErrValidation   = errors.New("validation failed")
)

// Extraction errors
var (
	// ErrDocumentTooLarge rejects a document before any method is dispatched.
	ErrDocumentTooLarge = errors.New("document too large")
	// ErrMethodUnavailable marks a method disabled by missing configuration.
	ErrMethodUnavailable = errors.New("extraction method unavailable")
	// ErrMethodFailed wraps any per-method failure; it never fails a run by itself.
	ErrMethodFailed = errors.New("extraction method failed")
	// ErrContentInvalid marks text rejected by the content validator.
	ErrContentInvalid = errors.New("extracted content invalid")
	// ErrAllMethodsFailed is the only run-level extraction failure.
	ErrAllMethodsFailed = errors.New("all extraction methods failed")

	ErrExtractionInProgress = errors.New("extraction already in progress")
	ErrInvalidTransition    = errors.New("invalid document status transition")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// HTTPStatus maps an error to the response code used by the HTTP API.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDocumentTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrExtractionInProgress), errors.Is(err, ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, ErrAllMethodsFailed):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// GRPCError converts an error into a gRPC status error without leaking internals.
func GRPCError(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return NotFoundError(err.Error())
	case errors.Is(err, ErrDocumentTooLarge):
		return status.Error(codes.ResourceExhausted, err.Error())
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrValidation):
		return InvalidArgumentError(err.Error())
	case errors.Is(err, ErrExtractionInProgress), errors.Is(err, ErrInvalidTransition):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, ErrAllMethodsFailed):
		return status.Error(codes.FailedPrecondition, err.Error())
	default:
		return InternalError("internal error")
	}
}

// gRPC error helpers
func InvalidArgumentError(message string) error {
	return status.Error(codes.InvalidArgument, message)
}

func NotFoundError(message string) error {
	return status.Error(codes.NotFound, message)
}

func InternalError(message string) error {
	return status.Error(codes.Internal, message)
}
