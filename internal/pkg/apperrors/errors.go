package apperrors

import (
	"fmt"
	"net/http"
)

type ErrorType string

const (
	ErrUnauthenticated       ErrorType = "UNAUTHENTICATED"
	ErrCrossOriginDenied     ErrorType = "CROSS_ORIGIN_DENIED"
	ErrRateLimitExceeded     ErrorType = "RATE_LIMIT_EXCEEDED"
	ErrEmptyInput            ErrorType = "EMPTY_INPUT"
	ErrUnsupportedFileType   ErrorType = "UNSUPPORTED_FILE_TYPE"
	ErrExtractionUnavailable ErrorType = "EXTRACTION_UNAVAILABLE"
	ErrExtractionEmpty       ErrorType = "EXTRACTION_EMPTY"
	ErrExtractionRejected    ErrorType = "EXTRACTION_REJECTED"
	ErrExtractionFailed      ErrorType = "EXTRACTION_FAILED"
	ErrUnknownService        ErrorType = "UNKNOWN_SERVICE"
	ErrUpstreamError         ErrorType = "UPSTREAM_ERROR"
	ErrUpstreamUnavailable   ErrorType = "UPSTREAM_UNAVAILABLE"
	ErrInvalidRequest        ErrorType = "INVALID_REQUEST"
	ErrInternal              ErrorType = "INTERNAL_ERROR"
)

// AppError is the standard error struct for the gateway. Its JSON form is the
// uniform error body returned to clients: {"statusCode": ..., "message": ...}.
type AppError struct {
	Type       ErrorType `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"statusCode"`
	Cause      error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(errType ErrorType, msg string, cause error) *AppError {
	return &AppError{
		Type:       errType,
		Message:    msg,
		Cause:      cause,
		HTTPStatus: mapTypeToStatus(errType),
	}
}

func NewUnauthenticated(msg string) *AppError {
	return New(ErrUnauthenticated, msg, nil)
}

func NewInvalidRequest(msg string) *AppError {
	return New(ErrInvalidRequest, msg, nil)
}

func NewUnknownService(name string) *AppError {
	return New(ErrUnknownService, fmt.Sprintf("unknown service %q", name), nil)
}

func NewUpstreamUnavailable(service string, cause error) *AppError {
	return New(ErrUpstreamUnavailable, fmt.Sprintf("service %s is unavailable", service), cause)
}

// Wrap coerces any error into an AppError, defaulting to INTERNAL_ERROR.
func Wrap(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return appErr
	}
	return New(ErrInternal, err.Error(), err)
}

func mapTypeToStatus(t ErrorType) int {
	switch t {
	case ErrUnauthenticated:
		return http.StatusUnauthorized
	case ErrCrossOriginDenied:
		return http.StatusForbidden
	case ErrRateLimitExceeded:
		return http.StatusTooManyRequests
	case ErrEmptyInput,
		ErrUnsupportedFileType,
		ErrExtractionUnavailable,
		ErrExtractionEmpty,
		ErrExtractionRejected,
		ErrExtractionFailed,
		ErrUnknownService,
		ErrUpstreamError,
		ErrUpstreamUnavailable,
		ErrInvalidRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
