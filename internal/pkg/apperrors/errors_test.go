package apperrors

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusMapping(t *testing.T) {
	cases := map[ErrorType]int{
		ErrUnauthenticated:       http.StatusUnauthorized,
		ErrCrossOriginDenied:     http.StatusForbidden,
		ErrRateLimitExceeded:     http.StatusTooManyRequests,
		ErrEmptyInput:            http.StatusBadRequest,
		ErrUnsupportedFileType:   http.StatusBadRequest,
		ErrExtractionUnavailable: http.StatusBadRequest,
		ErrUnknownService:        http.StatusBadRequest,
		ErrUpstreamUnavailable:   http.StatusBadRequest,
		ErrInternal:              http.StatusInternalServerError,
	}
	for errType, want := range cases {
		assert.Equal(t, want, New(errType, "x", nil).HTTPStatus, string(errType))
	}
}

func TestWrapPreservesAppError(t *testing.T) {
	orig := NewUnknownService("service9")
	wrapped := Wrap(orig)
	assert.Same(t, orig, wrapped)
}

func TestWrapUnknownError(t *testing.T) {
	wrapped := Wrap(errors.New("boom"))
	assert.Equal(t, ErrInternal, wrapped.Type)
	assert.Equal(t, http.StatusInternalServerError, wrapped.HTTPStatus)
}

func TestErrorsAsThroughCause(t *testing.T) {
	cause := errors.New("conn refused")
	err := NewUpstreamUnavailable("service1", cause)

	var appErr *AppError
	assert.True(t, errors.As(error(err), &appErr))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "conn refused")
}
