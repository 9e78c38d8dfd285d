// Package errors defines the sentinel errors shared across the engine and an
// AppError type that carries an HTTP status code for the serving layer.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrEmptyCorpus marks a corpus with no usable documents. It is
	// informational: the index becomes empty and queries return nothing.
	ErrEmptyCorpus = errors.New("corpus is empty")
	// ErrMalformedDocument marks a single corpus record that failed schema
	// validation. Such records are skipped.
	ErrMalformedDocument = errors.New("malformed document")
	// ErrPersistedStateUnavailable is returned when no previously persisted
	// corpus stats can be read. It forces a full rebuild.
	ErrPersistedStateUnavailable = errors.New("persisted index state unavailable")
	// ErrStoreUnavailable means the durable store cannot be opened at all.
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrInvalidInput     = errors.New("invalid input")
	ErrInternal         = errors.New("internal error")
	ErrTimeout          = errors.New("operation timed out")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrMalformedDocument):
		return http.StatusBadRequest
	case errors.Is(err, ErrStoreUnavailable), errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
