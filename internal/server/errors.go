// Package server provides the HTTP API of the flash-resume service.
package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jonathan/flash-resume/internal/compiler"
	"github.com/jonathan/flash-resume/internal/templates"
)

// RequestError indicates a request body or form that could not be accepted.
type RequestError struct {
	Message string
	Cause   error
}

func (e *RequestError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *RequestError) Unwrap() error {
	return e.Cause
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var (
		notFound      *templates.NotFoundError
		invalidConfig *templates.InvalidConfigError
		compileErr    *compiler.CompilationError
		outputMissing *compiler.OutputMissingError
		timeout       *compiler.TimeoutError
		busy          *compiler.BusyError
		requestErr    *RequestError
	)

	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &invalidConfig):
		return http.StatusInternalServerError
	case errors.As(err, &compileErr):
		return http.StatusBadRequest
	case errors.As(err, &outputMissing):
		return http.StatusInternalServerError
	case errors.As(err, &timeout):
		return http.StatusRequestTimeout
	case errors.As(err, &busy):
		return http.StatusServiceUnavailable
	case errors.As(err, &requestErr):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
