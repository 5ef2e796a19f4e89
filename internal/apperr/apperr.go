// Package apperr holds the business error kinds shared by the catalog,
// inventory and orders packages, and their mapping to HTTP status codes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrValidation        = errors.New("validation error")
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrAlreadyCompleted  = errors.New("already completed")
	ErrConflict          = errors.New("conflict")
)

// Error is a business failure of a given kind with a caller-facing message.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.Kind }

// New builds an *Error of the given kind.
func New(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) *Error { return New(ErrValidation, format, args...) }

func NotFound(format string, args ...any) *Error { return New(ErrNotFound, format, args...) }

func InvalidTransition(format string, args ...any) *Error {
	return New(ErrInvalidTransition, format, args...)
}

func Unauthorized(format string, args ...any) *Error { return New(ErrUnauthorized, format, args...) }

// StockError reports a line item whose requested quantity exceeds the
// product's remaining availability.
type StockError struct {
	ProductID   string
	ProductName string
	Available   int
	Requested   int
}

func (e *StockError) Error() string {
	return fmt.Sprintf("the product %s is currently available with only %d in stock, and the requested order quantity is %d",
		e.ProductName, e.Available, e.Requested)
}

func (e *StockError) Unwrap() error { return ErrInsufficientStock }

// StatusCode maps err to the HTTP status the API answers with.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrInsufficientStock),
		errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrAlreadyCompleted):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Message returns the text safe to show a client. Unexpected failures are
// reduced to a generic message.
func Message(err error) string {
	if StatusCode(err) == http.StatusInternalServerError {
		return "an unexpected error occurred"
	}
	return err.Error()
}
