// Package apperr defines the error taxonomy shared by the domain services and
// its mapping onto HTTP responses.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrInvalidInput       = errors.New("invalid input")
	ErrTransactionFailure = errors.New("transaction failure")

	ErrAlreadyCancelled = fmt.Errorf("already cancelled: %w", ErrConflict)
	ErrAlreadyPaid      = fmt.Errorf("already paid: %w", ErrConflict)
)

// Error carries a caller-facing message alongside one of the sentinel kinds.
type Error struct {
	Kind error
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

func NotFound(format string, args ...interface{}) error {
	return &Error{Kind: ErrNotFound, Msg: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...interface{}) error {
	return &Error{Kind: ErrConflict, Msg: fmt.Sprintf(format, args...)}
}

func Invalid(format string, args ...interface{}) error {
	return &Error{Kind: ErrInvalidInput, Msg: fmt.Sprintf(format, args...)}
}

func AlreadyCancelled(msg string) error {
	return &Error{Kind: ErrAlreadyCancelled, Msg: msg}
}

func AlreadyPaid(msg string) error {
	return &Error{Kind: ErrAlreadyPaid, Msg: msg}
}

// TxFailure wraps a store error that aborted a transaction.
func TxFailure(msg string, err error) error {
	return &Error{Kind: ErrTransactionFailure, Msg: msg, Err: err}
}

// IsDomain reports whether err already belongs to the taxonomy and should be
// passed through untouched.
func IsDomain(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrTransactionFailure)
}

// ToHTTP maps err onto an *echo.HTTPError. Store failures are reported without
// internal detail.
func ToHTTP(err error) *echo.HTTPError {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}
	msg := err.Error()
	var ae *Error
	if errors.As(err, &ae) {
		msg = ae.Msg
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return echo.NewHTTPError(http.StatusGatewayTimeout, "request timed out; outcome unknown, safe to retry")
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, msg)
	case errors.Is(err, ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, msg)
	case errors.Is(err, ErrInvalidInput):
		return echo.NewHTTPError(http.StatusBadRequest, msg)
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
	}
}
