// Package apperr holds the error taxonomy shared by the billing services.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrMisconfigured       = errors.New("misconfigured")
	ErrTransient           = errors.New("transient storage failure")
	ErrUnexpected          = errors.New("unexpected error")
)

// IsNotFound reports whether err is (or wraps) ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsRetryable reports whether the whole unit of work may be run again.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient)
}

// HTTPStatus maps an error from the services onto a response status.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, ErrInsufficientBalance):
		return http.StatusPaymentRequired
	case errors.Is(err, ErrTransient):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Known reports whether err belongs to the taxonomy above and can be
// returned to callers unchanged.
func Known(err error) bool {
	for _, target := range []error{
		ErrNotFound, ErrUnauthorized, ErrInsufficientBalance, ErrInvalidAmount,
		ErrMisconfigured, ErrTransient, ErrUnexpected,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Boundary is applied where an operation leaves a service: known errors
// pass through, anything else is logged with context and wrapped as
// ErrUnexpected.
func Boundary(logger *zap.Logger, op string, err error, fields ...zap.Field) error {
	if err == nil || Known(err) {
		return err
	}
	logger.Error(op+" failed", append(fields, zap.Error(err))...)
	return fmt.Errorf("%w: %s: %v", ErrUnexpected, op, err)
}
