// Package apperror defines the error taxonomy shared by the health metrics
// engine and the HTTP layer. Domain code wraps one of the sentinels with
// fmt.Errorf("%w: ...") and callers test with errors.Is.
package apperror

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

var (
	// ErrInvalidInput marks a request rejected at the boundary: unknown metric
	// type, non-finite value, malformed date range, illegal state transition.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound marks a missing subject, sample, or alert.
	ErrNotFound = errors.New("not found")
	// ErrUnavailable marks a store outage or an exceeded time budget. Callers
	// retry it; it is never a "no data" answer.
	ErrUnavailable = errors.New("unavailable")
	// ErrForbidden marks a caller acting on data it does not own.
	ErrForbidden = errors.New("forbidden")
	// ErrConflict marks a write that lost a race with a concurrent update.
	ErrConflict = errors.New("conflict")
)

// Invalid returns an ErrInvalidInput with a formatted detail.
func Invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// NotFound returns an ErrNotFound naming the missing entity.
func NotFound(entity string) error {
	return fmt.Errorf("%w: %s", ErrNotFound, entity)
}

// Forbidden returns an ErrForbidden with a formatted detail.
func Forbidden(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrForbidden, fmt.Sprintf(format, args...))
}

// Conflict returns an ErrConflict with a formatted detail.
func Conflict(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// Unavailable wraps a store or deadline error so it classifies as
// ErrUnavailable while keeping the cause inspectable.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
}

// IsRetryable reports whether the caller should retry later.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable) ||
		errors.Is(err, context.DeadlineExceeded)
}

// HTTPStatus maps an error to the status code the API returns for it.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case IsRetryable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ToHTTP converts err into an echo.HTTPError. Unavailable errors get a body
// that tells dashboards to show a retry affordance instead of empty data.
func ToHTTP(err error) *echo.HTTPError {
	code := HTTPStatus(err)
	switch code {
	case http.StatusServiceUnavailable:
		return echo.NewHTTPError(code, map[string]interface{}{
			"error":     "data temporarily unavailable",
			"retryable": true,
		})
	case http.StatusInternalServerError:
		return echo.NewHTTPError(code, "internal server error")
	default:
		return echo.NewHTTPError(code, err.Error())
	}
}
