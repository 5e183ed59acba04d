// Package gmail provides an HTTP client for the Gmail REST API with
// automatic retry, error classification, and OAuth2 session management.
package gmail

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNotLoggedIn is returned when no credential file exists on disk.
// It is detected before any network call is made.
var ErrNotLoggedIn = errors.New("gmail: not logged in")

// ErrReauthRequired is returned when the stored refresh token has been
// revoked or has expired, so silent refresh cannot succeed. The caller
// should prompt the user to run login again.
var ErrReauthRequired = errors.New("gmail: reauthorization required")

// Sentinel errors for HTTP status code classification.
// Use errors.Is(err, gmail.ErrNotFound) to check.
var (
	ErrBadRequest   = errors.New("gmail: bad request")
	ErrUnauthorized = errors.New("gmail: unauthorized")
	ErrForbidden    = errors.New("gmail: forbidden")
	ErrNotFound     = errors.New("gmail: not found")
	ErrThrottled    = errors.New("gmail: rate limited")
	ErrServerError  = errors.New("gmail: server error")
)

// APIError wraps a sentinel error with the HTTP status code and the
// API error message body for debugging. Gmail's status and body are
// passed through unmodified.
type APIError struct {
	StatusCode int
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gmail: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for 2xx success codes.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}

// isRetryable reports whether the given HTTP status code should be retried.
func isRetryable(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
