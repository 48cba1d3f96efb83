// Package apierr provides shared error sentinels and retry infrastructure
// for the HTTP-based collaborators (conversion server, transcription API).
// Provider-specific failures are classified into these sentinels at the
// adapter boundary.
//
// Adapters map HTTP status codes with ClassifyStatus, and callers check
// with errors.Is(err, apierr.ErrRateLimit) etc.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for API interaction failures.
var (
	// ErrRateLimit indicates the API rate limit was exceeded (temporary, retryable).
	ErrRateLimit = errors.New("rate limit exceeded")

	// ErrQuotaExceeded indicates the API quota was exceeded (billing issue, not retryable).
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrTimeout indicates a request timed out.
	ErrTimeout = errors.New("request timeout")

	// ErrAuthFailed indicates API authentication failed (invalid key).
	ErrAuthFailed = errors.New("authentication failed")

	// ErrBadRequest indicates a client error (4xx) that is not otherwise classified.
	ErrBadRequest = errors.New("bad request")

	// ErrServer indicates a 5xx response (temporary, retryable).
	ErrServer = errors.New("server error")
)

// ClassifyStatus maps an HTTP status code to a sentinel, or nil for 2xx/3xx.
// body is included in the message to keep the server's diagnostic.
func ClassifyStatus(code int, body string) error {
	var sentinel error
	switch {
	case code < 400:
		return nil
	case code == http.StatusTooManyRequests:
		sentinel = ErrRateLimit
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		sentinel = ErrAuthFailed
	case code == http.StatusPaymentRequired:
		sentinel = ErrQuotaExceeded
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		sentinel = ErrTimeout
	case code >= 500:
		sentinel = ErrServer
	default:
		sentinel = ErrBadRequest
	}
	if body == "" {
		return fmt.Errorf("HTTP %d: %w", code, sentinel)
	}
	return fmt.Errorf("HTTP %d: %s: %w", code, body, sentinel)
}

// IsRetryable reports whether err is a transient API failure.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimit) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrServer)
}
