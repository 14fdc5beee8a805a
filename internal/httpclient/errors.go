package httpclient

import (
	"context"
	"errors"
	"fmt"
)

// HTTPError represents an HTTP error response.
type HTTPError struct {
	StatusCode int
	URL        string
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d from %s: %s", e.StatusCode, e.URL, e.Message)
}

// IsRateLimited returns true if this is a rate limit error.
func (e *HTTPError) IsRateLimited() bool {
	return e.StatusCode == 429
}

// IsServerError returns true if this is a server error.
func (e *HTTPError) IsServerError() bool {
	return e.StatusCode >= 500
}

// IsNotFound returns true for 404 responses.
func (e *HTTPError) IsNotFound() bool {
	return e.StatusCode == 404
}

// TransportError wraps failures below the HTTP layer: DNS, connection resets,
// timeouts.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("request %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Timeout reports whether the transport failure was a timeout.
func (e *TransportError) Timeout() bool { return isTimeout(e.Err) }

// IsRetryable determines if an error should be retried: rate limiting, server
// errors, timeouts and connection failures. Caller cancellation is final.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.IsRateLimited() || httpErr.IsServerError()
	}
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return true
	}
	return isTimeout(err)
}

// ErrorType classifies an error for result descriptors and metrics labels.
func ErrorType(err error) string {
	var httpErr *HTTPError
	var transportErr *TransportError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &httpErr):
		switch {
		case httpErr.StatusCode == 401 || httpErr.StatusCode == 403:
			return "auth"
		case httpErr.IsRateLimited():
			return "rate_limited"
		case httpErr.IsServerError():
			return "upstream"
		default:
			return "client"
		}
	case errors.As(err, &transportErr):
		if transportErr.Timeout() {
			return "timeout"
		}
		return "network"
	case isTimeout(err):
		return "timeout"
	default:
		return "internal"
	}
}
