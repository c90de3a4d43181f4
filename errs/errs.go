// Package errs defines the error taxonomy shared by the REST and
// streaming layers.
package errs

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// AuthError indicates a failed login or rejected credentials.
type AuthError struct {
	Message string
	Cause   error
}

func (e *AuthError) Error() string {
	if e.Message == "" {
		return "authentication failed"
	}
	return "authentication failed: " + e.Message
}

func (e *AuthError) Unwrap() error { return e.Cause }

// ConfigError indicates invalid or missing client configuration.
// Configuration errors fail fast and are never retried.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string { return "config: " + e.Message }

// HTTPError is a non-2xx REST response that is not covered by a more
// specific error type.
type HTTPError struct {
	Status  int
	Message string
	Body    []byte
}

func (e *HTTPError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("dxtrade api error %d", e.Status)
	}
	return fmt.Sprintf("dxtrade api error %d: %s", e.Status, e.Message)
}

// RateLimitError is returned when the local token bucket has no capacity
// or the server answered 429. RetryAfter is the suggested wait.
type RateLimitError struct {
	RetryAfter time.Duration
	Remaining  float64
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry after %s", e.RetryAfter)
}

// TimeoutError wraps a request or connect deadline expiry.
type TimeoutError struct {
	Op    string
	Cause error
}

func (e *TimeoutError) Error() string { return "timeout: " + e.Op }

func (e *TimeoutError) Unwrap() error { return e.Cause }

// NetworkError wraps a transport-level failure (refused connection,
// reset, DNS failure).
type NetworkError struct {
	Op    string
	Cause error
}

func (e *NetworkError) Error() string {
	if e.Cause != nil {
		return "network error: " + e.Op + ": " + e.Cause.Error()
	}
	return "network error: " + e.Op
}

func (e *NetworkError) Unwrap() error { return e.Cause }

// ValidationError indicates a response or request whose shape does not
// match the expected model.
type ValidationError struct {
	Message     string
	FieldErrors map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.FieldErrors) == 0 {
		return "validation: " + e.Message
	}
	return fmt.Sprintf("validation: %s (%d field errors)", e.Message, len(e.FieldErrors))
}

// WebSocketError indicates a streaming transport failure.
type WebSocketError struct {
	Code   int
	Reason string
	Cause  error
}

func (e *WebSocketError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("websocket error %d: %s", e.Code, e.Reason)
	}
	if e.Reason != "" {
		return "websocket error: " + e.Reason
	}
	return "websocket error"
}

func (e *WebSocketError) Unwrap() error { return e.Cause }

// ClockDriftError reports local clock drift beyond the configured
// threshold. HMAC signatures composed with a drifting clock risk
// rejection, so the request that observed the drift fails.
type ClockDriftError struct {
	Drift     time.Duration
	Threshold time.Duration
}

func (e *ClockDriftError) Error() string {
	return fmt.Sprintf("clock drift %s exceeds threshold %s", e.Drift, e.Threshold)
}

// IsRetryable reports whether the request pipeline may retry after err.
// Retryable: timeouts, network errors, 5xx and 429 responses. Everything
// else propagates immediately.
func IsRetryable(err error) bool {
	var (
		timeoutErr *TimeoutError
		netErr     *NetworkError
		httpErr    *HTTPError
		rateErr    *RateLimitError
	)
	switch {
	case errors.As(err, &timeoutErr):
		return true
	case errors.As(err, &netErr):
		return true
	case errors.As(err, &rateErr):
		return true
	case errors.As(err, &httpErr):
		return httpErr.Status >= http.StatusInternalServerError ||
			httpErr.Status == http.StatusTooManyRequests
	}
	return false
}
