// Package errors classifies failures into transient and permanent kinds and
// provides the retry and circuit-breaker machinery built on that split.
package errors

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"
)

// TransientError represents an error that can be retried.
type TransientError struct {
	Err        error
	RetryAfter int    // Seconds to wait before retry (from Retry-After header)
	StatusCode int    // HTTP status code if applicable
	Message    string // Human-readable message surfaced to observations
}

func (e *TransientError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("transient error: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// PermanentError represents an error that should not be retried.
type PermanentError struct {
	Err        error
	StatusCode int
	Message    string
}

func (e *PermanentError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("permanent error: %v", e.Err)
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// DegradedError represents an error where the caller can continue with
// reduced functionality, e.g. a circuit breaker rejecting requests.
type DegradedError struct {
	Err     error
	Message string
}

func (e *DegradedError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("degraded error: %v", e.Err)
}

func (e *DegradedError) Unwrap() error {
	return e.Err
}

// NewTransientError creates a transient error with a readable message.
func NewTransientError(err error, message string) *TransientError {
	return &TransientError{Err: err, Message: message}
}

// NewPermanentError creates a permanent error with a readable message.
func NewPermanentError(err error, message string) *PermanentError {
	return &PermanentError{Err: err, Message: message}
}

// NewDegradedError creates a degraded error with a readable message.
func NewDegradedError(err error, message string) *DegradedError {
	return &DegradedError{Err: err, Message: message}
}

// IsTransient reports whether an error is retryable. Explicit markers win;
// otherwise network-level failures count as transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var transient *TransientError
	if errors.As(err, &transient) {
		return true
	}

	var permanent *PermanentError
	if errors.As(err, &permanent) {
		return false
	}

	if isNetworkError(err) || isSyscallError(err) {
		return true
	}

	return false
}

// IsPermanent reports whether an error is explicitly non-retryable.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	var permanent *PermanentError
	return errors.As(err, &permanent)
}

// IsDegraded reports whether an error allows degraded continuation.
func IsDegraded(err error) bool {
	var degraded *DegradedError
	return errors.As(err, &degraded)
}

// TransientHTTPStatus reports whether an HTTP status code warrants a retry.
func TransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// FormatForModel renders an error as a short message suitable for feeding
// back to the model as an observation. Typed messages win; common network
// failures get a plain-language hint.
func FormatForModel(err error) string {
	if err == nil {
		return ""
	}

	var transient *TransientError
	if errors.As(err, &transient) && transient.Message != "" {
		return transient.Message
	}

	var permanent *PermanentError
	if errors.As(err, &permanent) && permanent.Message != "" {
		return permanent.Message
	}

	var degraded *DegradedError
	if errors.As(err, &degraded) && degraded.Message != "" {
		return degraded.Message
	}

	lowerErr := strings.ToLower(err.Error())

	switch {
	case strings.Contains(lowerErr, "connection refused"):
		return "Service is not reachable. Please check if the required service is running."
	case strings.Contains(lowerErr, "timeout") || strings.Contains(lowerErr, "deadline exceeded"):
		return "Request timed out. The service may be slow or unreachable."
	case strings.Contains(lowerErr, "no such host") || strings.Contains(lowerErr, "dns"):
		return "Host could not be resolved. Please check the configured URL."
	}

	return err.Error()
}

func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Temporary()
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"connection refused",
		"timeout",
		"deadline exceeded",
		"connection reset",
		"broken pipe",
	} {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

func isSyscallError(err error) bool {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.EPIPE,
			syscall.ETIMEDOUT, syscall.ENETUNREACH, syscall.EHOSTUNREACH:
			return true
		}
	}
	return false
}
