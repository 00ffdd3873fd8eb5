package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	agenterrors "github.com/Mikeyy1405/Writgoai.nl/internal/errors"
)

// MalformedToolArgsError reports a tool call whose arguments could not be
// parsed as JSON even after repair.
type MalformedToolArgsError struct {
	Tool string
	Raw  string
	Err  error
}

func (e *MalformedToolArgsError) Error() string {
	return fmt.Sprintf("tool %s returned malformed arguments: %v", e.Tool, e.Err)
}

func (e *MalformedToolArgsError) Unwrap() error {
	return e.Err
}

// parseToolArguments decodes a raw arguments blob. Strict JSON first, then
// one pass through jsonrepair for the truncated or single-quoted output some
// models produce.
func parseToolArguments(tool, raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}, nil
	}

	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err == nil {
		return args, nil
	}

	repaired, repairErr := jsonrepair.JSONRepair(raw)
	if repairErr != nil {
		return nil, &MalformedToolArgsError{Tool: tool, Raw: raw, Err: repairErr}
	}
	if err := json.Unmarshal([]byte(repaired), &args); err != nil {
		return nil, &MalformedToolArgsError{Tool: tool, Raw: raw, Err: err}
	}
	return args, nil
}

// wrapRequestError classifies transport-level failures. Context cancellation
// passes through untouched so callers can distinguish shutdown from flaky
// upstreams; everything else at this layer is worth a retry.
func wrapRequestError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return agenterrors.NewTransientError(err, "LLM request timed out. Retrying with backoff.")
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return agenterrors.NewTransientError(err, "LLM request timed out. Retrying with backoff.")
	}
	return agenterrors.NewTransientError(err, "LLM request failed to reach the gateway. Retrying.")
}

// mapHTTPError converts a non-2xx gateway response into a classified error.
// 429 and 5xx are transient (429 carrying any Retry-After hint); remaining
// 4xx are permanent.
func mapHTTPError(statusCode int, body []byte, headers http.Header) error {
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(statusCode)
	}
	baseErr := fmt.Errorf("HTTP %d: %s", statusCode, msg)

	switch {
	case statusCode == http.StatusTooManyRequests:
		return &agenterrors.TransientError{
			Err:        baseErr,
			StatusCode: statusCode,
			RetryAfter: parseRetryAfter(headers.Get("Retry-After")),
			Message:    "API rate limit reached. Retrying with exponential backoff.",
		}
	case statusCode == http.StatusRequestTimeout || statusCode == http.StatusGatewayTimeout:
		return &agenterrors.TransientError{
			Err:        baseErr,
			StatusCode: statusCode,
			Message:    "Gateway timed out. Retrying request.",
		}
	case statusCode == http.StatusUnauthorized:
		return &agenterrors.PermanentError{
			Err:        baseErr,
			StatusCode: statusCode,
			Message:    "Authentication failed. Please check the AIML API key.",
		}
	case statusCode == http.StatusForbidden:
		return &agenterrors.PermanentError{
			Err:        baseErr,
			StatusCode: statusCode,
			Message:    "Permission denied for this model or resource.",
		}
	case statusCode >= 500:
		return &agenterrors.TransientError{
			Err:        baseErr,
			StatusCode: statusCode,
			Message:    fmt.Sprintf("Server error (%d). Retrying request.", statusCode),
		}
	case statusCode >= 400:
		return &agenterrors.PermanentError{
			Err:        baseErr,
			StatusCode: statusCode,
		}
	default:
		return &agenterrors.TransientError{
			Err:        baseErr,
			StatusCode: statusCode,
		}
	}
}

// parseRetryAfter reads an integer-seconds Retry-After value; anything else
// (dates, garbage, negatives) yields 0 and the caller falls back to its own
// backoff schedule.
func parseRetryAfter(value string) int {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds < 0 {
		return 0
	}
	return seconds
}
