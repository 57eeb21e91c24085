package model

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// FromStatus maps an HTTP status code and message to a ProviderError. It is
// shared by the vendor adapters; retryAfter is passed through for 429.
func FromStatus(status int, message string, retryAfter *time.Duration, modelID string) ProviderError {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &AuthenticationFailedError{Message: message}
	case status == http.StatusTooManyRequests:
		return &RateLimitedError{RetryAfter: retryAfter}
	case status == http.StatusNotFound:
		return &ModelNotFoundError{Model: modelID}
	case status == http.StatusRequestEntityTooLarge:
		return &ContextLengthExceededError{}
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		if IsContextLengthMessage(message) {
			return &ContextLengthExceededError{}
		}
		return &InvalidRequestError{Message: message}
	case status >= 500:
		return &ServerError{Status: status}
	default:
		return &UnknownError{Err: fmt.Errorf("status %d: %s", status, message)}
	}
}

var contextLengthHints = []string{
	"context length",
	"context_length_exceeded",
	"maximum context",
	"prompt is too long",
	"too many tokens",
}

// IsContextLengthMessage reports whether a provider message describes a
// prompt that does not fit the model's context window.
func IsContextLengthMessage(msg string) bool {
	lower := strings.ToLower(msg)
	for _, h := range contextLengthHints {
		if strings.Contains(lower, h) {
			return true
		}
	}
	return false
}

// ParseRetryAfter reads a Retry-After header value given either in seconds
// or as an HTTP date. It returns nil when the value is absent or unusable.
func ParseRetryAfter(v string, now time.Time) *time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil && secs >= 0 {
		d := time.Duration(secs * float64(time.Second))
		return &d
	}
	if t, err := http.ParseTime(v); err == nil {
		d := t.Sub(now)
		if d < 0 {
			d = 0
		}
		return &d
	}
	return nil
}
