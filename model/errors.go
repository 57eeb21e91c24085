package model

import (
	"errors"
	"fmt"
	"time"
)

// ProviderError is the closed set of failures a provider call can produce.
// Concrete variants implement the unexported isProviderError marker so that
// the failover classifier can switch over them exhaustively.
type ProviderError interface {
	error
	isProviderError()
}

// AuthenticationFailedError reports rejected or expired credentials.
type AuthenticationFailedError struct {
	Message string
}

func (e *AuthenticationFailedError) Error() string {
	return "authentication failed: " + e.Message
}

func (*AuthenticationFailedError) isProviderError() {}

// RateLimitedError reports throttling. RetryAfter is nil when the provider
// gave no hint.
type RateLimitedError struct {
	RetryAfter *time.Duration
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter != nil {
		return fmt.Sprintf("rate limited (retry after %s)", *e.RetryAfter)
	}
	return "rate limited"
}

func (*RateLimitedError) isProviderError() {}

// ContextLengthExceededError reports a prompt larger than the model window.
type ContextLengthExceededError struct {
	MaxTokens int
}

func (e *ContextLengthExceededError) Error() string {
	if e.MaxTokens > 0 {
		return fmt.Sprintf("context length exceeded (max %d tokens)", e.MaxTokens)
	}
	return "context length exceeded"
}

func (*ContextLengthExceededError) isProviderError() {}

// ModelNotFoundError reports an unknown or retired model id.
type ModelNotFoundError struct {
	Model string
}

func (e *ModelNotFoundError) Error() string { return "model not found: " + e.Model }

func (*ModelNotFoundError) isProviderError() {}

// ServerError reports a 5xx response.
type ServerError struct {
	Status int
}

func (e *ServerError) Error() string { return fmt.Sprintf("server error (status %d)", e.Status) }

func (*ServerError) isProviderError() {}

// NetworkError reports a transport failure before a response was received.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	if e.Err == nil {
		return "network error"
	}
	return "network error: " + e.Err.Error()
}

func (e *NetworkError) Unwrap() error { return e.Err }

func (*NetworkError) isProviderError() {}

// InvalidRequestError reports a request the provider refused as malformed.
type InvalidRequestError struct {
	Message string
}

func (e *InvalidRequestError) Error() string { return "invalid request: " + e.Message }

func (*InvalidRequestError) isProviderError() {}

// StreamClosedError reports a response stream that ended before completion.
type StreamClosedError struct{}

func (*StreamClosedError) Error() string { return "stream closed unexpectedly" }

func (*StreamClosedError) isProviderError() {}

// UnknownError wraps any failure that fits no other variant.
type UnknownError struct {
	Err error
}

func (e *UnknownError) Error() string {
	if e.Err == nil {
		return "unknown provider error"
	}
	return "unknown provider error: " + e.Err.Error()
}

func (e *UnknownError) Unwrap() error { return e.Err }

func (*UnknownError) isProviderError() {}

// AsProviderError extracts the ProviderError carried by err's chain. Errors
// outside the taxonomy are wrapped as *UnknownError; nil stays nil.
func AsProviderError(err error) ProviderError {
	if err == nil {
		return nil
	}
	var pe ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	return &UnknownError{Err: err}
}
