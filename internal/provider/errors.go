package provider

import (
	"fmt"
	"time"
)

// Kind is the pre-classified category of a failed provider call.
type Kind int

const (
	KindUnknown Kind = iota
	KindAuthenticationFailed
	KindRateLimited
	KindContextLengthExceeded
	KindModelNotFound
	KindServerError
	KindNetworkError
	KindInvalidRequest
	KindStreamClosed
)

var kindNames = map[Kind]string{
	KindUnknown:               "unknown",
	KindAuthenticationFailed:  "authentication_failed",
	KindRateLimited:           "rate_limited",
	KindContextLengthExceeded: "context_length_exceeded",
	KindModelNotFound:         "model_not_found",
	KindServerError:           "server_error",
	KindNetworkError:          "network_error",
	KindInvalidRequest:        "invalid_request",
	KindStreamClosed:          "stream_closed",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is a failed call to a model provider, already reduced to a Kind.
// RetryAfter is only meaningful for KindRateLimited; zero means the server
// did not say.
type Error struct {
	Kind       Kind
	Provider   string
	StatusCode int
	RetryAfter time.Duration
	Message    string
	Err        error
}

func (e *Error) Error() string {
	prefix := e.Kind.String()
	if e.Provider != "" {
		prefix = e.Provider + ": " + prefix
	}

	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}

	switch {
	case e.StatusCode != 0 && msg != "":
		return fmt.Sprintf("%s (status %d): %s", prefix, e.StatusCode, msg)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s (status %d)", prefix, e.StatusCode)
	case e.Kind == KindRateLimited && e.RetryAfter > 0 && msg == "":
		return fmt.Sprintf("%s: retry after %s", prefix, e.RetryAfter)
	case msg != "":
		return prefix + ": " + msg
	default:
		return prefix
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// HasRetryAfter reports whether the server supplied an explicit delay.
func (e *Error) HasRetryAfter() bool {
	return e.Kind == KindRateLimited && e.RetryAfter > 0
}

func NewAuthFailed(providerName, message string) *Error {
	return &Error{Kind: KindAuthenticationFailed, Provider: providerName, Message: message}
}

// NewRateLimited builds a rate-limit error. Pass 0 when no Retry-After was given.
func NewRateLimited(providerName string, retryAfter time.Duration) *Error {
	return &Error{Kind: KindRateLimited, Provider: providerName, RetryAfter: retryAfter}
}

func NewContextLengthExceeded(providerName, message string) *Error {
	return &Error{Kind: KindContextLengthExceeded, Provider: providerName, Message: message}
}

func NewModelNotFound(providerName, model string) *Error {
	return &Error{Kind: KindModelNotFound, Provider: providerName, Message: fmt.Sprintf("model %q not found", model)}
}

func NewServerError(providerName string, statusCode int, message string) *Error {
	return &Error{Kind: KindServerError, Provider: providerName, StatusCode: statusCode, Message: message}
}

func NewNetworkError(providerName string, err error) *Error {
	return &Error{Kind: KindNetworkError, Provider: providerName, Err: err}
}

func NewInvalidRequest(providerName, message string) *Error {
	return &Error{Kind: KindInvalidRequest, Provider: providerName, Message: message}
}

func NewStreamClosed(providerName, message string) *Error {
	return &Error{Kind: KindStreamClosed, Provider: providerName, Message: message}
}

func NewUnknown(providerName string, err error) *Error {
	return &Error{Kind: KindUnknown, Provider: providerName, Err: err}
}
