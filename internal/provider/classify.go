package provider

import (
	"bytes"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"google.golang.org/genai"
)

// maxBodyScan bounds how much of an error body is inspected for phrases.
const maxBodyScan = 8 * 1024

var (
	contextLengthPhrases = [][]byte{
		[]byte("context length"),
		[]byte("context_length_exceeded"),
		[]byte("maximum context"),
		[]byte("context window"),
		[]byte("too many tokens"),
		[]byte("prompt is too long"),
	}
	modelNotFoundPhrases = [][]byte{
		[]byte("model not found"),
		[]byte("model_not_found"),
		[]byte("model does not exist"),
		[]byte("unsupported model"),
	}
)

// FromHTTPResponse classifies a non-2xx upstream response by status code,
// headers and the first few KiB of its body.
func FromHTTPResponse(providerName string, statusCode int, header http.Header, body []byte) *Error {
	if len(body) > maxBodyScan {
		body = body[:maxBodyScan]
	}
	bodyLower := bytes.ToLower(body)
	msg := strings.TrimSpace(string(body))

	e := &Error{Provider: providerName, StatusCode: statusCode, Message: msg}

	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		e.Kind = KindAuthenticationFailed
	case statusCode == http.StatusTooManyRequests:
		e.Kind = KindRateLimited
		if header != nil {
			if d, ok := ParseRetryAfter(header.Get("Retry-After"), time.Now()); ok {
				e.RetryAfter = d
			}
		}
	case statusCode == http.StatusNotFound || containsAny(bodyLower, modelNotFoundPhrases):
		e.Kind = KindModelNotFound
	case statusCode == http.StatusBadRequest ||
		statusCode == http.StatusRequestEntityTooLarge ||
		statusCode == http.StatusUnprocessableEntity:
		if containsAny(bodyLower, contextLengthPhrases) {
			e.Kind = KindContextLengthExceeded
		} else {
			e.Kind = KindInvalidRequest
		}
	case statusCode >= 500 && statusCode < 600:
		e.Kind = KindServerError
	default:
		e.Kind = KindUnknown
	}
	return e
}

// MaxRetryAfter caps server-supplied delays.
const MaxRetryAfter = time.Hour

// ParseRetryAfter accepts either delta-seconds (digits only) or an HTTP-date.
// Dates in the past yield a zero duration with ok=true. Results are clamped
// to MaxRetryAfter.
func ParseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}

	if isDigits(value) {
		secs, err := strconv.ParseUint(value, 10, 64)
		if err != nil || secs > uint64(MaxRetryAfter/time.Second) {
			// Out-of-range digits are still a valid, very long delay.
			return MaxRetryAfter, true
		}
		return time.Duration(secs) * time.Second, true
	}

	when, err := http.ParseTime(value)
	if err != nil {
		return 0, false
	}
	d := when.Sub(now)
	switch {
	case d <= 0:
		return 0, true
	case d > MaxRetryAfter:
		return MaxRetryAfter, true
	}
	return d, true
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// FromError reduces an arbitrary error returned by a provider client to an
// *Error. Already-classified errors are returned as is; SDK errors are mapped
// through their HTTP status; transport failures become network or
// stream-closed errors. Anything else is KindUnknown.
func FromError(providerName string, err error) *Error {
	if err == nil {
		return nil
	}

	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}

	var anthropicErr *anthropic.Error
	if errors.As(err, &anthropicErr) {
		var header http.Header
		if anthropicErr.Response != nil {
			header = anthropicErr.Response.Header
		}
		classified := FromHTTPResponse(providerName, anthropicErr.StatusCode, header, []byte(anthropicErr.RawJSON()))
		classified.Err = err
		return classified
	}

	var genaiErr genai.APIError
	if errors.As(err, &genaiErr) {
		return fromGenAI(providerName, genaiErr, err)
	}
	var genaiPtr *genai.APIError
	if errors.As(err, &genaiPtr) && genaiPtr != nil {
		return fromGenAI(providerName, *genaiPtr, err)
	}

	if errors.Is(err, io.ErrUnexpectedEOF) {
		return &Error{Kind: KindStreamClosed, Provider: providerName, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return NewNetworkError(providerName, err)
	}

	return NewUnknown(providerName, err)
}

func fromGenAI(providerName string, apiErr genai.APIError, cause error) *Error {
	body := apiErr.Message
	if apiErr.Status != "" {
		body = apiErr.Status + ": " + body
	}
	classified := FromHTTPResponse(providerName, apiErr.Code, nil, []byte(body))
	// Gemini reports exhausted context as INVALID_ARGUMENT with a token count message.
	if classified.Kind == KindInvalidRequest && strings.Contains(strings.ToLower(apiErr.Message), "token count") {
		classified.Kind = KindContextLengthExceeded
	}
	classified.Err = cause
	return classified
}

func containsAny(haystack []byte, needles [][]byte) bool {
	for _, n := range needles {
		if bytes.Contains(haystack, n) {
			return true
		}
	}
	return false
}
