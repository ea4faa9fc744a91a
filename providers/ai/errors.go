package ai

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrorKind classifies an Error.
type ErrorKind string

const (
	// KindTransport covers connection, TLS, timeout and cancellation failures.
	KindTransport ErrorKind = "transport"
	// KindRateLimited is HTTP 429, with an optional retry-after hint.
	KindRateLimited ErrorKind = "rate_limited"
	// KindAPI is any other non-2xx answer from the vendor.
	KindAPI ErrorKind = "api"
	// KindAuth means credentials are missing or unusable before dispatch.
	KindAuth ErrorKind = "auth"
	// KindSerialization means a request could not be encoded or a response decoded.
	KindSerialization ErrorKind = "serialization"
	// KindStream is a mid-stream vendor error or an incomplete stream.
	KindStream ErrorKind = "stream"
	// KindNotConfigured means no provider exists under the requested name.
	KindNotConfigured ErrorKind = "not_configured"
	// KindUnsupported means the operation is not available for this provider.
	KindUnsupported ErrorKind = "unsupported"
)

// Error is the single error type returned by providers. Status is set for
// KindAPI and KindRateLimited, RetryAfter only when the vendor supplied one,
// Raw holds the untouched error body when there was one.
type Error struct {
	Kind       ErrorKind
	Provider   string
	Status     int
	Message    string
	RetryAfter *time.Duration
	Raw        []byte
	Cause      error
}

// Sentinels for errors.Is matching by kind:
//
//	if errors.Is(err, ai.ErrRateLimited) { ... }
var (
	ErrTransport     = &Error{Kind: KindTransport}
	ErrRateLimited   = &Error{Kind: KindRateLimited}
	ErrAPI           = &Error{Kind: KindAPI}
	ErrAuth          = &Error{Kind: KindAuth}
	ErrSerialization = &Error{Kind: KindSerialization}
	ErrStream        = &Error{Kind: KindStream}
	ErrNotConfigured = &Error{Kind: KindNotConfigured}
	ErrUnsupported   = &Error{Kind: KindUnsupported}
)

func (e *Error) Error() string {
	var builder strings.Builder
	if e.Provider != "" {
		builder.WriteString(e.Provider)
		builder.WriteString(": ")
	}

	switch e.Kind {
	case KindTransport:
		builder.WriteString("transport error")
	case KindRateLimited:
		builder.WriteString("rate limited")
		if e.RetryAfter != nil {
			fmt.Fprintf(&builder, " (retry after %s)", *e.RetryAfter)
		}
	case KindAPI:
		fmt.Fprintf(&builder, "API error (status %d)", e.Status)
	case KindAuth:
		builder.WriteString("authentication error")
	case KindSerialization:
		builder.WriteString("serialization error")
	case KindStream:
		builder.WriteString("stream error")
	case KindNotConfigured:
		builder.WriteString("provider not configured")
	case KindUnsupported:
		builder.WriteString("unsupported")
	default:
		builder.WriteString(string(e.Kind))
	}

	switch {
	case e.Message != "":
		builder.WriteString(": ")
		builder.WriteString(e.Message)
	case e.Cause != nil:
		builder.WriteString(": ")
		builder.WriteString(e.Cause.Error())
	}
	return builder.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error of the same kind, so the package sentinels work with
// errors.Is.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) ErrorKind {
	var providerErr *Error
	if errors.As(err, &providerErr) {
		return providerErr.Kind
	}
	return ""
}

func IsTransport(err error) bool     { return KindOf(err) == KindTransport }
func IsRateLimited(err error) bool   { return KindOf(err) == KindRateLimited }
func IsAPI(err error) bool           { return KindOf(err) == KindAPI }
func IsAuth(err error) bool          { return KindOf(err) == KindAuth }
func IsSerialization(err error) bool { return KindOf(err) == KindSerialization }
func IsStream(err error) bool        { return KindOf(err) == KindStream }

// RetryAfterOf returns the retry-after hint of a rate-limit error.
func RetryAfterOf(err error) (time.Duration, bool) {
	var providerErr *Error
	if errors.As(err, &providerErr) && providerErr.Kind == KindRateLimited && providerErr.RetryAfter != nil {
		return *providerErr.RetryAfter, true
	}
	return 0, false
}

func NewTransportError(provider string, cause error) *Error {
	return &Error{Kind: KindTransport, Provider: provider, Cause: cause}
}

func NewAPIError(provider string, status int, message string, raw []byte) *Error {
	return &Error{Kind: KindAPI, Provider: provider, Status: status, Message: message, Raw: raw}
}

func NewRateLimitedError(provider string, retryAfter *time.Duration, message string, raw []byte) *Error {
	return &Error{Kind: KindRateLimited, Provider: provider, Status: http.StatusTooManyRequests, RetryAfter: retryAfter, Message: message, Raw: raw}
}

func NewAuthError(provider, message string) *Error {
	return &Error{Kind: KindAuth, Provider: provider, Message: message}
}

func NewSerializationError(provider, message string, cause error) *Error {
	return &Error{Kind: KindSerialization, Provider: provider, Message: message, Cause: cause}
}

func NewStreamError(provider, message string, cause error) *Error {
	return &Error{Kind: KindStream, Provider: provider, Message: message, Cause: cause}
}

func NewNotConfiguredError(name string) *Error {
	return &Error{Kind: KindNotConfigured, Message: name}
}

func NewUnsupportedError(provider, message string) *Error {
	return &Error{Kind: KindUnsupported, Provider: provider, Message: message}
}

// maxRetryAfter caps absurd delay-seconds values.
const maxRetryAfter = 24 * time.Hour

// ParseRetryAfter reads a Retry-After header value, which is either an integer
// number of seconds or an HTTP date. It returns nil when the value is absent or
// unparseable. Dates in the past yield zero and delays are capped at a day.
func ParseRetryAfter(value string, now time.Time) *time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}

	if seconds, err := strconv.ParseInt(value, 10, 64); err == nil {
		if seconds < 0 {
			return nil
		}
		duration := maxRetryAfter
		if seconds < int64(maxRetryAfter/time.Second) {
			duration = time.Duration(seconds) * time.Second
		}
		return &duration
	}

	if at, err := http.ParseTime(value); err == nil {
		duration := min(max(at.Sub(now), 0), maxRetryAfter)
		return &duration
	}
	return nil
}
