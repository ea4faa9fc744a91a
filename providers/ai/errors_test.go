package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestError_IsMatchesKindSentinels(t *testing.T) {
	retry := 3 * time.Second
	err := fmt.Errorf("wrapped: %w", NewRateLimitedError("openai", &retry, "slow down", nil))

	if !errors.Is(err, ErrRateLimited) {
		t.Fatal("expected errors.Is to match ErrRateLimited")
	}
	if errors.Is(err, ErrAPI) {
		t.Error("rate limit must not match ErrAPI")
	}
	if !IsRateLimited(err) || KindOf(err) != KindRateLimited {
		t.Error("predicates disagree with kind")
	}
	if got, ok := RetryAfterOf(err); !ok || got != retry {
		t.Errorf("RetryAfterOf() = %v, %v", got, ok)
	}
	if !strings.Contains(err.Error(), "retry after 3s") {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestError_UnwrapExposesCause(t *testing.T) {
	err := NewTransportError("anthropic", context.DeadlineExceeded)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("expected cause to be reachable")
	}
	if !IsTransport(err) {
		t.Error("expected transport kind")
	}
	if KindOf(errors.New("plain")) != "" {
		t.Error("plain errors have no kind")
	}
}

func TestError_Messages(t *testing.T) {
	testCases := []struct {
		err  *Error
		want string
	}{
		{NewAPIError("anthropic", 400, "max_tokens: too large", nil), "anthropic: API error (status 400): max_tokens: too large"},
		{NewAuthError("openai", "API key is not configured"), "openai: authentication error: API key is not configured"},
		{NewNotConfiguredError("gemini"), "provider not configured: gemini"},
		{NewStreamError("openai", "", errors.New("eof")), "openai: stream error: eof"},
	}
	for _, testCase := range testCases {
		if got := testCase.err.Error(); got != testCase.want {
			t.Errorf("Error() = %q, want %q", got, testCase.want)
		}
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	testCases := []struct {
		name  string
		value string
		want  *time.Duration
	}{
		{name: "absent", value: ""},
		{name: "garbage", value: "soon"},
		{name: "negative", value: "-1"},
		{name: "seconds", value: "12", want: durationPtr(12 * time.Second)},
		{name: "fractional seconds", value: "1.5"},
		{name: "not a number", value: "NaN"},
		{name: "infinity", value: "Inf"},
		{name: "exponent", value: "1e300"},
		{name: "negative integer", value: "-5"},
		{name: "huge seconds", value: "99999999999999", want: durationPtr(24 * time.Hour)},
		{name: "far date", value: now.Add(72 * time.Hour).Format(http.TimeFormat), want: durationPtr(24 * time.Hour)},
		{name: "http date", value: now.Add(30 * time.Second).Format(http.TimeFormat), want: durationPtr(30 * time.Second)},
		{name: "past date", value: now.Add(-time.Minute).Format(http.TimeFormat), want: durationPtr(0)},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			got := ParseRetryAfter(testCase.value, now)
			switch {
			case testCase.want == nil && got != nil:
				t.Errorf("expected nil, got %v", *got)
			case testCase.want != nil && got == nil:
				t.Errorf("expected %v, got nil", *testCase.want)
			case testCase.want != nil && *got != *testCase.want:
				t.Errorf("expected %v, got %v", *testCase.want, *got)
			}
		})
	}
}

func durationPtr(d time.Duration) *time.Duration { return &d }
