package slog

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/opensesh/sesh/providers/observability"
)

func newBufferedObserver() (*Observer, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return New(logger), &buf
}

func TestObserver_StartSpan_AttachesSpanToContext(t *testing.T) {
	obs, buf := newBufferedObserver()

	ctx, span := obs.StartSpan(context.Background(), "llm.request",
		observability.String(observability.AttrLLMProvider, "anthropic"),
	)
	if span == nil {
		t.Fatal("StartSpan returned nil span")
	}
	if observability.SpanFromContext(ctx) != span {
		t.Error("expected the returned context to carry the span")
	}

	output := buf.String()
	if !strings.Contains(output, "span.start") || !strings.Contains(output, "anthropic") {
		t.Errorf("expected span start with attributes, got: %s", output)
	}
}

func TestObserver_Span_EndLogsAccumulatedAttributesOnce(t *testing.T) {
	obs, buf := newBufferedObserver()

	_, span := obs.StartSpan(context.Background(), "llm.request")
	span.SetAttributes(observability.Int(observability.AttrLLMTokensOutput, 12))
	span.SetStatus(observability.StatusOK, "")
	span.End()
	span.End()

	output := buf.String()
	if strings.Count(output, "span.end") != 1 {
		t.Errorf("expected exactly one span.end, got: %s", output)
	}
	if !strings.Contains(output, "llm.tokens.output=12") {
		t.Errorf("expected token attribute in span end, got: %s", output)
	}
	if !strings.Contains(output, "status=ok") {
		t.Errorf("expected status in span end, got: %s", output)
	}
}

func TestObserver_Span_RecordError(t *testing.T) {
	obs, buf := newBufferedObserver()

	_, span := obs.StartSpan(context.Background(), "llm.request")
	span.RecordError(nil)
	if strings.Contains(buf.String(), "Span error") {
		t.Fatal("nil error must not be logged")
	}

	span.RecordError(errors.New("boom"))
	if !strings.Contains(buf.String(), "level=ERROR") || !strings.Contains(buf.String(), "boom") {
		t.Errorf("expected error log, got: %s", buf.String())
	}
}

func TestObserver_LogLevels(t *testing.T) {
	var buf bytes.Buffer
	obs := New(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn})))

	obs.Debug(context.Background(), "hidden debug")
	obs.Info(context.Background(), "hidden info")
	obs.Warn(context.Background(), "visible warn", observability.String("k", "v"))
	obs.Error(context.Background(), "visible error")

	output := buf.String()
	if strings.Contains(output, "hidden") {
		t.Errorf("expected debug and info to be filtered, got: %s", output)
	}
	if !strings.Contains(output, "visible warn") || !strings.Contains(output, "k=v") || !strings.Contains(output, "visible error") {
		t.Errorf("expected warn and error output, got: %s", output)
	}
}

func TestGetLogLevelFromEnv(t *testing.T) {
	testCases := []struct {
		name     string
		seshEnv  string
		logEnv   string
		expected slog.Level
	}{
		{name: "default is info", expected: slog.LevelInfo},
		{name: "SESH_LOG_LEVEL wins", seshEnv: "debug", logEnv: "error", expected: slog.LevelDebug},
		{name: "LOG_LEVEL fallback", logEnv: "WARNING", expected: slog.LevelWarn},
		{name: "unknown falls back to info", seshEnv: "verbose", expected: slog.LevelInfo},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			t.Setenv("SESH_LOG_LEVEL", testCase.seshEnv)
			t.Setenv("LOG_LEVEL", testCase.logEnv)
			if got := GetLogLevelFromEnv(); got != testCase.expected {
				t.Errorf("GetLogLevelFromEnv() = %v, want %v", got, testCase.expected)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	testCases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" INFO ":  slog.LevelInfo,
		"":        slog.LevelInfo,
		"Warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for input, want := range testCases {
		got, err := ParseLogLevel(input)
		if err != nil || got != want {
			t.Errorf("ParseLogLevel(%q) = %v, %v; want %v", input, got, err, want)
		}
	}
	if _, err := ParseLogLevel("verbose"); err == nil {
		t.Error("unknown levels must be rejected")
	}
}
