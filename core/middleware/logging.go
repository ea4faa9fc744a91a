package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/opensesh/sesh/internal/utils"
	"github.com/opensesh/sesh/providers/ai"
)

// LogLevel controls how much detail the logging middleware emits per call.
type LogLevel int

const (
	// LogLevelMinimal logs only provider, model, duration and token counts.
	LogLevelMinimal LogLevel = iota

	// LogLevelStandard adds the message and tool counts and the stop reason.
	LogLevelStandard

	// LogLevelVerbose adds the first message and the response text, each
	// truncated to 500 characters.
	//
	// WARNING: DO NOT use LogLevelVerbose in production. It logs raw prompt
	// and response text, which may contain sensitive user data.
	LogLevelVerbose
)

// truncateLen is the maximum content length included in verbose log output.
const truncateLen = utils.DefaultMaxStringLength

// ParseLogLevel maps "minimal", "standard" and "verbose" to a LogLevel.
// Anything else is LogLevelStandard.
func ParseLogLevel(level string) LogLevel {
	switch level {
	case "minimal":
		return LogLevelMinimal
	case "verbose":
		return LogLevelVerbose
	default:
		return LogLevelStandard
	}
}

// NewLoggingMiddleware creates a Config that logs before and after every
// call. For streams the completion entry is emitted when the sequence ends,
// whether by a terminal chunk, an error, or the caller breaking out.
//
// The logger must not be nil. Use slog.Default() if you have not configured
// a custom logger.
func NewLoggingMiddleware(logger *slog.Logger, level LogLevel) Config {
	return Config{
		Send:   buildSendLogging(logger, level),
		Stream: buildStreamLogging(logger, level),
	}
}

func buildSendLogging(logger *slog.Logger, level LogLevel) Middleware {
	return func(next SendFunc) SendFunc {
		return func(ctx context.Context, call Call) (*ai.ChatResponse, error) {
			logger.InfoContext(ctx, "llm chat", buildCallAttrs(call, level)...)

			start := time.Now()
			response, err := next(ctx, call)
			elapsed := time.Since(start)

			if err != nil {
				logger.ErrorContext(ctx, "llm chat failed", buildErrorAttrs(call, elapsed, err)...)
				return nil, err
			}

			logger.InfoContext(ctx, "llm chat completed", buildResponseAttrs(call, response, elapsed, level)...)
			return response, nil
		}
	}
}

func buildStreamLogging(logger *slog.Logger, level LogLevel) StreamMiddleware {
	return func(next StreamFunc) StreamFunc {
		return func(ctx context.Context, call Call) (*ai.ChatStream, error) {
			logger.InfoContext(ctx, "llm stream", buildCallAttrs(call, level)...)

			start := time.Now()
			stream, err := next(ctx, call)
			if err != nil {
				logger.ErrorContext(ctx, "llm stream failed", buildErrorAttrs(call, time.Since(start), err)...)
				return nil, err
			}

			return wrapStreamWithLogging(ctx, stream, logger, call, level, start), nil
		}
	}
}

// wrapStreamWithLogging returns a ChatStream whose iterator logs a completion
// entry at the terminal chunk, or an error entry on failure.
func wrapStreamWithLogging(
	ctx context.Context,
	stream *ai.ChatStream,
	logger *slog.Logger,
	call Call,
	level LogLevel,
	start time.Time,
) *ai.ChatStream {
	iteratorFunc := func(yield func(ai.ChatChunk, error) bool) {
		summary := streamSummary{model: call.Model}

		for chunk, err := range stream.Iter() {
			if err != nil {
				logger.ErrorContext(ctx, "llm stream failed", buildErrorAttrs(call, time.Since(start), err)...)
				yield(chunk, err)
				return
			}

			summary.observe(chunk)

			if !yield(chunk, nil) {
				logger.InfoContext(ctx, "llm stream abandoned",
					slog.String("provider", call.Provider),
					slog.String("model", summary.model),
					slog.Duration("duration", time.Since(start)),
					slog.Int("chunks", summary.chunks),
				)
				return
			}

			if chunk.IsTerminal() {
				break
			}
		}

		attrs := []any{
			slog.String("provider", call.Provider),
			slog.String("model", summary.model),
			slog.Duration("duration", time.Since(start)),
		}
		if summary.usage != nil {
			attrs = append(attrs,
				slog.Int("input_tokens", summary.usage.InputTokens),
				slog.Int("output_tokens", summary.usage.OutputTokens),
			)
		}
		if level >= LogLevelStandard {
			attrs = append(attrs, slog.Int("chunks", summary.chunks))
			if summary.stopReason != nil {
				attrs = append(attrs, slog.String("stop_reason", string(*summary.stopReason)))
			}
		}
		logger.InfoContext(ctx, "llm stream completed", attrs...)
	}

	return ai.NewChatStream(iteratorFunc)
}

func buildCallAttrs(call Call, level LogLevel) []any {
	attrs := []any{
		slog.String("provider", call.Provider),
		slog.String("model", call.Model),
	}

	if level >= LogLevelStandard {
		attrs = append(attrs,
			slog.Int("message_count", len(call.Messages)),
			slog.Int("tool_count", len(call.Tools)),
		)
	}

	if level >= LogLevelVerbose && len(call.Messages) > 0 {
		first := call.Messages[0]
		attrs = append(attrs,
			slog.String("first_message_role", string(first.Role)),
			slog.String("first_message_content", utils.TruncateString(first.PlainText(), truncateLen)),
		)
	}

	return attrs
}

func buildErrorAttrs(call Call, elapsed time.Duration, err error) []any {
	attrs := []any{
		slog.String("provider", call.Provider),
		slog.String("model", call.Model),
		slog.Duration("duration", elapsed),
		slog.String("error", err.Error()),
	}
	if kind := ai.KindOf(err); kind != "" {
		attrs = append(attrs, slog.String("error_kind", string(kind)))
	}
	return attrs
}

func buildResponseAttrs(call Call, response *ai.ChatResponse, elapsed time.Duration, level LogLevel) []any {
	attrs := []any{
		slog.String("provider", call.Provider),
		slog.String("model", response.Model),
		slog.Duration("duration", elapsed),
		slog.Int("input_tokens", response.Usage.InputTokens),
		slog.Int("output_tokens", response.Usage.OutputTokens),
	}

	if level >= LogLevelStandard {
		if response.StopReason != nil {
			attrs = append(attrs, slog.String("stop_reason", string(*response.StopReason)))
		}
		attrs = append(attrs, slog.Int("tool_calls", len(response.ToolCalls())))
	}

	if text := response.Text(); level >= LogLevelVerbose && text != "" {
		attrs = append(attrs, slog.String("response_content", utils.TruncateString(text, truncateLen)))
	}

	return attrs
}
