package middleware

import (
	"context"

	"github.com/opensesh/sesh/internal/utils"
	"github.com/opensesh/sesh/providers/ai"
	"github.com/opensesh/sesh/providers/observability"
)

// NewObservabilityMiddleware creates a Config that opens one span per call.
//
// The span and the observer are placed in the context before calling next, so
// the provider can enrich the span through [observability.SpanFromContext]
// and log through [observability.ObserverFromContext]. For streams the span
// ends when the sequence ends.
//
// Pass it first to [Wrap] so the span covers every other middleware.
func NewObservabilityMiddleware(observer observability.Provider) Config {
	return Config{
		Send:   buildObsSend(observer),
		Stream: buildObsStream(observer),
	}
}

func startCallSpan(ctx context.Context, observer observability.Provider, call Call, stream bool) (context.Context, observability.Span) {
	ctx, span := observer.StartSpan(ctx, observability.SpanLLMRequest,
		observability.String(observability.AttrLLMProvider, call.Provider),
		observability.String(observability.AttrLLMModel, call.Model),
		observability.Bool(observability.AttrLLMStream, stream),
	)
	ctx = observability.ContextWithSpan(ctx, span)
	ctx = observability.ContextWithObserver(ctx, observer)
	return ctx, span
}

func recordObsError(ctx context.Context, span observability.Span, observer observability.Provider, call Call, timer *utils.Timer, err error) {
	timer.Stop()

	span.RecordError(err)
	if kind := ai.KindOf(err); kind != "" {
		span.SetAttributes(observability.String(observability.AttrErrorKind, string(kind)))
	}
	span.SetStatus(observability.StatusError, "llm request failed")
	span.End()

	observer.Error(ctx, "llm request failed",
		observability.Error(err),
		observability.Duration(observability.AttrDuration, timer.GetDuration()),
		observability.String(observability.AttrLLMProvider, call.Provider),
		observability.String(observability.AttrLLMModel, call.Model),
	)
}

func buildObsSend(observer observability.Provider) Middleware {
	return func(next SendFunc) SendFunc {
		return func(ctx context.Context, call Call) (*ai.ChatResponse, error) {
			ctx, span := startCallSpan(ctx, observer, call, false)

			timer := utils.NewTimer()
			response, err := next(ctx, call)
			if err != nil {
				recordObsError(ctx, span, observer, call, timer, err)
				return nil, err
			}
			timer.Stop()

			recordObsSuccess(ctx, span, observer, call, timer, response.Model, response.StopReason, &response.Usage, len(response.ToolCalls()))
			return response, nil
		}
	}
}

func buildObsStream(observer observability.Provider) StreamMiddleware {
	return func(next StreamFunc) StreamFunc {
		return func(ctx context.Context, call Call) (*ai.ChatStream, error) {
			ctx, span := startCallSpan(ctx, observer, call, true)

			timer := utils.NewTimer()
			stream, err := next(ctx, call)
			if err != nil {
				recordObsError(ctx, span, observer, call, timer, err)
				return nil, err
			}

			return wrapStreamWithObservability(ctx, stream, span, observer, call, timer), nil
		}
	}
}

// wrapStreamWithObservability passes chunks through unchanged and ends the
// span when the stream completes, fails, or is abandoned.
func wrapStreamWithObservability(
	ctx context.Context,
	stream *ai.ChatStream,
	span observability.Span,
	observer observability.Provider,
	call Call,
	timer *utils.Timer,
) *ai.ChatStream {
	iteratorFunc := func(yield func(ai.ChatChunk, error) bool) {
		summary := streamSummary{model: call.Model}
		toolCalls := 0

		for chunk, err := range stream.Iter() {
			if err != nil {
				recordObsError(ctx, span, observer, call, timer, err)
				yield(chunk, err)
				return
			}

			summary.observe(chunk)
			if chunk.Type == ai.ChunkContentBlockStart && chunk.Block != nil && chunk.Block.Type == ai.BlockToolUse {
				toolCalls++
			}

			if !yield(chunk, nil) {
				timer.Stop()
				span.SetAttributes(observability.Int(observability.AttrStreamChunks, summary.chunks))
				span.SetStatus(observability.StatusOK, "llm stream abandoned")
				span.End()

				observer.Info(ctx, "llm stream abandoned",
					observability.String(observability.AttrLLMModel, summary.model),
					observability.Duration(observability.AttrDuration, timer.GetDuration()),
				)
				return
			}

			if chunk.IsTerminal() {
				break
			}
		}

		timer.Stop()
		span.SetAttributes(observability.Int(observability.AttrStreamChunks, summary.chunks))
		recordObsSuccess(ctx, span, observer, call, timer, summary.model, summary.stopReason, summary.usage, toolCalls)
	}

	return ai.NewChatStream(iteratorFunc)
}

// recordObsSuccess sets the outcome attributes, logs the completion and ends
// the span.
func recordObsSuccess(
	ctx context.Context,
	span observability.Span,
	observer observability.Provider,
	call Call,
	timer *utils.Timer,
	model string,
	stopReason *ai.StopReason,
	usage *ai.Usage,
	toolCalls int,
) {
	attrs := []observability.Attribute{
		observability.String(observability.AttrLLMProvider, call.Provider),
		observability.String(observability.AttrLLMModel, model),
		observability.Duration(observability.AttrDuration, timer.GetDuration()),
		observability.Int(observability.AttrResponseToolCalls, toolCalls),
	}
	if stopReason != nil {
		attrs = append(attrs, observability.String(observability.AttrLLMStopReason, string(*stopReason)))
	}
	if usage != nil {
		attrs = append(attrs,
			observability.Int(observability.AttrLLMTokensInput, usage.InputTokens),
			observability.Int(observability.AttrLLMTokensOutput, usage.OutputTokens),
		)
	}

	span.SetAttributes(attrs...)
	observer.Info(ctx, "llm request completed", attrs...)

	span.SetStatus(observability.StatusOK, "success")
	span.End()
}
