package middleware

import (
	"context"
	"time"

	"github.com/opensesh/sesh/providers/ai"
)

// NewTimeoutMiddleware creates a Config that enforces a per-call deadline on
// both one-shot and streaming calls.
//
// For Chat the context is wrapped with context.WithTimeout and cancel is
// deferred. For ChatStream cancel is NOT deferred: it runs once the stream
// reaches a terminal chunk, fails, or is abandoned by the caller, so the
// deadline governs the whole stream rather than the time to first byte.
//
// A shorter deadline already on the caller's context wins, as usual.
func NewTimeoutMiddleware(timeout time.Duration) Config {
	return Config{
		Send:   buildSendTimeout(timeout),
		Stream: buildStreamTimeout(timeout),
	}
}

func buildSendTimeout(timeout time.Duration) Middleware {
	return func(next SendFunc) SendFunc {
		return func(ctx context.Context, call Call) (*ai.ChatResponse, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			return next(ctx, call)
		}
	}
}

func buildStreamTimeout(timeout time.Duration) StreamMiddleware {
	return func(next StreamFunc) StreamFunc {
		return func(ctx context.Context, call Call) (*ai.ChatStream, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)

			stream, err := next(ctx, call)
			if err != nil {
				cancel()
				return nil, err
			}

			return wrapStreamWithCancel(stream, cancel), nil
		}
	}
}

// wrapStreamWithCancel returns a ChatStream whose iterator calls cancel once
// the stream ends for any reason.
func wrapStreamWithCancel(stream *ai.ChatStream, cancel context.CancelFunc) *ai.ChatStream {
	iteratorFunc := func(yield func(ai.ChatChunk, error) bool) {
		defer cancel()

		for chunk, err := range stream.Iter() {
			if !yield(chunk, err) {
				return
			}
			if err != nil || chunk.IsTerminal() {
				return
			}
		}
	}

	return ai.NewChatStream(iteratorFunc)
}
