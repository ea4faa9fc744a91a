// Package middleware wraps an [ai.Provider] with a chain of interceptors for
// Chat and ChatStream calls. Each interceptor is built by a New* function
// returning a [Config] ready to be passed to [Wrap].
//
// # Available Middleware
//
//   - [NewTimeoutMiddleware]: adds a per-call deadline via context.WithTimeout.
//     For streams the deadline covers the whole stream, not just the first byte.
//
//   - [NewLoggingMiddleware]: emits structured slog entries before and after
//     every call, with three verbosity levels (Minimal, Standard, Verbose).
//
//   - [NewObservabilityMiddleware]: opens an [observability.Span] per call and
//     places it, together with the observer, in the context the provider sees.
//
// # Usage
//
//	provider, err := middleware.Wrap(anthropic.New(),
//	    middleware.NewObservabilityMiddleware(slogobs.New(nil)),
//	    middleware.NewTimeoutMiddleware(60*time.Second),
//	    middleware.NewLoggingMiddleware(slog.Default(), middleware.LogLevelStandard),
//	)
//
// Middlewares execute outermost-first: the first entry passed to Wrap runs
// first on the way in and last on the way out. In the example above a call
// travels
//
//	Observability → Timeout → Logging → Provider
//
// There is no retry middleware: rate limits and transport failures are
// surfaced to the caller, which owns the backoff policy.
package middleware
