// Package observability defines the tracing and structured logging interfaces
// used by the provider layer, plus the attribute-key constants recorded on
// spans.
//
// The central entry point is [Provider], which composes [Tracer] and [Logger]
// into a single injectable dependency. Callers propagate an active [Provider]
// and [Span] through a [context.Context] using [ContextWithObserver] and
// [ContextWithSpan]; they are retrieved with [ObserverFromContext] and
// [SpanFromContext]. A [log/slog] backed implementation lives in the slog
// subpackage.
package observability
