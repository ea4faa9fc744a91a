// Package anthropic provides the [ai.Transcoder] for Anthropic's Messages API
// and a constructor returning a ready [ai.Port].
//
// It maps the unified conversation to Anthropic's wire format (top-level
// system prompt, tool_use and tool_result content blocks), maps responses and
// error bodies back, and translates the named SSE events of a streamed
// response into [ai.ChatChunk] values.
//
// The primary entry point is [New], which reads ANTHROPIC_API_KEY and
// ANTHROPIC_API_BASE_URL from the environment.
package anthropic
