// Package openai provides the [ai.Transcoder] for the OpenAI Chat Completions
// API and a constructor returning a ready [ai.Port].
//
// System prompts travel as leading "system" messages, tool results as
// separate "tool" messages, and tool-call arguments as JSON-encoded strings.
// The streaming decoder synthesizes the message and block lifecycle events
// the Chat Completions stream does not send: text always occupies block 0 and
// the n-th tool call occupies block n+1.
//
// Any server speaking the same protocol can be used by overriding the base
// URL, either with OPENAI_API_BASE_URL or with WithBaseURL on the port.
package openai
