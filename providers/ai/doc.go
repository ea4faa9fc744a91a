// Package ai defines the vendor-neutral chat model shared by every LLM
// provider: messages made of typed content blocks, tool definitions, unified
// stop reasons and usage, and the incremental [ChatChunk] events of a
// streamed response.
//
// [Provider] is the caller-facing contract. [Port] implements it once for
// every vendor by combining a [Transcoder] (request and response mapping) and
// a [StreamDecoder] (SSE event translation) with the shared HTTP transport.
// Vendor packages (anthropic, openai) only supply the transcoder.
//
// Failures are reported as [*Error] values whose [ErrorKind] tells transport
// failures, rate limiting, vendor API errors and stream faults apart.
package ai
