package observability

// Semantic conventions for observability attributes.
// These constants define standard attribute names to ensure consistency
// across providers, middleware and the relay.

// --- LLM Provider Attributes ---

const (
	// AttrLLMProvider is the name of the vendor ("anthropic", "openai")
	AttrLLMProvider = "llm.provider"

	// AttrLLMModel is the model identifier
	AttrLLMModel = "llm.model"

	// AttrLLMEndpoint is the API endpoint URL
	AttrLLMEndpoint = "llm.endpoint"

	// AttrLLMResponseID is the message identifier returned by the vendor
	AttrLLMResponseID = "llm.response.id"

	// AttrLLMStopReason is the unified stop reason
	AttrLLMStopReason = "llm.stop_reason"

	// AttrLLMTemperature is the sampling temperature sent (after clamping)
	AttrLLMTemperature = "llm.temperature"

	// AttrLLMMaxTokens is the maximum tokens allowed
	AttrLLMMaxTokens = "llm.max_tokens" // #nosec G101 -- Not a credential, token refers to LLM tokens

	// AttrLLMStream is true for streaming calls
	AttrLLMStream = "llm.stream"
)

// --- Token Usage Attributes ---

const (
	AttrLLMTokensInput  = "llm.tokens.input"  // #nosec G101 -- Not a credential
	AttrLLMTokensOutput = "llm.tokens.output" // #nosec G101 -- Not a credential
)

// --- Request/Response Attributes ---

const (
	// AttrRequestMessagesCount is the number of messages in the request
	AttrRequestMessagesCount = "request.messages_count"

	// AttrRequestToolsCount is the number of tools in the request
	AttrRequestToolsCount = "request.tools_count"

	// AttrResponseToolCalls is the number of tool calls in the response
	AttrResponseToolCalls = "response.tool_calls"

	// AttrStreamChunks is the number of chunks yielded by a stream
	AttrStreamChunks = "stream.chunks"

	// AttrStreamID identifies one relayed stream
	AttrStreamID = "stream.id"
)

// --- HTTP Attributes ---

const (
	AttrHTTPMethod           = "http.method"
	AttrHTTPStatusCode       = "http.status_code"
	AttrHTTPURL              = "http.url"
	AttrHTTPRequestBodySize  = "http.request.body.size"
	AttrHTTPResponseBodySize = "http.response.body.size"
	AttrHTTPRequestDuration  = "http.request.duration"
)

// --- General Attributes ---

const (
	// AttrError is the error message
	AttrError = "error"

	// AttrErrorKind is the unified error kind
	AttrErrorKind = "error.kind"

	// AttrDuration is the operation duration
	AttrDuration = "duration"

	// AttrStatus is the operation status
	AttrStatus = "status"

	// AttrStatusDescription is the status description
	AttrStatusDescription = "status_description"
)

// --- Span and Event Names ---

const (
	// SpanLLMRequest is the span name for one vendor call
	SpanLLMRequest = "llm.request"

	EventLLMRequestStart = "llm.request.start"
	EventLLMRequestEnd   = "llm.request.end"
	EventStreamEnd       = "llm.stream.end"
)
