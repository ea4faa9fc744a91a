package ai

import (
	"errors"

	"github.com/opensesh/sesh/internal/utils"
)

// Transcoder maps the unified model to one vendor's wire protocol. Encoding
// and decoding are pure; the Port owns all I/O.
type Transcoder interface {
	// Name is the vendor identifier ("anthropic", "openai").
	Name() string
	DefaultModel() string
	AvailableModels() []string
	// ClampTemperature forces t into the vendor's accepted range.
	ClampTemperature(t float64) float64
	// Endpoint returns the request URL for the given base URL. An empty base
	// selects the vendor default.
	Endpoint(baseURL string) string
	// Headers returns the authentication and versioning headers.
	Headers(apiKey string) []utils.HeaderOption
	// EncodeRequest builds the JSON-serializable request body.
	EncodeRequest(messages []ChatMessage, tools []Tool, config GenerationConfig, stream bool) (any, error)
	// DecodeResponse parses a successful one-shot response body.
	DecodeResponse(body []byte) (*ChatResponse, error)
	// ErrorMessage extracts the vendor's message from an error body. ok is
	// false when the body is not in the vendor's error format.
	ErrorMessage(body []byte) (message string, ok bool)
	// NewStreamDecoder returns fresh per-call stream state.
	NewStreamDecoder(config GenerationConfig) StreamDecoder
}

// StreamDecoder translates one call's SSE frames into chunks. It is not safe
// for concurrent use and must not be reused across calls.
type StreamDecoder interface {
	// Decode translates one frame. An error wrapping ErrMalformedFrame means
	// the frame was skipped; any other error is a terminal vendor error.
	Decode(frame utils.SSEFrame) ([]ChatChunk, error)
	// Finish is called once the body ends, with sawDone reporting whether
	// the [DONE] sentinel was read. It returns the closing chunks, or an
	// error when the stream ended without a terminal event.
	Finish(sawDone bool) ([]ChatChunk, error)
}

// ErrMalformedFrame marks a frame that could not be parsed and was skipped.
var ErrMalformedFrame = errors.New("malformed stream frame")
