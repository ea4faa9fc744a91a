package ai

import "context"

// Provider is the caller-facing surface of one configured vendor. All
// methods are safe for concurrent use. Chat and ChatStream read the
// configuration once when called; setters only affect later calls.
type Provider interface {
	// Chat sends the conversation and waits for the complete response.
	Chat(ctx context.Context, messages []ChatMessage, tools []Tool) (*ChatResponse, error)

	// ChatStream sends the conversation and returns the response as a chunk
	// sequence. Failures detected before the request is dispatched
	// (credentials, encoding, tool catalog) are returned directly; anything
	// later arrives through the sequence as a terminal error chunk.
	ChatStream(ctx context.Context, messages []ChatMessage, tools []Tool) (*ChatStream, error)

	Name() string
	SupportsTools() bool
	DefaultModel() string
	AvailableModels() []string

	Model() string
	SetModel(model string)
	// SystemPrompt returns the configured prompt; ok is false when unset.
	SystemPrompt() (prompt string, ok bool)
	// SetSystemPrompt sets the prompt, or clears it when prompt is nil.
	SetSystemPrompt(prompt *string)
	MaxTokens() int
	SetMaxTokens(maxTokens int)
	Temperature() float64
	SetTemperature(temperature float64)
}
