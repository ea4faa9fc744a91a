package ai

const (
	// DefaultMaxTokens is the generation limit used until SetMaxTokens is called.
	DefaultMaxTokens = 4096
	// DefaultTemperature is the sampling temperature used until SetTemperature is called.
	DefaultTemperature = 0.7
)

// GenerationConfig is the per-call view of a provider's mutable settings.
// A Port hands every call its own copy, so later setter calls never affect
// a request that is already in flight.
type GenerationConfig struct {
	Model        string
	SystemPrompt *string
	MaxTokens    int
	Temperature  float64
}

// System returns the configured system prompt, if any.
func (c GenerationConfig) System() (string, bool) {
	if c.SystemPrompt == nil {
		return "", false
	}
	return *c.SystemPrompt, true
}

// clone copies c, detaching the system prompt pointer from the original.
func (c GenerationConfig) clone() GenerationConfig {
	if c.SystemPrompt != nil {
		prompt := *c.SystemPrompt
		c.SystemPrompt = &prompt
	}
	return c
}
