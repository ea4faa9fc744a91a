package anthropic

import (
	"encoding/json"
	"math"
	"os"
	"strings"

	"github.com/opensesh/sesh/internal/utils"
	"github.com/opensesh/sesh/providers/ai"
)

const (
	// ProviderName identifies this vendor in errors, logs and the registry.
	ProviderName = "anthropic"

	// defaultBaseURL is the canonical base URL for Anthropic's Messages API.
	defaultBaseURL = "https://api.anthropic.com/v1"

	messagesEndpoint = "/messages"

	// anthropicVersion pins the wire format independently of the URL.
	anthropicVersion = "2023-06-01"

	// DefaultModel is used until SetModel is called.
	DefaultModel = "claude-sonnet-4-20250514"
)

var availableModels = []string{
	"claude-sonnet-4-20250514",
	"claude-opus-4-20250514",
	"claude-3-5-sonnet-20241022",
	"claude-3-5-haiku-20241022",
	"claude-3-opus-20240229",
}

// Transcoder implements ai.Transcoder for the Messages API. It is stateless.
type Transcoder struct{}

var _ ai.Transcoder = Transcoder{}

// New returns an [ai.Port] for Anthropic initialized from environment
// variables. It reads ANTHROPIC_API_KEY for authentication and
// ANTHROPIC_API_BASE_URL for the endpoint base (defaulting to
// https://api.anthropic.com/v1). Use WithAPIKey and WithBaseURL on the
// returned port to override them.
func New() *ai.Port {
	return ai.NewPort(Transcoder{}, os.Getenv("ANTHROPIC_API_KEY"), os.Getenv("ANTHROPIC_API_BASE_URL"))
}

func (Transcoder) Name() string         { return ProviderName }
func (Transcoder) DefaultModel() string { return DefaultModel }

func (Transcoder) AvailableModels() []string {
	return append([]string(nil), availableModels...)
}

// ClampTemperature limits t to Anthropic's accepted range [0, 1].
// NaN falls back to the default.
func (Transcoder) ClampTemperature(t float64) float64 {
	if math.IsNaN(t) {
		return ai.DefaultTemperature
	}
	return min(max(t, 0), 1)
}

func (Transcoder) Endpoint(baseURL string) string {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return strings.TrimRight(baseURL, "/") + messagesEndpoint
}

// Headers returns x-api-key (Anthropic does not use Bearer tokens) and the
// anthropic-version pin.
func (Transcoder) Headers(apiKey string) []utils.HeaderOption {
	return []utils.HeaderOption{
		{Key: "x-api-key", Value: apiKey},
		{Key: "anthropic-version", Value: anthropicVersion},
	}
}

func (t Transcoder) EncodeRequest(messages []ai.ChatMessage, tools []ai.Tool, config ai.GenerationConfig, stream bool) (any, error) {
	return requestToAnthropic(messages, tools, config, stream, t.ClampTemperature(config.Temperature)), nil
}

func (Transcoder) DecodeResponse(body []byte) (*ai.ChatResponse, error) {
	var response anthropicResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, err
	}
	return anthropicToGeneric(response), nil
}

func (Transcoder) ErrorMessage(body []byte) (string, bool) {
	var envelope anthropicErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Error == nil || envelope.Error.Message == "" {
		return "", false
	}
	return envelope.Error.Message, true
}

func (Transcoder) NewStreamDecoder(config ai.GenerationConfig) ai.StreamDecoder {
	return newStreamDecoder()
}
