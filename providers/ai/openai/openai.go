package openai

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
	ProviderName = "openai"

	defaultBaseURL          = "https://api.openai.com/v1"
	chatCompletionsEndpoint = "/chat/completions"

	// DefaultModel is used until SetModel is called.
	DefaultModel = "gpt-4o"
)

var availableModels = []string{
	"gpt-4o",
	"gpt-4o-mini",
	"gpt-4-turbo",
	"gpt-4",
	"gpt-3.5-turbo",
	"o1-preview",
	"o1-mini",
}

// Transcoder implements ai.Transcoder for Chat Completions. It is stateless.
type Transcoder struct{}

var _ ai.Transcoder = Transcoder{}

// New returns an [ai.Port] for OpenAI initialized from environment
// variables. It reads OPENAI_API_KEY for authentication and
// OPENAI_API_BASE_URL for the endpoint base (defaulting to
// https://api.openai.com/v1).
func New() *ai.Port {
	return ai.NewPort(Transcoder{}, os.Getenv("OPENAI_API_KEY"), os.Getenv("OPENAI_API_BASE_URL"))
}

func (Transcoder) Name() string         { return ProviderName }
func (Transcoder) DefaultModel() string { return DefaultModel }

func (Transcoder) AvailableModels() []string {
	return append([]string(nil), availableModels...)
}

// ClampTemperature limits t to OpenAI's accepted range [0, 2].
// NaN falls back to the default.
func (Transcoder) ClampTemperature(t float64) float64 {
	if math.IsNaN(t) {
		return ai.DefaultTemperature
	}
	return min(max(t, 0), 2)
}

func (Transcoder) Endpoint(baseURL string) string {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return strings.TrimRight(baseURL, "/") + chatCompletionsEndpoint
}

func (Transcoder) Headers(apiKey string) []utils.HeaderOption {
	return []utils.HeaderOption{{Key: "Authorization", Value: "Bearer " + apiKey}}
}

func (t Transcoder) EncodeRequest(messages []ai.ChatMessage, tools []ai.Tool, config ai.GenerationConfig, stream bool) (any, error) {
	return requestToChatCompletion(messages, tools, config, stream, t.ClampTemperature(config.Temperature)), nil
}

func (Transcoder) DecodeResponse(body []byte) (*ai.ChatResponse, error) {
	var response chatCompletionResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, err
	}
	return chatCompletionToGeneric(response), nil
}

func (Transcoder) ErrorMessage(body []byte) (string, bool) {
	var envelope chatErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Error == nil || envelope.Error.Message == "" {
		return "", false
	}
	return envelope.Error.Message, true
}

func (Transcoder) NewStreamDecoder(config ai.GenerationConfig) ai.StreamDecoder {
	return newStreamDecoder(config.Model)
}
