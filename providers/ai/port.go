package ai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"github.com/opensesh/sesh/internal/utils"
	"github.com/opensesh/sesh/providers/observability"
)

// Port implements Provider for any vendor by driving a Transcoder over HTTP.
// Use the vendor constructors (anthropic.New, openai.New) rather than
// NewPort directly.
type Port struct {
	transcoder Transcoder

	mu         sync.RWMutex
	config     GenerationConfig
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

var _ Provider = (*Port)(nil)

// callState is everything one call reads from the Port, copied at invocation.
type callState struct {
	config     GenerationConfig
	apiKey     string
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewPort returns a Port with default generation settings and the
// transcoder's default model.
func NewPort(transcoder Transcoder, apiKey, baseURL string) *Port {
	return &Port{
		transcoder: transcoder,
		config: GenerationConfig{
			Model:       transcoder.DefaultModel(),
			MaxTokens:   DefaultMaxTokens,
			Temperature: DefaultTemperature,
		},
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: &http.Client{},
	}
}

// WithAPIKey sets the credential and returns the port for chaining.
func (p *Port) WithAPIKey(apiKey string) *Port {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.apiKey = apiKey
	return p
}

// WithBaseURL overrides the API base URL. Use this for proxies, compatible
// servers or test endpoints.
func (p *Port) WithBaseURL(baseURL string) *Port {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.baseURL = baseURL
	return p
}

// WithHttpClient replaces the HTTP client. Transport timeouts configured on
// the client surface as KindTransport errors.
func (p *Port) WithHttpClient(httpClient *http.Client) *Port {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.httpClient = httpClient
	return p
}

// WithLogger sets the logger used for skipped stream frames and request
// diagnostics. Defaults to slog.Default().
func (p *Port) WithLogger(logger *slog.Logger) *Port {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.logger = logger
	return p
}

// HasAPIKey reports whether a credential is configured.
func (p *Port) HasAPIKey() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.apiKey != ""
}

// BaseURL returns the configured base URL; empty means the vendor default.
func (p *Port) BaseURL() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.baseURL
}

func (p *Port) Name() string              { return p.transcoder.Name() }
func (p *Port) SupportsTools() bool       { return true }
func (p *Port) DefaultModel() string      { return p.transcoder.DefaultModel() }
func (p *Port) AvailableModels() []string { return p.transcoder.AvailableModels() }

func (p *Port) Model() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.config.Model
}

func (p *Port) SetModel(model string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.config.Model = model
}

func (p *Port) SystemPrompt() (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.config.System()
}

func (p *Port) SetSystemPrompt(prompt *string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if prompt == nil {
		p.config.SystemPrompt = nil
		return
	}
	value := *prompt
	p.config.SystemPrompt = &value
}

func (p *Port) MaxTokens() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.config.MaxTokens
}

func (p *Port) SetMaxTokens(maxTokens int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.config.MaxTokens = maxTokens
}

func (p *Port) Temperature() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.config.Temperature
}

// SetTemperature stores the value as given; it is clamped to the vendor's
// range when a request is encoded.
func (p *Port) SetTemperature(temperature float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.config.Temperature = temperature
}

// Snapshot returns a copy of the current generation settings.
func (p *Port) Snapshot() GenerationConfig {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.config.clone()
}

func (p *Port) snapshot() callState {
	p.mu.RLock()
	defer p.mu.RUnlock()

	logger := p.logger
	if logger == nil {
		logger = slog.Default()
	}
	return callState{
		config:     p.config.clone(),
		apiKey:     p.apiKey,
		endpoint:   p.transcoder.Endpoint(p.baseURL),
		httpClient: p.httpClient,
		logger:     logger,
	}
}

// prepare runs every pre-dispatch step: credential check, tool catalog
// validation, and request encoding.
func (p *Port) prepare(state callState, messages []ChatMessage, tools []Tool, stream bool) ([]byte, error) {
	name := p.transcoder.Name()
	if state.apiKey == "" {
		return nil, NewAuthError(name, "API key is not configured")
	}
	if err := ValidateTools(tools); err != nil {
		return nil, NewSerializationError(name, "invalid tool catalog", err)
	}

	request, err := p.transcoder.EncodeRequest(messages, tools, state.config, stream)
	if err != nil {
		return nil, NewSerializationError(name, "failed to encode request", err)
	}
	payload, err := json.Marshal(request)
	if err != nil {
		return nil, NewSerializationError(name, "failed to marshal request", err)
	}
	return payload, nil
}

func (p *Port) annotateRequest(ctx context.Context, state callState, messages []ChatMessage, tools []Tool, stream bool) {
	span := observability.SpanFromContext(ctx)
	if span != nil {
		span.AddEvent(observability.EventLLMRequestStart)
		span.SetAttributes(
			observability.String(observability.AttrLLMProvider, p.transcoder.Name()),
			observability.String(observability.AttrLLMEndpoint, state.endpoint),
			observability.String(observability.AttrLLMModel, state.config.Model),
			observability.Int(observability.AttrLLMMaxTokens, state.config.MaxTokens),
			observability.Float64(observability.AttrLLMTemperature, p.transcoder.ClampTemperature(state.config.Temperature)),
			observability.Bool(observability.AttrLLMStream, stream),
		)
	}

	if observer := observability.ObserverFromContext(ctx); observer != nil {
		observer.Debug(ctx, "provider preparing request",
			observability.String(observability.AttrLLMProvider, p.transcoder.Name()),
			observability.String(observability.AttrLLMModel, state.config.Model),
			observability.Int(observability.AttrRequestMessagesCount, len(messages)),
			observability.Int(observability.AttrRequestToolsCount, len(tools)),
		)
	}
}

func (p *Port) annotateResponse(ctx context.Context, response *ChatResponse) {
	span := observability.SpanFromContext(ctx)
	if span == nil || response == nil {
		return
	}
	attrs := []observability.Attribute{
		observability.String(observability.AttrLLMResponseID, response.ID),
		observability.Int(observability.AttrLLMTokensInput, response.Usage.InputTokens),
		observability.Int(observability.AttrLLMTokensOutput, response.Usage.OutputTokens),
		observability.Int(observability.AttrResponseToolCalls, len(response.ToolCalls())),
	}
	if response.StopReason != nil {
		attrs = append(attrs, observability.String(observability.AttrLLMStopReason, string(*response.StopReason)))
	}
	span.SetAttributes(attrs...)
}

// Chat implements Provider.
func (p *Port) Chat(ctx context.Context, messages []ChatMessage, tools []Tool) (*ChatResponse, error) {
	state := p.snapshot()
	p.annotateRequest(ctx, state, messages, tools, false)
	if span := observability.SpanFromContext(ctx); span != nil {
		defer span.AddEvent(observability.EventLLMRequestEnd)
	}

	payload, err := p.prepare(state, messages, tools, false)
	if err != nil {
		return nil, err
	}

	_, body, err := utils.DoPostSync(ctx, state.httpClient, state.endpoint, payload, p.transcoder.Headers(state.apiKey)...)
	if err != nil {
		return nil, p.classify(err)
	}

	response, err := p.transcoder.DecodeResponse(body)
	if err != nil {
		return nil, NewSerializationError(p.transcoder.Name(), "failed to decode response: "+utils.TruncateString(string(body), 200), err)
	}
	if response.Model == "" {
		response.Model = state.config.Model
	}

	p.annotateResponse(ctx, response)
	return response, nil
}

// ChatStream implements Provider. The request is dispatched on the first
// pull of the returned sequence; the sequence can be consumed only once.
func (p *Port) ChatStream(ctx context.Context, messages []ChatMessage, tools []Tool) (*ChatStream, error) {
	state := p.snapshot()

	payload, err := p.prepare(state, messages, tools, true)
	if err != nil {
		return nil, err
	}

	var consumed atomic.Bool
	iterator := func(yield func(ChatChunk, error) bool) {
		if consumed.Swap(true) {
			err := NewStreamError(p.transcoder.Name(), "stream already consumed", nil)
			yield(ErrorChunk(err.Error()), err)
			return
		}

		p.annotateRequest(ctx, state, messages, tools, true)
		timer := utils.NewTimer()
		chunks := 0
		defer func() {
			timer.Stop()
			if span := observability.SpanFromContext(ctx); span != nil {
				span.AddEvent(observability.EventStreamEnd,
					observability.Int(observability.AttrStreamChunks, chunks),
					observability.Duration(observability.AttrDuration, timer.GetDuration()),
				)
			}
		}()

		fail := func(err *Error) {
			chunks++
			yield(ErrorChunk(err.Error()), err)
		}

		response, err := utils.DoPostStream(ctx, state.httpClient, state.endpoint, payload, p.transcoder.Headers(state.apiKey)...)
		if err != nil {
			fail(p.classify(err))
			return
		}
		defer utils.CloseWithLog(response.Body)

		decoder := p.transcoder.NewStreamDecoder(state.config)
		scanner := utils.NewSSEScanner(response.Body)

		// emit yields decoded chunks and reports whether iteration continues.
		emit := func(decoded []ChatChunk) bool {
			for _, chunk := range decoded {
				chunks++
				if !yield(chunk, nil) || chunk.IsTerminal() {
					return false
				}
			}
			return true
		}

		for {
			frame, scanErr := scanner.Next()
			if scanErr != nil {
				sawDone := errors.Is(scanErr, utils.ErrStreamDone)
				if !sawDone && scanErr != io.EOF {
					fail(p.readFailure(ctx, scanErr))
					return
				}
				closing, finishErr := decoder.Finish(sawDone)
				if !emit(closing) {
					return
				}
				if finishErr != nil {
					fail(p.asStreamError(finishErr))
				}
				return
			}

			decoded, decodeErr := decoder.Decode(frame)
			if decodeErr != nil && errors.Is(decodeErr, ErrMalformedFrame) {
				state.logger.Debug("skipping malformed stream frame",
					"provider", p.transcoder.Name(),
					"event", frame.Event,
					"error", decodeErr.Error(),
					"data", utils.TruncateString(frame.Data, 200),
				)
				continue
			}
			if !emit(decoded) {
				return
			}
			if decodeErr != nil {
				fail(p.asStreamError(decodeErr))
				return
			}
		}
	}

	return NewChatStream(iterator), nil
}

// readFailure classifies an error returned while reading the stream body.
func (p *Port) readFailure(ctx context.Context, err error) *Error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return NewTransportError(p.transcoder.Name(), ctxErr)
	}
	return NewTransportError(p.transcoder.Name(), err)
}

func (p *Port) asStreamError(err error) *Error {
	var providerErr *Error
	if errors.As(err, &providerErr) {
		if providerErr.Provider == "" {
			providerErr.Provider = p.transcoder.Name()
		}
		return providerErr
	}
	return NewStreamError(p.transcoder.Name(), err.Error(), err)
}

// classify maps an error from the HTTP helpers to the unified taxonomy.
func (p *Port) classify(err error) *Error {
	name := p.transcoder.Name()

	var statusErr *utils.HTTPStatusError
	if !errors.As(err, &statusErr) {
		return NewTransportError(name, err)
	}

	message, ok := p.transcoder.ErrorMessage(statusErr.Body)
	if !ok {
		message = readableBody(statusErr.Header, statusErr.Body)
	}

	if statusErr.StatusCode == http.StatusTooManyRequests {
		retryAfter := ParseRetryAfter(statusErr.Header.Get("Retry-After"), time.Now())
		return NewRateLimitedError(name, retryAfter, message, statusErr.Body)
	}
	return NewAPIError(name, statusErr.StatusCode, message, statusErr.Body)
}

// readableBody turns an unstructured error body into a message. Gateways
// often answer with HTML pages; those are converted to Markdown text.
func readableBody(header http.Header, body []byte) string {
	text := strings.TrimSpace(string(body))
	if text == "" {
		return "empty error body"
	}

	lower := strings.ToLower(text)
	looksHTML := strings.Contains(header.Get("Content-Type"), "text/html") ||
		strings.HasPrefix(lower, "<!doctype html") ||
		strings.HasPrefix(lower, "<html")
	if looksHTML {
		if markdown, err := htmltomarkdown.ConvertString(text); err == nil && strings.TrimSpace(markdown) != "" {
			return utils.TruncateString(strings.TrimSpace(markdown), utils.DefaultMaxStringLength)
		}
	}
	return text
}
