package middleware

import (
	"context"
	"fmt"

	"github.com/opensesh/sesh/providers/ai"
)

// Call is one provider invocation travelling through the chain. Provider and
// Model are read from the wrapped provider when the call starts and are
// informational; changing them does not redirect the call.
type Call struct {
	Provider string
	Model    string
	Messages []ai.ChatMessage
	Tools    []ai.Tool
}

// SendFunc performs a one-shot call. It is the unit threaded through the send
// chain.
type SendFunc func(ctx context.Context, call Call) (*ai.ChatResponse, error)

// StreamFunc opens a stream. It is the unit threaded through the stream chain.
type StreamFunc func(ctx context.Context, call Call) (*ai.ChatStream, error)

// Middleware receives the next SendFunc in the chain and returns a SendFunc
// wrapping it.
type Middleware func(next SendFunc) SendFunc

// StreamMiddleware is the streaming counterpart of Middleware. It may wrap the
// returned ChatStream to observe the chunk sequence.
type StreamMiddleware func(next StreamFunc) StreamFunc

// Config pairs a send middleware with its optional streaming counterpart.
// Send is required. A nil Stream means streaming calls bypass this entry.
type Config struct {
	Send   Middleware
	Stream StreamMiddleware
}

// Provider is an ai.Provider whose Chat and ChatStream run through a
// middleware chain. Every other method goes straight to the wrapped provider.
type Provider struct {
	ai.Provider
	send   SendFunc
	stream StreamFunc
}

var _ ai.Provider = (*Provider)(nil)

// Wrap returns provider with the given middlewares applied, the first config
// being the outermost.
func Wrap(provider ai.Provider, configs ...Config) (*Provider, error) {
	for i, config := range configs {
		if config.Send == nil {
			return nil, fmt.Errorf("%w (index %d)", ErrInvalidMiddleware, i)
		}
	}
	return &Provider{
		Provider: provider,
		send:     buildSendChain(provider, configs),
		stream:   buildStreamChain(provider, configs),
	}, nil
}

// Unwrap returns the provider without middlewares.
func (p *Provider) Unwrap() ai.Provider {
	return p.Provider
}

func (p *Provider) Chat(ctx context.Context, messages []ai.ChatMessage, tools []ai.Tool) (*ai.ChatResponse, error) {
	return p.send(ctx, p.newCall(messages, tools))
}

func (p *Provider) ChatStream(ctx context.Context, messages []ai.ChatMessage, tools []ai.Tool) (*ai.ChatStream, error) {
	return p.stream(ctx, p.newCall(messages, tools))
}

func (p *Provider) newCall(messages []ai.ChatMessage, tools []ai.Tool) Call {
	return Call{
		Provider: p.Provider.Name(),
		Model:    p.Provider.Model(),
		Messages: messages,
		Tools:    tools,
	}
}

// buildSendChain applies the middlewares in reverse so configs[0] ends up
// outermost.
func buildSendChain(provider ai.Provider, configs []Config) SendFunc {
	var chain SendFunc = func(ctx context.Context, call Call) (*ai.ChatResponse, error) {
		return provider.Chat(ctx, call.Messages, call.Tools)
	}
	for i := len(configs) - 1; i >= 0; i-- {
		chain = configs[i].Send(chain)
	}
	return chain
}

func buildStreamChain(provider ai.Provider, configs []Config) StreamFunc {
	var chain StreamFunc = func(ctx context.Context, call Call) (*ai.ChatStream, error) {
		return provider.ChatStream(ctx, call.Messages, call.Tools)
	}
	for i := len(configs) - 1; i >= 0; i-- {
		if configs[i].Stream != nil {
			chain = configs[i].Stream(chain)
		}
	}
	return chain
}

// streamSummary accumulates what the caller-facing logs and spans report
// about a stream once it ends.
type streamSummary struct {
	model      string
	stopReason *ai.StopReason
	usage      *ai.Usage
	chunks     int
}

func (s *streamSummary) observe(chunk ai.ChatChunk) {
	s.chunks++
	switch chunk.Type {
	case ai.ChunkMessageStart:
		if chunk.Model != "" {
			s.model = chunk.Model
		}
	case ai.ChunkMessageDelta:
		if chunk.StopReason != nil {
			s.stopReason = chunk.StopReason
		}
		if chunk.Usage != nil {
			s.usage = chunk.Usage
		}
	}
}
