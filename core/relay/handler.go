package relay

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/opensesh/sesh/core/middleware"
	"github.com/opensesh/sesh/core/registry"
	"github.com/opensesh/sesh/providers/ai"
	"github.com/opensesh/sesh/providers/observability"
)

// Handler upgrades HTTP requests to websockets and answers every
// SendMessageRequest read from the socket, one at a time.
type Handler struct {
	registry    *registry.Registry
	middlewares []middleware.Config
	upgrader    websocket.Upgrader
	logger      *slog.Logger
}

type Option func(*Handler)

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) { h.logger = logger }
}

// WithMiddleware wraps every resolved provider with configs, first outermost.
func WithMiddleware(configs ...middleware.Config) Option {
	return func(h *Handler) { h.middlewares = append(h.middlewares, configs...) }
}

// WithCheckOrigin replaces the upgrader's origin check. By default only
// same-host origins are accepted.
func WithCheckOrigin(check func(*http.Request) bool) Option {
	return func(h *Handler) { h.upgrader.CheckOrigin = check }
}

func NewHandler(providers *registry.Registry, options ...Option) *Handler {
	handler := &Handler{
		registry: providers,
		logger:   slog.Default(),
	}
	for _, option := range options {
		option(handler)
	}
	return handler
}

func (h *Handler) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	conn, err := h.upgrader.Upgrade(writer, request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	ctx, cancel := context.WithCancel(request.Context())
	defer cancel()

	for {
		var message SendMessageRequest
		if err := conn.ReadJSON(&message); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				// The frame was consumed; report it and keep the socket open.
				if err := h.answerError(conn, uuid.NewString(), ai.NewSerializationError("", "invalid request", err)); err != nil {
					return
				}
				continue
			}
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("websocket read ended", "error", err)
			}
			return
		}

		if err := h.answer(ctx, conn, message, uuid.NewString()); err != nil {
			h.logger.Debug("websocket write failed", "error", err)
			return
		}
	}
}

// answer writes the events for one request followed by a single done event.
// It only returns an error when the socket can no longer be written.
func (h *Handler) answer(ctx context.Context, conn *websocket.Conn, message SendMessageRequest, streamID string) error {
	logger := h.logger.With(observability.AttrStreamID, streamID)

	provider, err := h.resolve(message)
	if err != nil {
		logger.Warn("relay request rejected", "error", err)
		return h.answerError(conn, streamID, err)
	}
	logger.Debug("relay request", "provider", provider.Name(), "model", provider.Model(), "stream", message.Stream)

	messages := message.ChatMessages()
	if !message.Stream {
		response, err := provider.Chat(ctx, messages, message.Tools)
		if err != nil {
			return h.answerError(conn, streamID, err)
		}
		if err := h.write(conn, streamID, StreamEvent{Type: EventResponse, Response: NewResponseOutput(response)}); err != nil {
			return err
		}
		return h.write(conn, streamID, StreamEvent{Type: EventDone})
	}

	stream, err := provider.ChatStream(ctx, messages, message.Tools)
	if err != nil {
		return h.answerError(conn, streamID, err)
	}
	for chunk, err := range stream.Iter() {
		if err != nil {
			logger.Warn("relay stream failed", "error", err, "error_kind", ai.KindOf(err))
			if writeErr := h.write(conn, streamID, StreamEvent{Type: EventError, Message: err.Error()}); writeErr != nil {
				return writeErr
			}
			break
		}
		event, ok := FromChunk(chunk)
		if !ok {
			continue
		}
		if event.Type == EventDone {
			break
		}
		if err := h.write(conn, streamID, event); err != nil {
			return err
		}
	}
	return h.write(conn, streamID, StreamEvent{Type: EventDone})
}

func (h *Handler) resolve(message SendMessageRequest) (ai.Provider, error) {
	provider, err := h.registry.Resolve(message.Provider)
	if err != nil {
		return nil, err
	}
	if len(message.Tools) > 0 && !provider.SupportsTools() {
		return nil, ai.NewUnsupportedError(provider.Name(), "tools are not supported")
	}
	if message.Model != "" {
		provider.SetModel(message.Model)
	}
	if len(h.middlewares) == 0 {
		return provider, nil
	}
	wrapped, err := middleware.Wrap(provider, h.middlewares...)
	if err != nil {
		return nil, err
	}
	return wrapped, nil
}

func (h *Handler) answerError(conn *websocket.Conn, streamID string, err error) error {
	if writeErr := h.write(conn, streamID, StreamEvent{Type: EventError, Message: err.Error()}); writeErr != nil {
		return writeErr
	}
	return h.write(conn, streamID, StreamEvent{Type: EventDone})
}

func (h *Handler) write(conn *websocket.Conn, streamID string, event StreamEvent) error {
	event.StreamID = streamID
	return conn.WriteJSON(event)
}

// ProvidersHandler serves the registry's provider list as JSON.
func ProvidersHandler(providers *registry.Registry) http.HandlerFunc {
	return func(writer http.ResponseWriter, request *http.Request) {
		writer.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(writer).Encode(providers.Infos())
	}
}

// NewMux mounts the websocket handler on /ws and the provider list on
// /providers.
func NewMux(handler *Handler, providers *registry.Registry) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/ws", handler)
	mux.HandleFunc("GET /providers", ProvidersHandler(providers))
	return mux
}
