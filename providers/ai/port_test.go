package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensesh/sesh/internal/utils"
)

// fakeTranscoder speaks a trivial protocol: requests carry the snapshot, the
// one-shot body is a ChatResponse, and every SSE data frame is a ChatChunk.
type fakeTranscoder struct{}

type fakeRequest struct {
	Model       string        `json:"model"`
	System      *string       `json:"system,omitempty"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream"`
	Messages    []ChatMessage `json:"messages"`
}

func (fakeTranscoder) Name() string                   { return "fake" }
func (fakeTranscoder) DefaultModel() string           { return "fake-1" }
func (fakeTranscoder) AvailableModels() []string      { return []string{"fake-1", "fake-2"} }
func (fakeTranscoder) ClampTemperature(t float64) float64 { return math.Min(math.Max(t, 0), 1) }
func (fakeTranscoder) Endpoint(baseURL string) string { return baseURL + "/chat" }

func (fakeTranscoder) Headers(apiKey string) []utils.HeaderOption {
	return []utils.HeaderOption{{Key: "x-key", Value: apiKey}}
}

func (f fakeTranscoder) EncodeRequest(messages []ChatMessage, tools []Tool, config GenerationConfig, stream bool) (any, error) {
	return fakeRequest{
		Model: config.Model, System: config.SystemPrompt, MaxTokens: config.MaxTokens,
		Temperature: f.ClampTemperature(config.Temperature), Stream: stream, Messages: messages,
	}, nil
}

func (fakeTranscoder) DecodeResponse(body []byte) (*ChatResponse, error) {
	var response ChatResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

func (fakeTranscoder) ErrorMessage(body []byte) (string, bool) {
	var envelope struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Error == "" {
		return "", false
	}
	return envelope.Error, true
}

func (fakeTranscoder) NewStreamDecoder(GenerationConfig) StreamDecoder { return &fakeDecoder{} }

type fakeDecoder struct{ terminal bool }

func (d *fakeDecoder) Decode(frame utils.SSEFrame) ([]ChatChunk, error) {
	if frame.Event == "error" {
		return nil, NewStreamError("", frame.Data, nil)
	}
	var chunk ChatChunk
	if err := json.Unmarshal([]byte(frame.Data), &chunk); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	d.terminal = d.terminal || chunk.IsTerminal()
	return []ChatChunk{chunk}, nil
}

func (d *fakeDecoder) Finish(sawDone bool) ([]ChatChunk, error) {
	if d.terminal {
		return nil, nil
	}
	if sawDone {
		return []ChatChunk{MessageStopChunk()}, nil
	}
	return nil, errors.New("stream ended before message_stop")
}

func newFakePort(serverURL string) *Port {
	return NewPort(fakeTranscoder{}, "test-key", serverURL).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func writeFrames(w http.ResponseWriter, frames ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	for _, frame := range frames {
		fmt.Fprintf(w, "%s\n\n", frame)
	}
}

func collectChunks(t *testing.T, stream *ChatStream) ([]ChatChunk, []error) {
	t.Helper()
	var chunks []ChatChunk
	var errs []error
	for chunk, err := range stream.Iter() {
		chunks = append(chunks, chunk)
		errs = append(errs, err)
	}
	return chunks, errs
}

func TestPort_Defaults(t *testing.T) {
	port := newFakePort("http://unused")
	if port.Model() != "fake-1" || port.MaxTokens() != DefaultMaxTokens || port.Temperature() != DefaultTemperature {
		t.Errorf("unexpected defaults model=%s max=%d temp=%v", port.Model(), port.MaxTokens(), port.Temperature())
	}
	if _, ok := port.SystemPrompt(); ok {
		t.Error("system prompt should start unset")
	}
	if !port.SupportsTools() || port.Name() != "fake" || len(port.AvailableModels()) != 2 {
		t.Error("unexpected identity")
	}
}

func TestPort_SetSystemPrompt_CopiesAndClears(t *testing.T) {
	port := newFakePort("http://unused")
	prompt := "be brief"
	port.SetSystemPrompt(&prompt)
	prompt = "changed"

	if got, ok := port.SystemPrompt(); !ok || got != "be brief" {
		t.Errorf("SystemPrompt() = %q, %v", got, ok)
	}
	port.SetSystemPrompt(nil)
	if _, ok := port.SystemPrompt(); ok {
		t.Error("expected prompt to be cleared")
	}
}

func TestPort_Chat_SendsSnapshotAndDecodes(t *testing.T) {
	var captured fakeRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat" || r.Header.Get("x-key") != "test-key" {
			t.Errorf("unexpected request %s key=%q", r.URL.Path, r.Header.Get("x-key"))
		}
		_ = json.NewDecoder(r.Body).Decode(&captured)
		fmt.Fprint(w, `{"id":"r1","content":[{"type":"text","text":"hi"}],"usage":{"input_tokens":3,"output_tokens":1}}`)
	}))
	defer server.Close()

	port := newFakePort(server.URL)
	port.SetModel("fake-2")
	port.SetTemperature(5)

	response, err := port.Chat(context.Background(), []ChatMessage{User("hello")}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if response.Text() != "hi" || response.ID != "r1" {
		t.Errorf("unexpected response %+v", response)
	}
	if response.Model != "fake-2" {
		t.Errorf("expected model fallback to the snapshot, got %q", response.Model)
	}
	if captured.Model != "fake-2" || captured.Temperature != 1 || captured.Stream {
		t.Errorf("unexpected request %+v", captured)
	}
}

func TestPort_Chat_ErrorMapping(t *testing.T) {
	testCases := []struct {
		name        string
		status      int
		contentType string
		retryAfter  string
		body        string
		wantKind    ErrorKind
		wantMessage string
	}{
		{name: "vendor error body", status: 400, body: `{"error":"bad max_tokens"}`, wantKind: KindAPI, wantMessage: "bad max_tokens"},
		{name: "unparseable body", status: 502, body: "upstream busy", wantKind: KindAPI, wantMessage: "upstream busy"},
		{name: "html gateway page", status: 503, contentType: "text/html", body: "<html><body><h1>Service Unavailable</h1></body></html>", wantKind: KindAPI, wantMessage: "Service Unavailable"},
		{name: "rate limited with body", status: 429, retryAfter: "2", body: `{"error":"slow down"}`, wantKind: KindRateLimited, wantMessage: "slow down"},
		{name: "rate limited without body", status: 429, body: "", wantKind: KindRateLimited},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if testCase.contentType != "" {
					w.Header().Set("Content-Type", testCase.contentType)
				}
				if testCase.retryAfter != "" {
					w.Header().Set("Retry-After", testCase.retryAfter)
				}
				w.WriteHeader(testCase.status)
				fmt.Fprint(w, testCase.body)
			}))
			defer server.Close()

			_, err := newFakePort(server.URL).Chat(context.Background(), []ChatMessage{User("x")}, nil)
			var providerErr *Error
			if !errors.As(err, &providerErr) {
				t.Fatalf("expected *Error, got %v", err)
			}
			if providerErr.Kind != testCase.wantKind || providerErr.Status != testCase.status {
				t.Fatalf("unexpected error %+v", providerErr)
			}
			if !strings.Contains(providerErr.Message, testCase.wantMessage) {
				t.Errorf("message %q does not contain %q", providerErr.Message, testCase.wantMessage)
			}
			if string(providerErr.Raw) != testCase.body {
				t.Errorf("raw body not preserved: %q", providerErr.Raw)
			}
			if testCase.retryAfter != "" {
				if got, ok := RetryAfterOf(err); !ok || got != 2*time.Second {
					t.Errorf("RetryAfterOf() = %v, %v", got, ok)
				}
			}
		})
	}
}

func TestPort_PreDispatchFailures(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
	}))
	defer server.Close()

	noKey := newFakePort(server.URL).WithAPIKey("")
	if _, err := noKey.Chat(context.Background(), nil, nil); !IsAuth(err) {
		t.Errorf("expected auth error, got %v", err)
	}
	if _, err := noKey.ChatStream(context.Background(), nil, nil); !IsAuth(err) {
		t.Errorf("expected auth error from ChatStream, got %v", err)
	}

	duplicate := []Tool{{Name: "a"}, {Name: "a"}}
	if _, err := newFakePort(server.URL).ChatStream(context.Background(), nil, duplicate); !IsSerialization(err) {
		t.Errorf("expected serialization error, got %v", err)
	}

	badInput := []ChatMessage{NewBlocks(RoleAssistant, ContentBlock{Type: BlockToolUse, ID: "x", Name: "y", Input: json.RawMessage(`{broken`)})}
	if _, err := newFakePort(server.URL).Chat(context.Background(), badInput, nil); !IsSerialization(err) {
		t.Errorf("expected serialization error for invalid tool input, got %v", err)
	}

	if requests != 0 {
		t.Errorf("no request should be dispatched, got %d", requests)
	}
}

func TestPort_Chat_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := newFakePort(url).Chat(context.Background(), []ChatMessage{User("x")}, nil)
	if !IsTransport(err) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestPort_ChatStream_YieldsChunksUntilTerminal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeFrames(w,
			`data: {"type":"message_start","id":"m1","model":"fake-1"}`,
			`data: not json`,
			`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"hi"}}`,
			`data: {"type":"message_stop"}`,
			`data: {"type":"ping"}`,
		)
	}))
	defer server.Close()

	stream, err := newFakePort(server.URL).ChatStream(context.Background(), []ChatMessage{User("x")}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	chunks, errs := collectChunks(t, stream)
	wantTypes := []ChunkType{ChunkMessageStart, ChunkContentBlockDelta, ChunkMessageStop}
	if len(chunks) != len(wantTypes) {
		t.Fatalf("expected %d chunks, got %d: %+v", len(wantTypes), len(chunks), chunks)
	}
	for i, want := range wantTypes {
		if chunks[i].Type != want || errs[i] != nil {
			t.Errorf("chunk %d: got %s (err %v), want %s", i, chunks[i].Type, errs[i], want)
		}
	}
}

func TestPort_ChatStream_DoneSentinelSynthesizesStop(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeFrames(w, `data: {"type":"ping"}`, `data: [DONE]`)
	}))
	defer server.Close()

	stream, _ := newFakePort(server.URL).ChatStream(context.Background(), []ChatMessage{User("x")}, nil)
	chunks, _ := collectChunks(t, stream)
	if len(chunks) != 2 || chunks[1].Type != ChunkMessageStop {
		t.Fatalf("expected ping then message_stop, got %+v", chunks)
	}
}

func TestPort_ChatStream_ConsumedOnce(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeFrames(w,
			`data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"hi"}}`,
			`data: {"type":"message_stop"}`,
		)
	}))
	defer server.Close()

	stream, err := newFakePort(server.URL).ChatStream(context.Background(), []ChatMessage{User("x")}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first, _ := collectChunks(t, stream); len(first) != 2 {
		t.Fatalf("expected two chunks on the first pass, got %+v", first)
	}

	again, errs := collectChunks(t, stream)
	if len(again) != 1 || again[0].Type != ChunkError || !IsStream(errs[0]) {
		t.Fatalf("second pass should yield one stream error, got %+v (%v)", again, errs)
	}
	if again[0].Message != "fake: stream error: stream already consumed" {
		t.Errorf("unexpected error message %q", again[0].Message)
	}

	if _, err := stream.Collect(); !IsStream(err) {
		t.Errorf("Collect after consumption should fail with a stream error, got %v", err)
	}
	if got := hits.Load(); got != 1 {
		t.Errorf("expected a single request, got %d", got)
	}
}

func TestPort_ChatStream_FailuresArriveAsSingleErrorChunk(t *testing.T) {
	testCases := []struct {
		name     string
		handler  http.HandlerFunc
		wantKind ErrorKind
		before   int
	}{
		{
			name: "connection dropped before terminal event",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeFrames(w, `data: {"type":"message_start","id":"m"}`)
			},
			wantKind: KindStream,
			before:   1,
		},
		{
			name: "vendor error event",
			handler: func(w http.ResponseWriter, r *http.Request) {
				writeFrames(w, `data: {"type":"ping"}`, "event: error\ndata: overloaded", `data: {"type":"message_stop"}`)
			},
			wantKind: KindStream,
			before:   1,
		},
		{
			name: "rate limited",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
			},
			wantKind: KindRateLimited,
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				fmt.Fprint(w, `{"error":"internal"}`)
			},
			wantKind: KindAPI,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			server := httptest.NewServer(testCase.handler)
			defer server.Close()

			stream, err := newFakePort(server.URL).ChatStream(context.Background(), []ChatMessage{User("x")}, nil)
			if err != nil {
				t.Fatalf("post-dispatch failures must not be returned directly: %v", err)
			}

			chunks, errs := collectChunks(t, stream)
			if len(chunks) != testCase.before+1 {
				t.Fatalf("expected %d chunks, got %+v", testCase.before+1, chunks)
			}
			last := chunks[len(chunks)-1]
			if last.Type != ChunkError || last.Message == "" {
				t.Errorf("expected trailing error chunk, got %+v", last)
			}
			if KindOf(errs[len(errs)-1]) != testCase.wantKind {
				t.Errorf("expected %s, got %v", testCase.wantKind, errs[len(errs)-1])
			}
			for _, err := range errs[:len(errs)-1] {
				if err != nil {
					t.Errorf("only the terminal chunk may carry an error, got %v", err)
				}
			}
		})
	}
}

func TestPort_ChatStream_CancelledContextIsTransport(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeFrames(w, `data: {"type":"message_start","id":"m"}`)
		w.(http.Flusher).Flush()
		close(started)
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream, err := newFakePort(server.URL).ChatStream(ctx, []ChatMessage{User("x")}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var last error
	for chunk, err := range stream.Iter() {
		if chunk.Type == ChunkMessageStart {
			<-started
			cancel()
		}
		last = err
	}
	if !IsTransport(last) || !errors.Is(last, context.Canceled) {
		t.Fatalf("expected transport error wrapping context.Canceled, got %v", last)
	}
}

// In-flight calls keep the configuration they started with.
func TestPort_SnapshotIsolation(t *testing.T) {
	var mu sync.Mutex
	var models []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var request fakeRequest
		_ = json.NewDecoder(r.Body).Decode(&request)
		mu.Lock()
		models = append(models, request.Model)
		mu.Unlock()
		writeFrames(w, `data: {"type":"message_stop"}`)
	}))
	defer server.Close()

	port := newFakePort(server.URL)
	stream, err := port.ChatStream(context.Background(), []ChatMessage{User("x")}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The request has not been sent yet; changing the model must not affect it.
	port.SetModel("fake-2")
	if _, err := stream.Collect(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(models) != 1 || models[0] != "fake-1" {
		t.Errorf("expected the snapshot model, got %v", models)
	}
}

func TestPort_ChatStream_LogsSkippedFrames(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeFrames(w, `data: {oops`, `data: {"type":"message_stop"}`)
	}))
	defer server.Close()

	var logs bytes.Buffer
	port := newFakePort(server.URL).WithLogger(slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug})))
	stream, _ := port.ChatStream(context.Background(), []ChatMessage{User("x")}, nil)
	if _, err := stream.Collect(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(logs.String(), "skipping malformed stream frame") {
		t.Errorf("expected debug log for skipped frame, got %q", logs.String())
	}
}
