package anthropic

import (
	"encoding/json"
	"math"
	"reflect"
	"testing"

	"github.com/opensesh/sesh/providers/ai"
)

func defaultConfig() ai.GenerationConfig {
	return ai.GenerationConfig{Model: DefaultModel, MaxTokens: 4096, Temperature: 0.7}
}

func encode(t *testing.T, messages []ai.ChatMessage, tools []ai.Tool, config ai.GenerationConfig) anthropicRequest {
	t.Helper()
	request, err := Transcoder{}.EncodeRequest(messages, tools, config, false)
	if err != nil {
		t.Fatalf("EncodeRequest: %v", err)
	}
	return request.(anthropicRequest)
}

func TestEncodeRequest_SystemPromptResolution(t *testing.T) {
	conversation := []ai.ChatMessage{
		ai.NewBlocks(ai.RoleSystem, ai.TextBlock("You are "), ai.TextBlock("terse.")),
		ai.User("hi"),
		ai.System("second system message"),
	}

	request := encode(t, conversation, nil, defaultConfig())
	if request.System != "You are terse." {
		t.Errorf("expected first system message text, got %q", request.System)
	}
	if len(request.Messages) != 1 || request.Messages[0].Role != "user" {
		t.Errorf("system messages must be removed from messages, got %+v", request.Messages)
	}

	configured := defaultConfig()
	prompt := "configured prompt"
	configured.SystemPrompt = &prompt
	request = encode(t, conversation, nil, configured)
	if request.System != "configured prompt" {
		t.Errorf("configured prompt must win, got %q", request.System)
	}
}

func TestEncodeRequest_ToolResultPlacement(t *testing.T) {
	conversation := []ai.ChatMessage{
		ai.User("list files"),
		ai.NewBlocks(ai.RoleAssistant,
			ai.TextBlock("Sure."),
			ai.ToolUseBlock("tu_1", "list_dir", json.RawMessage(`{"dir":"."}`)),
		),
		// Attached to the tool role, with an extra text block that must not leak.
		ai.NewBlocks(ai.RoleTool,
			ai.ToolResultBlock("tu_1", "a.go\nb.go", false),
			ai.TextBlock("ignored"),
		),
	}

	request := encode(t, conversation, nil, defaultConfig())
	if len(request.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(request.Messages))
	}

	assistant := request.Messages[1]
	if assistant.Role != "assistant" || len(assistant.Content) != 2 {
		t.Fatalf("unexpected assistant message %+v", assistant)
	}
	toolUse := assistant.Content[1]
	if toolUse.Type != "tool_use" || toolUse.ID != "tu_1" || string(toolUse.Input) != `{"dir":"."}` {
		t.Errorf("unexpected tool_use block %+v", toolUse)
	}

	result := request.Messages[2]
	if result.Role != "user" || len(result.Content) != 1 {
		t.Fatalf("expected a user message with one tool_result, got %+v", result)
	}
	if result.Content[0].Type != "tool_result" || result.Content[0].ToolUseID != "tu_1" || result.Content[0].Content != "a.go\nb.go" {
		t.Errorf("unexpected tool_result block %+v", result.Content[0])
	}
}

func TestEncodeRequest_ImageSources(t *testing.T) {
	conversation := []ai.ChatMessage{ai.NewBlocks(ai.RoleUser,
		ai.ImageBlock(ai.ImageSource{Type: ai.ImageSourceBase64, MediaType: "image/png", Data: "iVBOR"}),
		ai.ImageBlock(ai.ImageSource{Type: ai.ImageSourceURL, URL: "https://example.com/cat.png"}),
	)}

	request := encode(t, conversation, nil, defaultConfig())
	blocks := request.Messages[0].Content
	if blocks[0].Type != "image" || blocks[0].Source == nil || blocks[0].Source.Type != "base64" || blocks[0].Source.MediaType != "image/png" {
		t.Errorf("unexpected base64 image %+v", blocks[0])
	}
	if blocks[1].Type != "text" || blocks[1].Text != "[Image URL: https://example.com/cat.png]" {
		t.Errorf("URL image must become a text placeholder, got %+v", blocks[1])
	}
}

func TestEncodeRequest_GenerationParameters(t *testing.T) {
	testCases := []struct {
		temperature float64
		want        float64
	}{
		{temperature: 0.7, want: 0.7},
		{temperature: 1.8, want: 1},
		{temperature: -0.5, want: 0},
		{temperature: math.NaN(), want: ai.DefaultTemperature},
	}

	for _, testCase := range testCases {
		config := defaultConfig()
		config.Temperature = testCase.temperature
		config.MaxTokens = 1234
		request := encode(t, []ai.ChatMessage{ai.User("x")}, nil, config)
		if request.Temperature == nil || *request.Temperature != testCase.want {
			t.Errorf("temperature %v: got %v, want %v", testCase.temperature, request.Temperature, testCase.want)
		}
		if request.MaxTokens != 1234 || request.Model != DefaultModel {
			t.Errorf("unexpected parameters %+v", request)
		}
	}
}

func TestEncodeRequest_Tools(t *testing.T) {
	schema := json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"}}}`)
	tools := []ai.Tool{
		{Name: "read_file", Description: "Read a file", InputSchema: schema},
		{Name: "now", Description: "Current time"},
	}

	request := encode(t, []ai.ChatMessage{ai.User("x")}, tools, defaultConfig())
	if len(request.Tools) != 2 {
		t.Fatalf("expected 2 tools, got %d", len(request.Tools))
	}
	if string(request.Tools[0].InputSchema) != string(schema) {
		t.Errorf("schema must be passed verbatim, got %s", request.Tools[0].InputSchema)
	}
	if string(request.Tools[1].InputSchema) != string(emptyObjectSchema) {
		t.Errorf("missing schema must default to an empty object schema, got %s", request.Tools[1].InputSchema)
	}
}

func TestEncodeRequest_WireShape(t *testing.T) {
	request := encode(t, []ai.ChatMessage{ai.User("hello")}, nil, defaultConfig())
	encoded, err := json.Marshal(request)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var wire map[string]any
	if err := json.Unmarshal(encoded, &wire); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := wire["system"]; ok {
		t.Error("system must be omitted when empty")
	}
	if _, ok := wire["tools"]; ok {
		t.Error("tools must be omitted when empty")
	}
	messages := wire["messages"].([]any)
	content := messages[0].(map[string]any)["content"].([]any)
	if content[0].(map[string]any)["text"] != "hello" {
		t.Errorf("unexpected content %v", content)
	}
}

func TestDecodeResponse(t *testing.T) {
	body := []byte(`{
		"id": "msg_01",
		"type": "message",
		"role": "assistant",
		"model": "claude-sonnet-4-20250514",
		"content": [
			{"type": "text", "text": "Checking."},
			{"type": "thinking", "thinking": "hidden"},
			{"type": "tool_use", "id": "tu_9", "name": "read_file", "input": {"path": "go.mod", "lines": [1, 2]}}
		],
		"stop_reason": "tool_use",
		"usage": {"input_tokens": 40, "output_tokens": 12}
	}`)

	response, err := Transcoder{}.DecodeResponse(body)
	if err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	if response.ID != "msg_01" || response.Model != "claude-sonnet-4-20250514" {
		t.Errorf("unexpected identity %+v", response)
	}
	if len(response.Content) != 2 || response.Text() != "Checking." {
		t.Errorf("unexpected content %+v", response.Content)
	}
	if response.StopReason == nil || *response.StopReason != ai.StopToolUse {
		t.Errorf("unexpected stop reason %v", response.StopReason)
	}
	if response.Usage != (ai.Usage{InputTokens: 40, OutputTokens: 12}) {
		t.Errorf("unexpected usage %+v", response.Usage)
	}

	var got, want any
	_ = json.Unmarshal(response.ToolCalls()[0].Arguments, &got)
	_ = json.Unmarshal([]byte(`{"path":"go.mod","lines":[1,2]}`), &want)
	if !reflect.DeepEqual(got, want) {
		t.Errorf("tool arguments changed: %s", response.ToolCalls()[0].Arguments)
	}
}

func TestTextRoundTrip(t *testing.T) {
	request := encode(t, []ai.ChatMessage{ai.Assistant("2+2 is 4")}, nil, defaultConfig())
	if len(request.Messages) != 1 || request.Messages[0].Role != "assistant" {
		t.Fatalf("unexpected messages %+v", request.Messages)
	}

	blocks := make([]responseContentBlock, 0, len(request.Messages[0].Content))
	for _, block := range request.Messages[0].Content {
		blocks = append(blocks, responseContentBlock{Type: block.Type, Text: block.Text})
	}
	raw, err := json.Marshal(anthropicResponse{
		ID: "msg_rt", Type: "message", Role: request.Messages[0].Role,
		Content: blocks, StopReason: "end_turn",
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var wire struct {
		Role string `json:"role"`
	}
	_ = json.Unmarshal(raw, &wire)
	if wire.Role != "assistant" {
		t.Errorf("role changed on the wire: %q", wire.Role)
	}

	response, err := Transcoder{}.DecodeResponse(raw)
	if err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	if response.Text() != "2+2 is 4" {
		t.Errorf("unexpected text %q", response.Text())
	}
}

func TestMapStopReason(t *testing.T) {
	testCases := map[string]ai.StopReason{
		"end_turn":      ai.StopEndTurn,
		"max_tokens":    ai.StopMaxTokens,
		"stop_sequence": ai.StopStopSequence,
		"tool_use":      ai.StopToolUse,
		"pause_turn":    ai.StopEndTurn,
		"refusal":       ai.StopEndTurn,
	}
	for vendor, want := range testCases {
		if got := mapStopReason(vendor); got != want {
			t.Errorf("mapStopReason(%q) = %q, want %q", vendor, got, want)
		}
	}
}

// Tool arguments survive a request encode and a response decode unchanged.
func TestToolArguments_RoundTrip(t *testing.T) {
	arguments := json.RawMessage(`{"query":"naïve \"quoted\"","limit":5,"nested":{"ok":true}}`)
	request := encode(t, []ai.ChatMessage{ai.NewBlocks(ai.RoleAssistant, ai.ToolUseBlock("tu", "search", arguments))}, nil, defaultConfig())

	encoded, err := json.Marshal(anthropicResponse{
		ID: "m", Content: []responseContentBlock{{Type: "tool_use", ID: "tu", Name: "search", Input: request.Messages[0].Content[0].Input}},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	response, err := Transcoder{}.DecodeResponse(encoded)
	if err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}

	var got, want any
	_ = json.Unmarshal(response.ToolCalls()[0].Arguments, &got)
	_ = json.Unmarshal(arguments, &want)
	if !reflect.DeepEqual(got, want) {
		t.Errorf("arguments changed in round trip: %s", response.ToolCalls()[0].Arguments)
	}
}

func TestErrorMessage(t *testing.T) {
	message, ok := Transcoder{}.ErrorMessage([]byte(`{"type":"error","error":{"type":"invalid_request_error","message":"max_tokens: must be positive"}}`))
	if !ok || message != "max_tokens: must be positive" {
		t.Errorf("ErrorMessage() = %q, %v", message, ok)
	}
	if _, ok := (Transcoder{}).ErrorMessage([]byte("<html>bad gateway</html>")); ok {
		t.Error("non-JSON bodies must not parse")
	}
}

func TestTranscoder_Identity(t *testing.T) {
	transcoder := Transcoder{}
	if transcoder.Endpoint("") != "https://api.anthropic.com/v1/messages" {
		t.Errorf("unexpected default endpoint %q", transcoder.Endpoint(""))
	}
	if transcoder.Endpoint("http://localhost:8080/v1/") != "http://localhost:8080/v1/messages" {
		t.Errorf("unexpected custom endpoint %q", transcoder.Endpoint("http://localhost:8080/v1/"))
	}
	headers := map[string]string{}
	for _, header := range transcoder.Headers("sk-ant") {
		headers[header.Key] = header.Value
	}
	if headers["x-api-key"] != "sk-ant" || headers["anthropic-version"] != "2023-06-01" {
		t.Errorf("unexpected headers %v", headers)
	}

	models := transcoder.AvailableModels()
	models[0] = "mutated"
	if transcoder.AvailableModels()[0] != DefaultModel {
		t.Error("AvailableModels must return a copy")
	}
}
