package ai

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

/*
	##### CONVERSATION INPUT #####
*/

// Role identifies the author of a ChatMessage.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// BlockType discriminates the ContentBlock union.
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockImage      BlockType = "image"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
)

// ImageSourceType discriminates ImageSource.
type ImageSourceType string

const (
	ImageSourceBase64 ImageSourceType = "base64"
	ImageSourceURL    ImageSourceType = "url"
)

// ImageSource is either inline base64 data with its media type, or a URL.
type ImageSource struct {
	Type      ImageSourceType `json:"type"`
	MediaType string          `json:"media_type,omitempty"`
	Data      string          `json:"data,omitempty"`
	URL       string          `json:"url,omitempty"`
}

// ContentBlock is one typed piece of message content. Only the fields of
// its Type are meaningful:
//
//	text:        Text
//	image:       Source
//	tool_use:    ID, Name, Input (a JSON document)
//	tool_result: ToolUseID, Content, IsError
type ContentBlock struct {
	Type BlockType `json:"type"`

	Text string `json:"text,omitempty"`

	Source *ImageSource `json:"source,omitempty"`

	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   *bool  `json:"is_error,omitempty"`
}

// TextBlock returns a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

// ImageBlock returns an image content block.
func ImageBlock(source ImageSource) ContentBlock {
	return ContentBlock{Type: BlockImage, Source: &source}
}

// ToolUseBlock returns a tool invocation block. A nil or empty input is
// replaced by an empty JSON object.
func ToolUseBlock(id, name string, input json.RawMessage) ContentBlock {
	if len(bytes.TrimSpace(input)) == 0 {
		input = json.RawMessage(`{}`)
	}
	return ContentBlock{Type: BlockToolUse, ID: id, Name: name, Input: input}
}

// ToolResultBlock returns the outcome of the tool call identified by toolUseID.
func ToolResultBlock(toolUseID, content string, isError bool) ContentBlock {
	block := ContentBlock{Type: BlockToolResult, ToolUseID: toolUseID, Content: content}
	if isError {
		block.IsError = &isError
	}
	return block
}

// ChatMessage is one turn of a conversation. Content is either plain text or
// an ordered list of blocks; Blocks == nil means the text form is in use.
type ChatMessage struct {
	Role   Role
	Text   string
	Blocks []ContentBlock
}

// NewText returns a plain-text message.
func NewText(role Role, text string) ChatMessage {
	return ChatMessage{Role: role, Text: text}
}

// NewBlocks returns a block-based message. A nil slice is stored as empty so
// the message keeps its block form.
func NewBlocks(role Role, blocks ...ContentBlock) ChatMessage {
	if blocks == nil {
		blocks = []ContentBlock{}
	}
	return ChatMessage{Role: role, Blocks: blocks}
}

func System(text string) ChatMessage    { return NewText(RoleSystem, text) }
func User(text string) ChatMessage      { return NewText(RoleUser, text) }
func Assistant(text string) ChatMessage { return NewText(RoleAssistant, text) }

// ToolResultMessage wraps a single tool result in a user-role message, which
// is where both vendors expect tool output to travel back.
func ToolResultMessage(toolUseID, content string, isError bool) ChatMessage {
	return NewBlocks(RoleUser, ToolResultBlock(toolUseID, content, isError))
}

// IsText reports whether the message uses the plain-text form.
func (m ChatMessage) IsText() bool {
	return m.Blocks == nil
}

// ContentBlocks returns the message content as blocks. A text message yields a
// single text block, or none when the text is empty.
func (m ChatMessage) ContentBlocks() []ContentBlock {
	if !m.IsText() {
		return m.Blocks
	}
	if m.Text == "" {
		return nil
	}
	return []ContentBlock{TextBlock(m.Text)}
}

// PlainText concatenates the message's text content. Non-text blocks are skipped.
func (m ChatMessage) PlainText() string {
	if m.IsText() {
		return m.Text
	}
	var builder strings.Builder
	for _, block := range m.Blocks {
		if block.Type == BlockText {
			builder.WriteString(block.Text)
		}
	}
	return builder.String()
}

// HasToolResults reports whether any block is a tool_result.
func (m ChatMessage) HasToolResults() bool {
	for _, block := range m.Blocks {
		if block.Type == BlockToolResult {
			return true
		}
	}
	return false
}

type chatMessageJSON struct {
	Role    Role            `json:"role"`
	Content json.RawMessage `json:"content"`
}

// MarshalJSON encodes content as a JSON string for the text form and as an
// array of blocks otherwise.
func (m ChatMessage) MarshalJSON() ([]byte, error) {
	var content any = m.Text
	if !m.IsText() {
		content = m.Blocks
	}
	raw, err := json.Marshal(content)
	if err != nil {
		return nil, err
	}
	return json.Marshal(chatMessageJSON{Role: m.Role, Content: raw})
}

// UnmarshalJSON accepts "content" as either a string or an array of blocks.
func (m *ChatMessage) UnmarshalJSON(data []byte) error {
	var wire chatMessageJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	m.Role = wire.Role
	m.Text = ""
	m.Blocks = nil

	trimmed := bytes.TrimSpace(wire.Content)
	switch {
	case len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")):
		return nil
	case trimmed[0] == '"':
		return json.Unmarshal(trimmed, &m.Text)
	case trimmed[0] == '[':
		m.Blocks = []ContentBlock{}
		return json.Unmarshal(trimmed, &m.Blocks)
	default:
		return errors.New("message content must be a string or an array of blocks")
	}
}

// Tool describes a function the model may call. InputSchema is a JSON Schema
// document passed to the vendor verbatim.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

/*
	##### MODEL OUTPUT #####
*/

// StopReason is the unified reason a generation ended.
type StopReason string

const (
	StopEndTurn      StopReason = "end_turn"
	StopMaxTokens    StopReason = "max_tokens"
	StopStopSequence StopReason = "stop_sequence"
	StopToolUse      StopReason = "tool_use"
)

// Usage counts tokens consumed by one call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// ToolCall is a tool invocation extracted from a response.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ChatResponse is the result of a one-shot call, or of a collected stream.
type ChatResponse struct {
	ID         string         `json:"id"`
	Content    []ContentBlock `json:"content"`
	StopReason *StopReason    `json:"stop_reason,omitempty"`
	Usage      Usage          `json:"usage"`
	Model      string         `json:"model"`
}

// Text concatenates all text blocks in order.
func (r *ChatResponse) Text() string {
	if r == nil {
		return ""
	}
	var builder strings.Builder
	for _, block := range r.Content {
		if block.Type == BlockText {
			builder.WriteString(block.Text)
		}
	}
	return builder.String()
}

// ToolCalls returns the tool_use blocks in order as ToolCalls.
func (r *ChatResponse) ToolCalls() []ToolCall {
	if r == nil {
		return nil
	}
	var calls []ToolCall
	for _, block := range r.Content {
		if block.Type == BlockToolUse {
			calls = append(calls, ToolCall{ID: block.ID, Name: block.Name, Arguments: block.Input})
		}
	}
	return calls
}

// HasToolCalls reports whether the response contains at least one tool_use block.
func (r *ChatResponse) HasToolCalls() bool {
	if r == nil {
		return false
	}
	for _, block := range r.Content {
		if block.Type == BlockToolUse {
			return true
		}
	}
	return false
}

// String is used by the CLI for concise logging.
func (r *ChatResponse) String() string {
	if r == nil {
		return "ChatResponse<nil>"
	}
	stop := "none"
	if r.StopReason != nil {
		stop = string(*r.StopReason)
	}
	return fmt.Sprintf("ChatResponse{id=%s model=%s stop=%s blocks=%d in=%d out=%d}",
		r.ID, r.Model, stop, len(r.Content), r.Usage.InputTokens, r.Usage.OutputTokens)
}
