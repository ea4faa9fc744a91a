package relay

import (
	"encoding/json"

	"github.com/opensesh/sesh/providers/ai"
)

// EventType identifies the kind of a StreamEvent.
type EventType string

const (
	EventMessageStart      EventType = "message_start"
	EventContentBlockStart EventType = "content_block_start"
	EventTextDelta         EventType = "text_delta"
	EventToolUseDelta      EventType = "tool_use_delta"
	EventContentBlockStop  EventType = "content_block_stop"
	EventMessageDelta      EventType = "message_delta"
	EventError             EventType = "error"
	EventDone              EventType = "done"
	// EventResponse carries a complete one-shot answer.
	EventResponse EventType = "response"
)

// StreamEvent is the UI-facing shape of one step of an answer. Field usage
// per Type:
//
//	message_start:       ID, Model
//	content_block_start: Index, BlockType
//	text_delta:          Index, Text
//	tool_use_delta:      Index, PartialJSON
//	content_block_stop:  Index
//	message_delta:       StopReason
//	error:               Message
//	response:            Response
type StreamEvent struct {
	Type        EventType       `json:"type"`
	StreamID    string          `json:"stream_id,omitempty"`
	ID          string          `json:"id,omitempty"`
	Model       string          `json:"model,omitempty"`
	Index       *int            `json:"index,omitempty"`
	BlockType   string          `json:"block_type,omitempty"`
	Text        string          `json:"text,omitempty"`
	PartialJSON string          `json:"partial_json,omitempty"`
	StopReason  *string         `json:"stop_reason,omitempty"`
	Message     string          `json:"message,omitempty"`
	Response    *ResponseOutput `json:"response,omitempty"`
}

// FromChunk maps a chunk to its event. ok is false for chunks the UI does
// not see (pings, deltas of unknown type). message_stop maps to done.
func FromChunk(chunk ai.ChatChunk) (event StreamEvent, ok bool) {
	index := chunk.Index
	switch chunk.Type {
	case ai.ChunkMessageStart:
		return StreamEvent{Type: EventMessageStart, ID: chunk.ID, Model: chunk.Model}, true
	case ai.ChunkContentBlockStart:
		blockType := string(ai.BlockText)
		if chunk.Block != nil {
			blockType = string(chunk.Block.Type)
		}
		return StreamEvent{Type: EventContentBlockStart, Index: &index, BlockType: blockType}, true
	case ai.ChunkContentBlockDelta:
		if chunk.Delta == nil {
			return StreamEvent{}, false
		}
		switch chunk.Delta.Type {
		case ai.DeltaText:
			return StreamEvent{Type: EventTextDelta, Index: &index, Text: chunk.Delta.Text}, true
		case ai.DeltaInputJSON:
			return StreamEvent{Type: EventToolUseDelta, Index: &index, PartialJSON: chunk.Delta.PartialJSON}, true
		}
		return StreamEvent{}, false
	case ai.ChunkContentBlockStop:
		return StreamEvent{Type: EventContentBlockStop, Index: &index}, true
	case ai.ChunkMessageDelta:
		event := StreamEvent{Type: EventMessageDelta}
		if chunk.StopReason != nil {
			reason := string(*chunk.StopReason)
			event.StopReason = &reason
		}
		return event, true
	case ai.ChunkMessageStop:
		return StreamEvent{Type: EventDone}, true
	case ai.ChunkError:
		return StreamEvent{Type: EventError, Message: chunk.Message}, true
	default:
		return StreamEvent{}, false
	}
}

// ResponseOutput is the flattened form of a one-shot answer.
type ResponseOutput struct {
	ID         string           `json:"id"`
	Content    string           `json:"content"`
	ToolCalls  []ToolCallOutput `json:"tool_calls"`
	StopReason *string          `json:"stop_reason,omitempty"`
	Usage      ai.Usage         `json:"usage"`
	Model      string           `json:"model"`
}

type ToolCallOutput struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// NewResponseOutput flattens response.
func NewResponseOutput(response *ai.ChatResponse) *ResponseOutput {
	output := &ResponseOutput{
		ID:        response.ID,
		Content:   response.Text(),
		ToolCalls: []ToolCallOutput{},
		Usage:     response.Usage,
		Model:     response.Model,
	}
	for _, call := range response.ToolCalls() {
		output.ToolCalls = append(output.ToolCalls, ToolCallOutput{ID: call.ID, Name: call.Name, Arguments: call.Arguments})
	}
	if response.StopReason != nil {
		reason := string(*response.StopReason)
		output.StopReason = &reason
	}
	return output
}
