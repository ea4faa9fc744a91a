package anthropic

import (
	"encoding/json"
	"fmt"
)

/*
	ANTHROPIC SSE STREAMING - WIRE TYPES

	Each SSE frame carries an "event:" name and a JSON "data:" payload whose
	"type" field repeats the event name. The payload type is authoritative.

	Event lifecycle:
	  message_start → (content_block_start → content_block_delta* → content_block_stop)* →
	  message_delta → message_stop, with ping and error possible anywhere.
*/

type anthropicStreamEvent struct {
	Type         string                `json:"type"`
	Message      *anthropicResponse    `json:"message,omitempty"`       // message_start
	Index        int                   `json:"index"`                   // content_block_*
	ContentBlock *responseContentBlock `json:"content_block,omitempty"` // content_block_start
	Delta        *streamDelta          `json:"delta,omitempty"`         // content_block_delta, message_delta
	Usage        *anthropicUsage       `json:"usage,omitempty"`         // message_delta
	Error        *anthropicError       `json:"error,omitempty"`         // error
}

// streamDelta is either a content delta (text_delta, input_json_delta) or,
// on message_delta, the final stop reason.
type streamDelta struct {
	Type        string `json:"type,omitempty"`
	Text        string `json:"text,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
	StopReason  string `json:"stop_reason,omitempty"`
}

// unmarshalStreamEvent parses a data payload. The SSE event name is used
// when the payload has no type field.
func unmarshalStreamEvent(eventName, payload string) (*anthropicStreamEvent, error) {
	var event anthropicStreamEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return nil, err
	}
	if event.Type == "" {
		event.Type = eventName
	}
	if event.Type == "" {
		return nil, fmt.Errorf("missing type field in stream event")
	}
	return &event, nil
}
