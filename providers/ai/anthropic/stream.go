package anthropic

import (
	"fmt"
	"io"

	"github.com/opensesh/sesh/internal/utils"
	"github.com/opensesh/sesh/providers/ai"
)

// streamDecoder translates Anthropic SSE events into unified chunks.
//
// Anthropic SSE lifecycle:
//
//	message_start → content_block_start → content_block_delta(s) →
//	content_block_stop → message_delta → message_stop
type streamDecoder struct {
	// indices maps the vendor block index to the emitted index.
	indices map[int]int
	// ignored holds vendor indices of block types with no unified form
	// (thinking, server tools); their deltas and stops are dropped.
	ignored map[int]bool
	open    map[int]bool
	next    int

	// inputTokens arrives on message_start, output tokens on message_delta.
	inputTokens int
	terminal    bool
}

func newStreamDecoder() *streamDecoder {
	return &streamDecoder{
		indices: map[int]int{},
		ignored: map[int]bool{},
		open:    map[int]bool{},
	}
}

func (d *streamDecoder) assign(vendorIndex int) int {
	if index, ok := d.indices[vendorIndex]; ok {
		return index
	}
	index := d.next
	d.next++
	d.indices[vendorIndex] = index
	d.open[index] = true
	return index
}

func (d *streamDecoder) Decode(frame utils.SSEFrame) ([]ai.ChatChunk, error) {
	if d.terminal {
		return nil, nil
	}

	event, err := unmarshalStreamEvent(frame.Event, frame.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ai.ErrMalformedFrame, err)
	}

	switch event.Type {
	case "message_start":
		if event.Message == nil {
			return nil, fmt.Errorf("%w: message_start without message", ai.ErrMalformedFrame)
		}
		d.inputTokens = event.Message.Usage.InputTokens
		return []ai.ChatChunk{ai.MessageStartChunk(event.Message.ID, event.Message.Model)}, nil

	case "content_block_start":
		if event.ContentBlock == nil {
			return nil, fmt.Errorf("%w: content_block_start without content_block", ai.ErrMalformedFrame)
		}
		var block ai.ContentBlock
		switch event.ContentBlock.Type {
		case "text":
			block = ai.TextBlock(event.ContentBlock.Text)
		case "tool_use":
			block = ai.ToolUseBlock(event.ContentBlock.ID, event.ContentBlock.Name, nil)
		default:
			d.ignored[event.Index] = true
			return nil, nil
		}
		return []ai.ChatChunk{ai.BlockStartChunk(d.assign(event.Index), block)}, nil

	case "content_block_delta":
		if event.Delta == nil {
			return nil, fmt.Errorf("%w: content_block_delta without delta", ai.ErrMalformedFrame)
		}
		if d.ignored[event.Index] {
			return nil, nil
		}
		switch event.Delta.Type {
		case "text_delta":
			return []ai.ChatChunk{ai.TextDeltaChunk(d.assign(event.Index), event.Delta.Text)}, nil
		case "input_json_delta":
			return []ai.ChatChunk{ai.InputJSONDeltaChunk(d.assign(event.Index), event.Delta.PartialJSON)}, nil
		}
		// thinking_delta, signature_delta and future delta types
		return nil, nil

	case "content_block_stop":
		index, known := d.indices[event.Index]
		if !known || !d.open[index] {
			return nil, nil
		}
		delete(d.open, index)
		return []ai.ChatChunk{ai.BlockStopChunk(index)}, nil

	case "message_delta":
		var stopReason *ai.StopReason
		if event.Delta != nil && event.Delta.StopReason != "" {
			stopReason = utils.Ptr(mapStopReason(event.Delta.StopReason))
		}
		usage := &ai.Usage{InputTokens: d.inputTokens}
		if event.Usage != nil {
			usage.OutputTokens = event.Usage.OutputTokens
			if event.Usage.InputTokens > 0 {
				usage.InputTokens = event.Usage.InputTokens
			}
		}
		return []ai.ChatChunk{ai.MessageDeltaChunk(stopReason, usage)}, nil

	case "message_stop":
		d.terminal = true
		return []ai.ChatChunk{ai.MessageStopChunk()}, nil

	case "ping":
		return []ai.ChatChunk{ai.PingChunk()}, nil

	case "error":
		d.terminal = true
		message := "unknown stream error"
		if event.Error != nil {
			message = event.Error.Message
			if event.Error.Type != "" {
				message = event.Error.Type + ": " + message
			}
		}
		return nil, ai.NewStreamError(ProviderName, message, nil)
	}

	// Event types added after this decoder was written
	return nil, nil
}

func (d *streamDecoder) Finish(sawDone bool) ([]ai.ChatChunk, error) {
	if d.terminal {
		return nil, nil
	}
	d.terminal = true
	if sawDone {
		return []ai.ChatChunk{ai.MessageStopChunk()}, nil
	}
	return nil, ai.NewStreamError(ProviderName, "stream ended before message_stop", io.ErrUnexpectedEOF)
}
