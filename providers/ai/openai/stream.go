package openai

import (
	"fmt"
	"io"
	"slices"

	"github.com/opensesh/sesh/internal/utils"
	"github.com/opensesh/sesh/providers/ai"
)

// textIndex is the emitted index of the single text block. Tool call n of
// the vendor stream is emitted at n+1.
const textIndex = 0

// streamDecoder synthesizes the block lifecycle Chat Completions streams
// leave implicit.
//
// OpenAI SSE lifecycle:
//
//	chunk(role) → chunk(content | tool_calls)* → chunk(finish_reason) →
//	chunk(usage, no choices) → [DONE]
type streamDecoder struct {
	model string

	started bool
	// opened records every emitted index that has had a block start; open
	// holds the ones not yet stopped.
	opened map[int]bool
	open   map[int]bool

	stopReason *ai.StopReason
	usage      *ai.Usage
	deltaSent  bool
	terminal   bool
}

func newStreamDecoder(model string) *streamDecoder {
	return &streamDecoder{
		model:  model,
		opened: map[int]bool{},
		open:   map[int]bool{},
	}
}

func (d *streamDecoder) startBlock(index int, block ai.ContentBlock) []ai.ChatChunk {
	if d.opened[index] {
		return nil
	}
	d.opened[index] = true
	d.open[index] = true
	return []ai.ChatChunk{ai.BlockStartChunk(index, block)}
}

// closeOpenBlocks stops every open block in index order.
func (d *streamDecoder) closeOpenBlocks() []ai.ChatChunk {
	indices := make([]int, 0, len(d.open))
	for index := range d.open {
		indices = append(indices, index)
	}
	slices.Sort(indices)

	chunks := make([]ai.ChatChunk, 0, len(indices))
	for _, index := range indices {
		delete(d.open, index)
		chunks = append(chunks, ai.BlockStopChunk(index))
	}
	return chunks
}

func (d *streamDecoder) messageDelta() []ai.ChatChunk {
	if d.deltaSent || (d.stopReason == nil && d.usage == nil) {
		return nil
	}
	d.deltaSent = true
	return []ai.ChatChunk{ai.MessageDeltaChunk(d.stopReason, d.usage)}
}

func (d *streamDecoder) Decode(frame utils.SSEFrame) ([]ai.ChatChunk, error) {
	if d.terminal {
		return nil, nil
	}

	chunk, err := unmarshalStreamChunk(frame.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ai.ErrMalformedFrame, err)
	}

	if chunk.Error != nil {
		d.terminal = true
		message := chunk.Error.Message
		if message == "" {
			message = "unknown stream error"
		}
		if chunk.Error.Type != "" {
			message = chunk.Error.Type + ": " + message
		}
		return nil, ai.NewStreamError(ProviderName, message, nil)
	}

	var out []ai.ChatChunk
	if !d.started {
		d.started = true
		model := chunk.Model
		if model == "" {
			model = d.model
		}
		out = append(out, ai.MessageStartChunk(chunk.ID, model))
	}

	for _, choice := range chunk.Choices {
		// n > 1 is never requested; extra choices are ignored.
		if choice.Index != 0 {
			continue
		}

		if content := choice.Delta.Content; content != nil && *content != "" {
			out = append(out, d.startBlock(textIndex, ai.TextBlock(""))...)
			out = append(out, ai.TextDeltaChunk(textIndex, *content))
		}

		for _, part := range choice.Delta.ToolCalls {
			index := part.Index + 1
			out = append(out, d.startBlock(index, ai.ToolUseBlock(part.ID, part.Function.Name, nil))...)
			if part.Function.Arguments != "" {
				out = append(out, ai.InputJSONDeltaChunk(index, part.Function.Arguments))
			}
		}

		if choice.FinishReason != nil && *choice.FinishReason != "" {
			out = append(out, d.closeOpenBlocks()...)
			d.stopReason = utils.Ptr(mapFinishReason(*choice.FinishReason))
		}
	}

	if chunk.Usage != nil {
		d.usage = &ai.Usage{
			InputTokens:  chunk.Usage.PromptTokens,
			OutputTokens: chunk.Usage.CompletionTokens,
		}
		// Some servers attach usage to every chunk; hold the delta until
		// the finish reason is known.
		if d.stopReason != nil {
			out = append(out, d.messageDelta()...)
		}
	}

	return out, nil
}

func (d *streamDecoder) Finish(sawDone bool) ([]ai.ChatChunk, error) {
	if d.terminal {
		return nil, nil
	}
	d.terminal = true
	if !sawDone {
		return nil, ai.NewStreamError(ProviderName, "stream ended before [DONE]", io.ErrUnexpectedEOF)
	}

	out := d.closeOpenBlocks()
	out = append(out, d.messageDelta()...)
	return append(out, ai.MessageStopChunk()), nil
}
