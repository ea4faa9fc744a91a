package ai

import (
	"encoding/json"
	"iter"
	"slices"
	"strings"

	"github.com/opensesh/sesh/internal/utils"
)

// ChunkType identifies the kind of a ChatChunk.
type ChunkType string

const (
	ChunkMessageStart      ChunkType = "message_start"
	ChunkContentBlockStart ChunkType = "content_block_start"
	ChunkContentBlockDelta ChunkType = "content_block_delta"
	ChunkContentBlockStop  ChunkType = "content_block_stop"
	ChunkMessageDelta      ChunkType = "message_delta"
	ChunkMessageStop       ChunkType = "message_stop"
	ChunkError             ChunkType = "error"
	ChunkPing              ChunkType = "ping"
)

// DeltaType identifies the kind of a ContentDelta.
type DeltaType string

const (
	DeltaText      DeltaType = "text_delta"
	DeltaInputJSON DeltaType = "input_json_delta"
)

// ContentDelta is an incremental addition to one content block. Input JSON
// fragments for a block are concatenated in arrival order; only the complete
// concatenation is guaranteed to be a JSON document.
type ContentDelta struct {
	Type        DeltaType `json:"type"`
	Text        string    `json:"text,omitempty"`
	PartialJSON string    `json:"partial_json,omitempty"`
}

// ChatChunk is one event of a streamed response. Field usage per Type:
//
//	message_start:       ID, Model
//	content_block_start: Index, Block (fields known at start; tool input is empty)
//	content_block_delta: Index, Delta
//	content_block_stop:  Index
//	message_delta:       StopReason, Usage (either may be nil)
//	error:               Message
//
// Each block keeps one index from its start to its stop, and no index is
// reused within one stream.
type ChatChunk struct {
	Type       ChunkType     `json:"type"`
	ID         string        `json:"id,omitempty"`
	Model      string        `json:"model,omitempty"`
	Index      int           `json:"index"`
	Block      *ContentBlock `json:"content_block,omitempty"`
	Delta      *ContentDelta `json:"delta,omitempty"`
	StopReason *StopReason   `json:"stop_reason,omitempty"`
	Usage      *Usage        `json:"usage,omitempty"`
	Message    string        `json:"message,omitempty"`
}

func MessageStartChunk(id, model string) ChatChunk {
	return ChatChunk{Type: ChunkMessageStart, ID: id, Model: model}
}

func BlockStartChunk(index int, block ContentBlock) ChatChunk {
	return ChatChunk{Type: ChunkContentBlockStart, Index: index, Block: &block}
}

func TextDeltaChunk(index int, text string) ChatChunk {
	return ChatChunk{Type: ChunkContentBlockDelta, Index: index, Delta: &ContentDelta{Type: DeltaText, Text: text}}
}

func InputJSONDeltaChunk(index int, partialJSON string) ChatChunk {
	return ChatChunk{Type: ChunkContentBlockDelta, Index: index, Delta: &ContentDelta{Type: DeltaInputJSON, PartialJSON: partialJSON}}
}

func BlockStopChunk(index int) ChatChunk {
	return ChatChunk{Type: ChunkContentBlockStop, Index: index}
}

func MessageDeltaChunk(stopReason *StopReason, usage *Usage) ChatChunk {
	return ChatChunk{Type: ChunkMessageDelta, StopReason: stopReason, Usage: usage}
}

func MessageStopChunk() ChatChunk { return ChatChunk{Type: ChunkMessageStop} }

func ErrorChunk(message string) ChatChunk { return ChatChunk{Type: ChunkError, Message: message} }

func PingChunk() ChatChunk { return ChatChunk{Type: ChunkPing} }

// IsTerminal reports whether no further chunk can follow this one.
func (c ChatChunk) IsTerminal() bool {
	return c.Type == ChunkMessageStop || c.Type == ChunkError
}

// ChatStream is a lazy, finite, single-pass sequence of chunks. It ends after
// the first terminal chunk (message_stop or error). An error chunk is always
// yielded together with a non-nil *Error.
//
// Callers must either range over Iter (breaking early is fine) or call
// Collect. Breaking out of the loop releases the underlying connection; a
// stream that is never iterated keeps nothing open, because the request is
// only sent on the first pull.
type ChatStream struct {
	iterator iter.Seq2[ChatChunk, error]
}

// NewChatStream wraps a chunk sequence.
func NewChatStream(iterator iter.Seq2[ChatChunk, error]) *ChatStream {
	return &ChatStream{iterator: iterator}
}

// Iter returns the underlying sequence for range-over-func loops.
//
//	for chunk, err := range stream.Iter() {
//	    if err != nil { return err }
//	    if chunk.Delta != nil { fmt.Print(chunk.Delta.Text) }
//	}
func (stream *ChatStream) Iter() iter.Seq2[ChatChunk, error] {
	return stream.iterator
}

// Collect consumes the stream and folds it into a ChatResponse. On a stream
// error the partially collected response is returned together with the
// error. Tool arguments are parsed once their block is complete; a document
// cut short (typically by max_tokens) is repaired when possible.
func (stream *ChatStream) Collect() (*ChatResponse, error) {
	accumulated := &ChatResponse{}
	builders := map[int]*blockBuilder{}

	for chunk, err := range stream.iterator {
		if err != nil {
			accumulated.Content = finalizeBlocks(builders)
			return accumulated, err
		}

		switch chunk.Type {
		case ChunkMessageStart:
			accumulated.ID = chunk.ID
			accumulated.Model = chunk.Model

		case ChunkContentBlockStart:
			if chunk.Block != nil {
				builders[chunk.Index] = &blockBuilder{block: *chunk.Block}
			}

		case ChunkContentBlockDelta:
			if chunk.Delta == nil {
				continue
			}
			builder, ok := builders[chunk.Index]
			if !ok {
				builder = implicitBuilder(chunk.Delta.Type)
				builders[chunk.Index] = builder
			}
			switch chunk.Delta.Type {
			case DeltaText:
				builder.text.WriteString(chunk.Delta.Text)
			case DeltaInputJSON:
				builder.input.WriteString(chunk.Delta.PartialJSON)
			}

		case ChunkMessageDelta:
			if chunk.StopReason != nil {
				accumulated.StopReason = chunk.StopReason
			}
			if chunk.Usage != nil {
				accumulated.Usage = *chunk.Usage
			}
		}
	}

	accumulated.Content = finalizeBlocks(builders)
	return accumulated, nil
}

type blockBuilder struct {
	block ContentBlock
	text  strings.Builder
	input strings.Builder
}

// implicitBuilder covers deltas that arrive without a preceding block start.
func implicitBuilder(deltaType DeltaType) *blockBuilder {
	if deltaType == DeltaInputJSON {
		return &blockBuilder{block: ContentBlock{Type: BlockToolUse}}
	}
	return &blockBuilder{block: ContentBlock{Type: BlockText}}
}

func (b *blockBuilder) finalize() ContentBlock {
	block := b.block
	switch block.Type {
	case BlockText:
		block.Text += b.text.String()
	case BlockToolUse:
		block.Input = finalizeToolInput(block.Input, b.input.String())
	}
	return block
}

func finalizeToolInput(startInput json.RawMessage, fragments string) json.RawMessage {
	if fragments == "" {
		if len(startInput) == 0 {
			return json.RawMessage(`{}`)
		}
		return startInput
	}
	repaired, err := utils.RepairJSON(fragments)
	if err != nil {
		// Keep the text so nothing the model produced is lost.
		quoted, _ := json.Marshal(fragments)
		return quoted
	}
	return repaired
}

func finalizeBlocks(builders map[int]*blockBuilder) []ContentBlock {
	indices := make([]int, 0, len(builders))
	for index := range builders {
		indices = append(indices, index)
	}
	slices.Sort(indices)

	blocks := make([]ContentBlock, 0, len(indices))
	for _, index := range indices {
		blocks = append(blocks, builders[index].finalize())
	}
	return blocks
}
