package anthropic

import (
	"bytes"
	"encoding/json"

	"github.com/opensesh/sesh/internal/utils"
	"github.com/opensesh/sesh/providers/ai"
)

// emptyObjectSchema is sent for tools declared without a schema; Anthropic
// requires input_schema on every tool.
var emptyObjectSchema = json.RawMessage(`{"type":"object","properties":{}}`)

// requestToAnthropic converts a unified conversation and configuration
// snapshot into the Messages API request body.
func requestToAnthropic(messages []ai.ChatMessage, tools []ai.Tool, config ai.GenerationConfig, stream bool, temperature float64) anthropicRequest {
	request := anthropicRequest{
		Model:       config.Model,
		Messages:    buildMessages(messages),
		MaxTokens:   config.MaxTokens,
		Temperature: utils.Ptr(temperature),
		Stream:      stream,
	}
	request.System = resolveSystem(messages, config)

	for _, tool := range tools {
		schema := tool.InputSchema
		if len(bytes.TrimSpace(schema)) == 0 {
			schema = emptyObjectSchema
		}
		request.Tools = append(request.Tools, anthropicTool{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: schema,
		})
	}
	return request
}

// resolveSystem picks the configured prompt, or else the text of the first
// System message. Later System messages are dropped.
func resolveSystem(messages []ai.ChatMessage, config ai.GenerationConfig) string {
	if prompt, ok := config.System(); ok {
		return prompt
	}
	for _, message := range messages {
		if message.Role == ai.RoleSystem {
			return message.PlainText()
		}
	}
	return ""
}

// buildMessages maps every non-system message. A message carrying tool
// results becomes a user message holding only its tool_result blocks.
func buildMessages(messages []ai.ChatMessage) []anthropicMessage {
	result := make([]anthropicMessage, 0, len(messages))

	for _, message := range messages {
		if message.Role == ai.RoleSystem {
			continue
		}

		if message.HasToolResults() {
			var blocks []anthropicContentBlock
			for _, block := range message.Blocks {
				if block.Type == ai.BlockToolResult {
					blocks = append(blocks, anthropicContentBlock{
						Type:      "tool_result",
						ToolUseID: block.ToolUseID,
						Content:   block.Content,
						IsError:   block.IsError,
					})
				}
			}
			result = append(result, anthropicMessage{Role: "user", Content: blocks})
			continue
		}

		blocks := make([]anthropicContentBlock, 0, len(message.ContentBlocks()))
		for _, block := range message.ContentBlocks() {
			blocks = append(blocks, convertBlock(block))
		}
		if len(blocks) == 0 {
			continue
		}
		result = append(result, anthropicMessage{Role: mapRole(message.Role), Content: blocks})
	}

	return result
}

func mapRole(role ai.Role) string {
	if role == ai.RoleAssistant {
		return "assistant"
	}
	// user and tool
	return "user"
}

func convertBlock(block ai.ContentBlock) anthropicContentBlock {
	switch block.Type {
	case ai.BlockImage:
		if block.Source == nil {
			return anthropicContentBlock{Type: "text", Text: "[Image]"}
		}
		if block.Source.Type == ai.ImageSourceURL {
			return anthropicContentBlock{Type: "text", Text: "[Image URL: " + block.Source.URL + "]"}
		}
		return anthropicContentBlock{
			Type: "image",
			Source: &anthropicSource{
				Type:      "base64",
				MediaType: block.Source.MediaType,
				Data:      block.Source.Data,
			},
		}

	case ai.BlockToolUse:
		input := block.Input
		if len(bytes.TrimSpace(input)) == 0 {
			input = json.RawMessage(`{}`)
		}
		return anthropicContentBlock{Type: "tool_use", ID: block.ID, Name: block.Name, Input: input}

	default:
		return anthropicContentBlock{Type: "text", Text: block.Text}
	}
}

// anthropicToGeneric converts a Messages API response to the unified form.
// Unknown block types are skipped.
func anthropicToGeneric(response anthropicResponse) *ai.ChatResponse {
	result := &ai.ChatResponse{
		ID:    response.ID,
		Model: response.Model,
		Usage: ai.Usage{
			InputTokens:  response.Usage.InputTokens,
			OutputTokens: response.Usage.OutputTokens,
		},
		Content: make([]ai.ContentBlock, 0, len(response.Content)),
	}

	for _, block := range response.Content {
		switch block.Type {
		case "text":
			result.Content = append(result.Content, ai.TextBlock(block.Text))
		case "tool_use":
			result.Content = append(result.Content, ai.ToolUseBlock(block.ID, block.Name, block.Input))
		}
	}

	if response.StopReason != "" {
		result.StopReason = utils.Ptr(mapStopReason(response.StopReason))
	}
	return result
}

// mapStopReason maps Anthropic stop reasons; anything unrecognized is end_turn.
func mapStopReason(reason string) ai.StopReason {
	switch reason {
	case "max_tokens":
		return ai.StopMaxTokens
	case "stop_sequence":
		return ai.StopStopSequence
	case "tool_use":
		return ai.StopToolUse
	default:
		return ai.StopEndTurn
	}
}
