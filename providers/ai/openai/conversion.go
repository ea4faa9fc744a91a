package openai

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/opensesh/sesh/internal/utils"
	"github.com/opensesh/sesh/providers/ai"
)

/*
	CONVERSION FUNCTIONS
*/

// requestToChatCompletion converts a unified conversation and configuration
// snapshot into the chat completions request body.
func requestToChatCompletion(messages []ai.ChatMessage, tools []ai.Tool, config ai.GenerationConfig, stream bool, temperature float64) chatCompletionRequest {
	request := chatCompletionRequest{
		Model:       config.Model,
		Messages:    buildMessages(messages, config),
		MaxTokens:   utils.Ptr(config.MaxTokens),
		Temperature: utils.Ptr(temperature),
		Stream:      stream,
	}
	if stream {
		request.StreamOptions = &streamOptions{IncludeUsage: true}
	}

	for _, tool := range tools {
		var parameters json.RawMessage
		if len(bytes.TrimSpace(tool.InputSchema)) > 0 {
			parameters = tool.InputSchema
		}
		request.Tools = append(request.Tools, chatTool{
			Type: "function",
			Function: chatFunction{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  parameters,
			},
		})
	}
	return request
}

// buildMessages maps the conversation. A configured system prompt leads and
// replaces any System messages; otherwise each System message stays in place.
// Tool results become one "tool" message each, replacing the message that
// carried them.
func buildMessages(messages []ai.ChatMessage, config ai.GenerationConfig) []chatMessage {
	result := make([]chatMessage, 0, len(messages)+1)

	prompt, hasPrompt := config.System()
	if hasPrompt {
		result = append(result, chatMessage{Role: "system", Content: prompt})
	}

	for _, message := range messages {
		if message.HasToolResults() {
			for _, block := range message.Blocks {
				if block.Type == ai.BlockToolResult {
					result = append(result, chatMessage{
						Role:       "tool",
						Content:    block.Content,
						ToolCallID: block.ToolUseID,
					})
				}
			}
			continue
		}

		switch message.Role {
		case ai.RoleSystem:
			if !hasPrompt {
				result = append(result, chatMessage{Role: "system", Content: message.PlainText()})
			}
		case ai.RoleAssistant:
			result = append(result, assistantMessage(message))
		default:
			// user, and tool-role messages that carry no tool result
			result = append(result, chatMessage{Role: "user", Content: userContent(message)})
		}
	}

	return result
}

// userContent returns a plain string when the message is text only, and a
// list of content parts otherwise.
func userContent(message ai.ChatMessage) any {
	if message.IsText() {
		return message.Text
	}

	parts := make([]contentPart, 0, len(message.Blocks))
	for _, block := range message.Blocks {
		switch block.Type {
		case ai.BlockText:
			parts = append(parts, contentPart{Type: "text", Text: block.Text})
		case ai.BlockImage:
			if url := imageURL(block.Source); url != "" {
				parts = append(parts, contentPart{Type: "image_url", ImageURL: &contentPartImage{URL: url}})
			}
		}
	}

	if len(parts) == 1 && parts[0].Type == "text" {
		return parts[0].Text
	}
	return parts
}

// imageURL passes URLs through and turns base64 data into a data URL.
func imageURL(source *ai.ImageSource) string {
	if source == nil {
		return ""
	}
	if source.Type == ai.ImageSourceURL {
		return source.URL
	}
	if source.MediaType == "" || source.Data == "" {
		return ""
	}
	return "data:" + source.MediaType + ";base64," + source.Data
}

// assistantMessage joins text blocks into content and tool_use blocks into
// tool_calls. Content is null when there is no text.
func assistantMessage(message ai.ChatMessage) chatMessage {
	result := chatMessage{Role: "assistant"}

	var text strings.Builder
	for _, block := range message.ContentBlocks() {
		switch block.Type {
		case ai.BlockText:
			text.WriteString(block.Text)
		case ai.BlockToolUse:
			result.ToolCalls = append(result.ToolCalls, chatToolCall{
				ID:   block.ID,
				Type: "function",
				Function: chatFunctionCall{
					Name:      block.Name,
					Arguments: encodeArguments(block.Input),
				},
			})
		}
	}

	if text.Len() > 0 {
		result.Content = text.String()
	} else if len(result.ToolCalls) == 0 {
		result.Content = ""
	}
	return result
}

// encodeArguments renders tool input as the compact JSON string OpenAI
// expects in function.arguments.
func encodeArguments(input json.RawMessage) string {
	if len(bytes.TrimSpace(input)) == 0 {
		return "{}"
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, input); err != nil {
		return string(input)
	}
	return compact.String()
}

// decodeArguments turns a function.arguments string back into a JSON
// document. Invalid documents are repaired; if that fails the text is kept
// as a JSON string value.
func decodeArguments(arguments string) json.RawMessage {
	repaired, err := utils.RepairJSON(arguments)
	if err == nil {
		return repaired
	}
	quoted, _ := json.Marshal(arguments)
	return quoted
}

// chatCompletionToGeneric converts a chat completions response to the
// unified form. Only the first choice is used: text first, then tool calls.
func chatCompletionToGeneric(response chatCompletionResponse) *ai.ChatResponse {
	result := &ai.ChatResponse{
		ID:      response.ID,
		Model:   response.Model,
		Content: []ai.ContentBlock{},
	}
	if response.Usage != nil {
		result.Usage = ai.Usage{
			InputTokens:  response.Usage.PromptTokens,
			OutputTokens: response.Usage.CompletionTokens,
		}
	}

	if len(response.Choices) == 0 {
		return result
	}
	choice := response.Choices[0]

	text := choice.Message.Content
	if text == "" {
		text = choice.Message.Refusal
	}
	if text != "" {
		result.Content = append(result.Content, ai.TextBlock(text))
	}
	for _, call := range choice.Message.ToolCalls {
		result.Content = append(result.Content, ai.ToolUseBlock(call.ID, call.Function.Name, decodeArguments(call.Function.Arguments)))
	}

	if choice.FinishReason != "" {
		result.StopReason = utils.Ptr(mapFinishReason(choice.FinishReason))
	}
	return result
}

// mapFinishReason maps OpenAI finish reasons; anything unrecognized
// (content_filter, vendor extensions) is end_turn.
func mapFinishReason(reason string) ai.StopReason {
	switch reason {
	case "length":
		return ai.StopMaxTokens
	case "tool_calls", "function_call":
		return ai.StopToolUse
	default:
		return ai.StopEndTurn
	}
}
