package relay

import "github.com/opensesh/sesh/providers/ai"

// SendMessageRequest is one question sent by the UI.
type SendMessageRequest struct {
	Messages     []MessageInput `json:"messages"`
	SystemPrompt *string        `json:"system_prompt,omitempty"`
	Stream       bool           `json:"stream"`
	// Provider selects a registered provider; empty means the active one.
	Provider string `json:"provider,omitempty"`
	// Model, when set, becomes the provider's model for this and later calls.
	Model string    `json:"model,omitempty"`
	Tools []ai.Tool `json:"tools,omitempty"`
}

// MessageInput is a plain-text message as the UI sends it.
type MessageInput struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatMessages converts the request to provider messages. Unknown roles are
// treated as user messages; the system prompt, when set, goes first.
func (r SendMessageRequest) ChatMessages() []ai.ChatMessage {
	messages := make([]ai.ChatMessage, 0, len(r.Messages)+1)
	if r.SystemPrompt != nil {
		messages = append(messages, ai.System(*r.SystemPrompt))
	}
	for _, input := range r.Messages {
		messages = append(messages, ai.NewText(parseRole(input.Role), input.Content))
	}
	return messages
}

func parseRole(role string) ai.Role {
	switch ai.Role(role) {
	case ai.RoleSystem, ai.RoleUser, ai.RoleAssistant, ai.RoleTool:
		return ai.Role(role)
	default:
		return ai.RoleUser
	}
}
