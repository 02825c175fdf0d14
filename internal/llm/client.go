// Package llm provides chat clients for the language model backends hydra
// talks to: a local Ollama server, the Hugging Face router and Anthropic.
package llm

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrUnsupportedBackend is returned by New for an unknown backend name.
var ErrUnsupportedBackend = errors.New("unsupported model backend")

// Role is the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is a single chat turn.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
	// Images holds base64 encoded images attached to a user turn.
	Images []string `json:"images,omitempty"`
}

// SystemMessage returns a system turn.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage returns a user turn.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage returns an assistant turn.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// Client sends a conversation to a model and returns the reply text.
type Client interface {
	Chat(ctx context.Context, messages []Message) (string, error)
	Model() string
}

// Tool describes a function the model may ask to call.
type Tool struct {
	Name        string
	Description string
	// Parameters maps argument names to JSON schema fragments.
	Parameters map[string]any
	Required   []string
}

// ToolCall is a function invocation requested by the model.
type ToolCall struct {
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolReply is a model answer that may contain tool calls.
type ToolReply struct {
	Content string
	Calls   []ToolCall
}

// ToolCaller is implemented by clients whose backend supports tool calling.
type ToolCaller interface {
	Client
	ChatWithTools(ctx context.Context, messages []Message, tools []Tool) (*ToolReply, error)
}

// UsageReporter is implemented by clients that track token usage.
type UsageReporter interface {
	Usage() *UsageTracker
}

func toolSchema(t Tool) map[string]any {
	props := t.Parameters
	if props == nil {
		props = map[string]any{}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(t.Required) > 0 {
		schema["required"] = t.Required
	}
	return schema
}
