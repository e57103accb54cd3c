package llm

import (
	"context"
	"encoding/json"
)

// Role identifies the author of a conversation message
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Finish reasons reported by chat-completion endpoints
const (
	FinishStop      = "stop"
	FinishToolCalls = "tool_calls"
	FinishLength    = "length"
)

// ToolCall is one function invocation requested by the model. Arguments is
// the raw JSON text the model produced and may not be valid JSON.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type wireFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type wireToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function wireFunction `json:"function"`
}

// MarshalJSON writes the nested chat-completions form
func (tc ToolCall) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireToolCall{
		ID:       tc.ID,
		Type:     "function",
		Function: wireFunction{Name: tc.Name, Arguments: tc.Arguments},
	})
}

// UnmarshalJSON accepts both the nested chat-completions form and the flat form
func (tc *ToolCall) UnmarshalJSON(data []byte) error {
	var nested wireToolCall
	if err := json.Unmarshal(data, &nested); err != nil {
		return err
	}
	if nested.Function.Name != "" {
		tc.ID = nested.ID
		tc.Name = nested.Function.Name
		tc.Arguments = nested.Function.Arguments
		return nil
	}
	type plain ToolCall
	return json.Unmarshal(data, (*plain)(tc))
}

// Message is one entry of a conversation. Assistant messages may carry
// ToolCalls; tool messages carry the ToolCallID they answer.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// NewMessage creates a plain text message
func NewMessage(role Role, content string) Message {
	return Message{Role: role, Content: content}
}

// ToolDescriptor advertises a callable function to the model. Parameters is
// a JSON Schema object.
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters"`
}

// MarshalJSON writes the {"type":"function","function":{...}} form
func (t ToolDescriptor) MarshalJSON() ([]byte, error) {
	type plain ToolDescriptor
	params := t.Parameters
	if len(params) == 0 {
		params = json.RawMessage(`{"type":"object","properties":{}}`)
	}
	p := plain(t)
	p.Parameters = params
	return json.Marshal(struct {
		Type     string `json:"type"`
		Function plain  `json:"function"`
	}{Type: "function", Function: p})
}

// Usage reports token accounting when the endpoint provides it
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Completion is the model's reply to one Complete call
type Completion struct {
	Model        string
	FinishReason string
	Message      Message
	Usage        *Usage
}

// Completer produces the next assistant message for a conversation. tools
// may be empty, in which case the model answers in text only.
type Completer interface {
	Complete(ctx context.Context, messages []Message, tools []ToolDescriptor) (*Completion, error)
}

// CompleterFunc adapts a function to Completer
type CompleterFunc func(ctx context.Context, messages []Message, tools []ToolDescriptor) (*Completion, error)

// Complete calls f
func (f CompleterFunc) Complete(ctx context.Context, messages []Message, tools []ToolDescriptor) (*Completion, error) {
	return f(ctx, messages, tools)
}
