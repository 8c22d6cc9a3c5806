package harnessports

import (
	"encoding/json"
	"time"
)

// Role tags the variant a Message carries.
type Role string

const (
	RoleSystem Role = "system"
	RoleHuman  Role = "human"
	RoleAI     Role = "ai"
	RoleTool   Role = "tool"
)

// ToolCall is one model-requested invocation of a named tool.
type ToolCall struct {
	ID   string          `json:"id"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

// Message is a tagged variant over {System, Human, AI(toolCalls?), Tool(refID)}.
// Build values with the New* constructors; fields outside the active variant stay zero.
type Message struct {
	ID        string    `json:"id,omitempty"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`

	// RoleAI only.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// RoleTool only.
	ToolCallID string        `json:"tool_call_id,omitempty"`
	ToolName   string        `json:"tool_name,omitempty"`
	IsError    bool          `json:"is_error,omitempty"`
	ErrorKind  ToolErrorKind `json:"error_kind,omitempty"`
}

func NewSystem(content string) Message {
	return Message{Role: RoleSystem, Content: content, CreatedAt: time.Now().UTC()}
}

func NewHuman(content string) Message {
	return Message{Role: RoleHuman, Content: content, CreatedAt: time.Now().UTC()}
}

// NewAI builds a model message. With no calls it is a final answer.
func NewAI(content string, calls ...ToolCall) Message {
	m := Message{Role: RoleAI, Content: content, CreatedAt: time.Now().UTC()}
	if len(calls) > 0 {
		m.ToolCalls = append([]ToolCall(nil), calls...)
	}
	return m
}

// NewTool wraps a successful tool result for the call it answers.
func NewTool(call ToolCall, content string) Message {
	return Message{
		Role:       RoleTool,
		Content:    content,
		CreatedAt:  time.Now().UTC(),
		ToolCallID: call.ID,
		ToolName:   call.Name,
	}
}

// NewToolError wraps a failed tool execution so the model can read the failure.
func NewToolError(call ToolCall, err *ToolError) Message {
	m := NewTool(call, err.Content())
	m.IsError = true
	m.ErrorKind = err.Kind
	return m
}

// HasToolCalls reports whether an AI message requested actions.
func (m Message) HasToolCalls() bool {
	return m.Role == RoleAI && len(m.ToolCalls) > 0
}

// IsFinal reports whether the message is an AI answer that ends a turn.
func (m Message) IsFinal() bool {
	return m.Role == RoleAI && len(m.ToolCalls) == 0
}

// Clone returns a deep copy so callers never share the tool call slice.
func (m Message) Clone() Message {
	if len(m.ToolCalls) > 0 {
		calls := make([]ToolCall, len(m.ToolCalls))
		for i, c := range m.ToolCalls {
			calls[i] = ToolCall{ID: c.ID, Name: c.Name, Args: append(json.RawMessage(nil), c.Args...)}
		}
		m.ToolCalls = calls
	}
	return m
}

// CloneMessages deep-copies a history slice.
func CloneMessages(in []Message) []Message {
	if in == nil {
		return nil
	}
	out := make([]Message, len(in))
	for i, m := range in {
		out[i] = m.Clone()
	}
	return out
}
