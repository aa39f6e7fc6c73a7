package conversation

import (
	"encoding/json"
	"time"
)

// Role tags the author of a message
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a model request to invoke a named capability
type ToolCall struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// Message represents a single conversation entry
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

// UserMessage creates a free-text user message
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// SystemMessage creates an instruction message
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// AssistantMessage creates a model message with optional tool call requests
func AssistantMessage(content string, calls ...ToolCall) Message {
	return Message{Role: RoleAssistant, Content: content, ToolCalls: calls}
}

// ToolResultMessage creates the result message for a tool call
func ToolResultMessage(callID, toolName, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: callID, Name: toolName}
}

// HasToolCalls reports whether the message requests at least one tool call
func (m Message) HasToolCalls() bool {
	return len(m.ToolCalls) > 0
}

// Clone returns a deep copy of the message
func (m Message) Clone() Message {
	out := m
	if m.ToolCalls != nil {
		out.ToolCalls = make([]ToolCall, len(m.ToolCalls))
		for i, call := range m.ToolCalls {
			out.ToolCalls[i] = call.Clone()
		}
	}
	return out
}

// Clone returns a deep copy of the tool call including nested arguments
func (c ToolCall) Clone() ToolCall {
	out := c
	if c.Arguments != nil {
		out.Arguments = cloneArguments(c.Arguments)
	}
	return out
}

func cloneArguments(args map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(args))
	for k, v := range args {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return cloneArguments(val)
	case []interface{}:
		items := make([]interface{}, len(val))
		for i, item := range val {
			items[i] = cloneValue(item)
		}
		return items
	case json.RawMessage:
		return append(json.RawMessage(nil), val...)
	default:
		return val
	}
}
