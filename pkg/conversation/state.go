package conversation

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidMessage reports a message that cannot be stored.
	ErrInvalidMessage = errors.New("conversation: invalid message")
	// ErrOrphanToolResult reports a tool result without a matching call in the preceding assistant message.
	ErrOrphanToolResult = errors.New("conversation: tool result does not match a preceding tool call")
	// ErrDuplicateToolResult reports a second result for the same tool call.
	ErrDuplicateToolResult = errors.New("conversation: duplicate tool result")
)

// State is the ordered, append-only message log of one research run.
// It is owned by a single run and is not safe for concurrent writers.
type State struct {
	messages []Message
	now      func() time.Time
}

// NewState creates a state seeded with the given messages
func NewState(seed ...Message) (*State, error) {
	s := &State{
		messages: make([]Message, 0, len(seed)+8),
		now:      time.Now,
	}
	if err := s.Append(seed...); err != nil {
		return nil, err
	}
	return s, nil
}

// Append adds messages to the tail, preserving order.
// Either all messages are appended or none are.
func (s *State) Append(msgs ...Message) error {
	staged := make([]Message, 0, len(msgs))
	for i, msg := range msgs {
		if msg.Role == "" {
			return fmt.Errorf("%w: message %d has empty role", ErrInvalidMessage, i)
		}
		if msg.Role == RoleTool {
			history := make([]Message, 0, len(s.messages)+len(staged))
			history = append(history, s.messages...)
			history = append(history, staged...)
			if err := checkToolResult(history, msg); err != nil {
				return err
			}
		}
		msg = msg.Clone()
		if msg.Timestamp.IsZero() {
			msg.Timestamp = s.now().UTC()
		}
		staged = append(staged, msg)
	}
	s.messages = append(s.messages, staged...)
	return nil
}

// Messages returns a copy of the full ordered log
func (s *State) Messages() []Message {
	out := make([]Message, len(s.messages))
	for i, msg := range s.messages {
		out[i] = msg.Clone()
	}
	return out
}

// Len returns the number of messages in the log
func (s *State) Len() int {
	return len(s.messages)
}

// Last returns the latest message
func (s *State) Last() (Message, bool) {
	if len(s.messages) == 0 {
		return Message{}, false
	}
	return s.messages[len(s.messages)-1].Clone(), true
}

// LastAssistant returns the latest assistant message
func (s *State) LastAssistant() (Message, bool) {
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].Role == RoleAssistant {
			return s.messages[i].Clone(), true
		}
	}
	return Message{}, false
}

// Validate checks the tool-result correspondence over a whole transcript
func Validate(messages []Message) error {
	for i, msg := range messages {
		if msg.Role == "" {
			return fmt.Errorf("%w: message %d has empty role", ErrInvalidMessage, i)
		}
		if msg.Role != RoleTool {
			continue
		}
		if err := checkToolResult(messages[:i], msg); err != nil {
			return fmt.Errorf("message %d: %w", i, err)
		}
	}
	return nil
}

// checkToolResult verifies that result answers a call of the closest preceding
// assistant message and that no earlier result of the same batch used the id.
func checkToolResult(history []Message, result Message) error {
	if result.ToolCallID == "" {
		return fmt.Errorf("%w: tool result has empty call id", ErrInvalidMessage)
	}

	for i := len(history) - 1; i >= 0; i-- {
		prev := history[i]
		switch prev.Role {
		case RoleTool:
			if prev.ToolCallID == result.ToolCallID {
				return fmt.Errorf("%w: %s", ErrDuplicateToolResult, result.ToolCallID)
			}
		case RoleAssistant:
			for _, call := range prev.ToolCalls {
				if call.ID == result.ToolCallID {
					return nil
				}
			}
			return fmt.Errorf("%w: %s", ErrOrphanToolResult, result.ToolCallID)
		default:
			return fmt.Errorf("%w: %s", ErrOrphanToolResult, result.ToolCallID)
		}
	}

	return fmt.Errorf("%w: %s", ErrOrphanToolResult, result.ToolCallID)
}
