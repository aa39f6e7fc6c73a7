// Package conversation holds the append-only message log shared by the research loop.
//
// Invariants:
//   - Messages are only ever appended; the log is never reordered, truncated or edited in place.
//   - A tool-result message references a call issued by the closest preceding assistant message.
//   - Readers receive deep copies, so callers cannot mutate stored entries.
//
// Usage:
//
//	state := conversation.NewState(conversation.UserMessage("Vehicle rentals in Toronto"))
//	_ = state.Append(conversation.AssistantMessage("", call))
//	_ = state.Append(conversation.ToolResultMessage(call.ID, call.Name, "[...]"))
//	last, _ := state.Last()
//	_ = last
package conversation
