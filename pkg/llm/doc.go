// Package llm adapts chat completion APIs to conversation messages.
//
// Invariants:
//   - Request.SystemPrompt is sent for the call only and never returned as a message.
//   - Responses carry exactly one assistant message with text and/or tool calls.
//   - Malformed tool arguments from a provider surface as ErrMalformedToolArguments.
//
// Usage:
//
//	provider, _ := llm.NewProvider(llm.Config{Provider: "openai", APIKey: key})
//	resp, _ := provider.Complete(ctx, llm.Request{Model: "gpt-4o", Messages: msgs})
//	_ = resp.Message
package llm
