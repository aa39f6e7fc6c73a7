package toolexecutor

import (
	"context"

	"github.com/harun/ideascout/pkg/conversation"
)

type callContextKey struct{}

// ContextWithCall attaches the tool call being executed to a context.Context for tool handlers.
func ContextWithCall(ctx context.Context, call conversation.ToolCall) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, callContextKey{}, call)
}

// CallFromContext extracts the tool call from a context.Context.
func CallFromContext(ctx context.Context) (conversation.ToolCall, bool) {
	if ctx == nil {
		return conversation.ToolCall{}, false
	}
	call, ok := ctx.Value(callContextKey{}).(conversation.ToolCall)
	return call, ok
}
