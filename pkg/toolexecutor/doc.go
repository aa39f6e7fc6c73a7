// Package toolexecutor registers and executes the tools a planner may call.
//
// Invariants:
//   - Tool names are unique and the registry is fixed once a run starts.
//   - Arguments are schema-validated before execution.
//   - Every resolved call yields exactly one tool-result message carrying the call id.
//   - Recoverable failures become result content; unknown tools and unrecoverable
//     handler errors propagate.
//
// Usage:
//
//	exec := toolexecutor.New(toolexecutor.Config{Timeout: 30 * time.Second})
//	_ = exec.RegisterTool(toolexecutor.ToolDefinition{
//		Name: "echo",
//		Description: "Echo input",
//		Parameters: []toolexecutor.ToolParameter{{Name: "text", Type: "string", Description: "text", Required: true}},
//		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) { return params["text"], nil },
//	})
//	results, _ := exec.ExecuteAll(ctx, assistant.ToolCalls)
package toolexecutor
