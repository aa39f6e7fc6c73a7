// Package research runs the planner / tool / synthesizer loop for one business idea.
//
// A run is an explicit state machine:
//
//	PLANNING -> {TOOL_USE -> PLANNING}* -> SYNTHESIZING -> DONE
//
// with FAILED reachable from any state. Transition is the only place the next
// phase is decided. The Orchestrator wraps a single run in an outer retry loop;
// each attempt gets a fresh session id and an empty conversation, so nothing
// from a failed attempt reaches the caller.
//
// Invariants:
//   - Planner and synthesizer instructions are sent per call and never stored.
//   - A checkpoint is saved after every node execution under the attempt's session id.
//   - Planner passes are bounded by MaxIterations; exceeding it is ErrLoopLimit, not retried.
//   - Payload decode failures are surfaced as ErrPayloadDecode, not retried.
//
// Usage:
//
//	orch, _ := research.New(research.Config{
//		Provider: provider,
//		Tools:    executor,
//		Store:    store,
//		Model:    "gpt-4o",
//		Logger:   logger,
//	})
//	res, _ := orch.Research(ctx, "Vehicle rentals in Toronto, but renting out your own car")
//	fmt.Println(res.Text)
package research
