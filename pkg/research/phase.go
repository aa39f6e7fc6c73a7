package research

import "github.com/harun/ideascout/pkg/conversation"

// Phase is a state of the research state machine
type Phase string

const (
	PhasePlanning     Phase = "PLANNING"
	PhaseToolUse      Phase = "TOOL_USE"
	PhaseSynthesizing Phase = "SYNTHESIZING"
	PhaseDone         Phase = "DONE"
	PhaseFailed       Phase = "FAILED"
)

// Terminal reports whether no further node runs from this phase
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseFailed
}

// Node names the step executed in a phase
func (p Phase) Node() string {
	switch p {
	case PhasePlanning:
		return NodePlanner
	case PhaseToolUse:
		return NodeTools
	case PhaseSynthesizing:
		return NodeSynthesizer
	default:
		return ""
	}
}

// Node names used in checkpoints, events and metrics.
const (
	NodePlanner     = "planner"
	NodeTools       = "tools"
	NodeSynthesizer = "synthesizer"
)

// Transition returns the phase that follows the node just executed in phase.
// Failures are not decided here; the run moves to FAILED when a node errors.
func Transition(phase Phase, state *conversation.State) Phase {
	switch phase {
	case PhasePlanning:
		if NeedsTools(state) {
			return PhaseToolUse
		}
		return PhaseSynthesizing
	case PhaseToolUse:
		return PhasePlanning
	case PhaseSynthesizing:
		return PhaseDone
	default:
		return phase
	}
}

// NeedsTools reports whether the latest message requests at least one tool call
func NeedsTools(state *conversation.State) bool {
	if state == nil {
		return false
	}
	last, ok := state.Last()
	return ok && last.HasToolCalls()
}
