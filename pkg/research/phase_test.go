package research

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/ideascout/pkg/conversation"
)

func stateWith(t *testing.T, msgs ...conversation.Message) *conversation.State {
	t.Helper()
	state, err := conversation.NewState(msgs...)
	require.NoError(t, err)
	return state
}

func TestNeedsTools(t *testing.T) {
	call := conversation.ToolCall{ID: "c1", Name: "web_search", Arguments: map[string]interface{}{"query": "q"}}

	tests := []struct {
		name  string
		state *conversation.State
		want  bool
	}{
		{"nil state", nil, false},
		{"empty state", stateWith(t), false},
		{"user message only", stateWith(t, conversation.UserMessage("idea")), false},
		{"assistant without calls", stateWith(t, conversation.UserMessage("idea"), conversation.AssistantMessage("done")), false},
		{"assistant with one call", stateWith(t, conversation.UserMessage("idea"), conversation.AssistantMessage("", call)), true},
		{
			"tool result after call",
			stateWith(t,
				conversation.UserMessage("idea"),
				conversation.AssistantMessage("", call),
				conversation.ToolResultMessage("c1", "web_search", "[]"),
			),
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NeedsTools(tt.state))
		})
	}
}

func TestTransition(t *testing.T) {
	call := conversation.ToolCall{ID: "c1", Name: "web_search"}
	withCalls := stateWith(t, conversation.UserMessage("idea"), conversation.AssistantMessage("", call))
	withoutCalls := stateWith(t, conversation.UserMessage("idea"), conversation.AssistantMessage("research"))

	tests := []struct {
		name  string
		phase Phase
		state *conversation.State
		want  Phase
	}{
		{"planning with tool calls", PhasePlanning, withCalls, PhaseToolUse},
		{"planning without tool calls", PhasePlanning, withoutCalls, PhaseSynthesizing},
		{"tool use returns to planning", PhaseToolUse, withoutCalls, PhasePlanning},
		{"synthesizing finishes", PhaseSynthesizing, withoutCalls, PhaseDone},
		{"done is terminal", PhaseDone, withCalls, PhaseDone},
		{"failed is terminal", PhaseFailed, withCalls, PhaseFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Transition(tt.phase, tt.state))
		})
	}
}

func TestPhaseNode(t *testing.T) {
	assert.Equal(t, NodePlanner, PhasePlanning.Node())
	assert.Equal(t, NodeTools, PhaseToolUse.Node())
	assert.Equal(t, NodeSynthesizer, PhaseSynthesizing.Node())
	assert.Empty(t, PhaseDone.Node())
	assert.True(t, PhaseDone.Terminal())
	assert.True(t, PhaseFailed.Terminal())
	assert.False(t, PhaseToolUse.Terminal())
}
