package research

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/harun/ideascout/internal/tracing"
	"github.com/harun/ideascout/pkg/conversation"
	"github.com/harun/ideascout/pkg/llm"
)

// Planner asks the model, with tools bound, for the next assistant message
type Planner struct {
	provider    llm.Provider
	tools       []llm.ToolSpec
	instruction string
	settings    ModelSettings
	logger      zerolog.Logger
}

// NewPlanner creates a planner with the given instruction and tool set
func NewPlanner(provider llm.Provider, tools []llm.ToolSpec, instruction string, settings ModelSettings, logger zerolog.Logger) *Planner {
	return &Planner{
		provider:    provider,
		tools:       tools,
		instruction: instruction,
		settings:    settings,
		logger:      logger,
	}
}

// Step sends the instruction plus the full history and returns the model's reply.
// The instruction is not added to the state.
func (p *Planner) Step(ctx context.Context, state *conversation.State) (conversation.Message, error) {
	logger := tracing.LoggerFromContext(ctx, p.logger)

	resp, err := invokeModel(ctx, p.provider, modeTools, llm.Request{
		Model:        p.settings.Model,
		SystemPrompt: p.instruction,
		Messages:     state.Messages(),
		Tools:        p.tools,
		Temperature:  p.settings.Temperature,
		MaxTokens:    p.settings.MaxTokens,
	})
	if err != nil {
		return conversation.Message{}, err
	}

	msg := resp.Message
	if msg.Role != conversation.RoleAssistant {
		return conversation.Message{}, fmt.Errorf("%w: planner reply has role %q", ErrModelInvocation, msg.Role)
	}

	logger.Debug().
		Int("tool_calls", len(msg.ToolCalls)).
		Int("content_length", len(msg.Content)).
		Msg("Planner step completed")

	return msg, nil
}
