package research

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/harun/ideascout/internal/tracing"
	"github.com/harun/ideascout/pkg/conversation"
	"github.com/harun/ideascout/pkg/llm"
)

// Synthesizer turns the gathered research into the profile's final deliverable.
// It calls the model without tools.
type Synthesizer struct {
	provider    llm.Provider
	instruction string
	settings    ModelSettings
	logger      zerolog.Logger
}

// NewSynthesizer creates a synthesizer with the given instruction
func NewSynthesizer(provider llm.Provider, instruction string, settings ModelSettings, logger zerolog.Logger) *Synthesizer {
	return &Synthesizer{
		provider:    provider,
		instruction: instruction,
		settings:    settings,
		logger:      logger,
	}
}

// Step returns the final assistant message. Tool calls in the reply are dropped.
func (s *Synthesizer) Step(ctx context.Context, state *conversation.State) (conversation.Message, error) {
	logger := tracing.LoggerFromContext(ctx, s.logger)

	resp, err := invokeModel(ctx, s.provider, modePlain, llm.Request{
		Model:        s.settings.Model,
		SystemPrompt: s.instruction,
		Messages:     state.Messages(),
		Temperature:  s.settings.Temperature,
		MaxTokens:    s.settings.MaxTokens,
	})
	if err != nil {
		return conversation.Message{}, err
	}

	if len(resp.Message.ToolCalls) > 0 {
		logger.Warn().Int("tool_calls", len(resp.Message.ToolCalls)).Msg("Dropping tool calls from synthesizer reply")
	}
	if strings.TrimSpace(resp.Message.Content) == "" {
		return conversation.Message{}, fmt.Errorf("%w: %w", ErrModelInvocation, errNoContent)
	}

	return conversation.AssistantMessage(resp.Message.Content), nil
}
