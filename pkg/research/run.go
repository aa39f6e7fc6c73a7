package research

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/harun/ideascout/internal/observability"
	"github.com/harun/ideascout/internal/tracing"
	"github.com/harun/ideascout/pkg/checkpoint"
	"github.com/harun/ideascout/pkg/conversation"
	"github.com/harun/ideascout/pkg/llm"
)

// ToolRunner executes tool calls in request order and exposes the tool specs bound to the planner
type ToolRunner interface {
	ExecuteAll(ctx context.Context, calls []conversation.ToolCall) ([]conversation.Message, error)
	ToolSpecs() []llm.ToolSpec
}

// attempt is one full run of the state machine under a single session id.
type attempt struct {
	sessionID     string
	number        int
	planner       *Planner
	synthesizer   *Synthesizer
	tools         ToolRunner
	store         checkpoint.Store
	maxIterations int
	observer      Observer
	logger        zerolog.Logger
}

type attemptOutcome struct {
	state      *conversation.State
	iterations int
}

func (a *attempt) run(ctx context.Context, query string) (*attemptOutcome, error) {
	if err := a.store.Create(ctx, a.sessionID); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCheckpoint, err)
	}

	state, err := conversation.NewState(conversation.UserMessage(query))
	if err != nil {
		return nil, err
	}

	phase := PhasePlanning
	iterations := 0

	for step := 1; !phase.Terminal(); step++ {
		node := phase.Node()
		nodeCtx, span := tracing.StartSpan(ctx, tracerName, "research.node."+node,
			attribute.Int("research.step", step),
			attribute.String("research.phase", string(phase)),
		)

		start := time.Now()
		produced, err := a.execute(nodeCtx, phase, state, &iterations)
		observability.RecordNode(node, time.Since(start))
		if err == nil {
			err = state.Append(produced...)
		}
		if err != nil {
			tracing.RecordError(span, err)
			span.End()
			return nil, err
		}
		span.End()

		next := Transition(phase, state)
		if err := a.store.Save(ctx, checkpoint.Checkpoint{
			SessionID: a.sessionID,
			Step:      step,
			Node:      node,
			Phase:     string(next),
			Messages:  state.Messages(),
		}); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCheckpoint, err)
		}

		last, _ := state.Last()
		a.observer.OnEvent(Event{
			Type:      EventNodeCompleted,
			SessionID: a.sessionID,
			Attempt:   a.number,
			Node:      node,
			Phase:     next,
			Message:   &last,
		})

		phase = next
	}

	return &attemptOutcome{state: state, iterations: iterations}, nil
}

func (a *attempt) execute(ctx context.Context, phase Phase, state *conversation.State, iterations *int) ([]conversation.Message, error) {
	switch phase {
	case PhasePlanning:
		*iterations++
		msg, err := a.planner.Step(ctx, state)
		if err != nil {
			return nil, err
		}
		if msg.HasToolCalls() && *iterations >= a.maxIterations {
			return nil, fmt.Errorf("%w: %d planner passes", ErrLoopLimit, *iterations)
		}
		return []conversation.Message{msg}, nil

	case PhaseToolUse:
		last, _ := state.Last()
		results, err := a.tools.ExecuteAll(ctx, last.ToolCalls)
		if err != nil {
			return nil, err
		}
		a.logger.Debug().Int("results", len(results)).Msg("Tool calls resolved")
		return results, nil

	case PhaseSynthesizing:
		msg, err := a.synthesizer.Step(ctx, state)
		if err != nil {
			return nil, err
		}
		return []conversation.Message{msg}, nil

	default:
		return nil, fmt.Errorf("no node for phase %s", phase)
	}
}
