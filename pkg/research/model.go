package research

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/harun/ideascout/internal/observability"
	"github.com/harun/ideascout/pkg/llm"
)

// Model call modes used as the metrics label.
const (
	modeTools = "tools"
	modePlain = "plain"
)

// ModelSettings are the per-call generation parameters shared by planner and synthesizer
type ModelSettings struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

func invokeModel(ctx context.Context, provider llm.Provider, mode string, req llm.Request) (*llm.Response, error) {
	start := time.Now()
	resp, err := provider.Complete(ctx, req)
	if err == nil && resp == nil {
		err = llm.ErrEmptyResponse
	}
	observability.RecordModelCall(provider.Name(), mode, time.Since(start), err == nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrModelInvocation, provider.Name(), err)
	}

	if resp.Usage != nil {
		observability.RecordTokens(provider.Name(), resp.Usage.InputTokens, resp.Usage.OutputTokens)
	}
	return resp, nil
}

var errNoContent = errors.New("synthesizer returned no content")
