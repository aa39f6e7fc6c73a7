package research

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/harun/ideascout/internal/observability"
	"github.com/harun/ideascout/internal/tracing"
	"github.com/harun/ideascout/pkg/checkpoint"
	"github.com/harun/ideascout/pkg/conversation"
	"github.com/harun/ideascout/pkg/llm"
)

const tracerName = "ideascout.research"

const (
	DefaultMaxAttempts   = 3
	DefaultMaxIterations = 8
)

// Config holds orchestrator dependencies and limits
type Config struct {
	Provider llm.Provider
	Tools    ToolRunner
	Store    checkpoint.Store
	// Profile used when a request does not select one. Defaults to market.
	Profile Profile

	Model       string
	Temperature float64
	MaxTokens   int

	MaxAttempts    int
	MaxIterations  int
	AttemptTimeout time.Duration // zero disables the per-attempt deadline
	RetryBackoff   time.Duration // doubled after each failed attempt

	NewSessionID func() string
	Observer     Observer
	Logger       zerolog.Logger
}

// Orchestrator runs research requests with whole-run retry
type Orchestrator struct {
	provider      llm.Provider
	tools         ToolRunner
	store         checkpoint.Store
	profile       Profile
	settings      ModelSettings
	maxAttempts   int
	maxIterations int
	timeout       time.Duration
	backoff       time.Duration
	newSessionID  func() string
	observer      Observer
	logger        zerolog.Logger
}

// Result is the outcome of a successful request.
type Result struct {
	SessionID  string                 `json:"session_id"`
	Attempts   int                    `json:"attempts"`
	Iterations int                    `json:"iterations"`
	Profile    string                 `json:"profile"`
	Text       string                 `json:"text"`
	Payload    any                    `json:"payload,omitempty"`
	Messages   []conversation.Message `json:"messages"`
}

// Output returns the payload for structured profiles and the narrative otherwise
func (r *Result) Output() any {
	if r.Payload != nil {
		return r.Payload
	}
	return r.Text
}

// New creates an orchestrator
func New(cfg Config) (*Orchestrator, error) {
	observability.EnsureRegistered()

	if cfg.Provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if cfg.Tools == nil {
		return nil, fmt.Errorf("tools are required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("checkpoint store is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	profile := cfg.Profile
	if profile.Name == "" {
		profile, _ = ProfileByName(ProfileMarket)
	}
	if profile.Contract == nil {
		return nil, fmt.Errorf("profile %s has no contract", profile.Name)
	}

	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.NewSessionID == nil {
		cfg.NewSessionID = checkpoint.NewSessionID
	}

	return &Orchestrator{
		provider: cfg.Provider,
		tools:    cfg.Tools,
		store:    cfg.Store,
		profile:  profile,
		settings: ModelSettings{
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		},
		maxAttempts:   cfg.MaxAttempts,
		maxIterations: cfg.MaxIterations,
		timeout:       cfg.AttemptTimeout,
		backoff:       cfg.RetryBackoff,
		newSessionID:  cfg.NewSessionID,
		observer:      Observers(cfg.Observer, LoggingObserver(cfg.Logger)),
		logger:        cfg.Logger,
	}, nil
}

// Store returns the checkpoint store the orchestrator writes to
func (o *Orchestrator) Store() checkpoint.Store {
	return o.store
}

// RunOption customizes a single request
type RunOption func(*runOptions)

type runOptions struct {
	profile  Profile
	observer Observer
}

// WithProfile selects the profile for one request
func WithProfile(p Profile) RunOption {
	return func(o *runOptions) { o.profile = p }
}

// WithObserver adds an observer for one request
func WithObserver(obs Observer) RunOption {
	return func(o *runOptions) { o.observer = obs }
}

// Research answers one query, retrying the whole run on retryable failures
func (o *Orchestrator) Research(ctx context.Context, query string, opts ...RunOption) (*Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}

	ro := runOptions{profile: o.profile}
	for _, opt := range opts {
		opt(&ro)
	}
	if ro.profile.Contract == nil {
		return nil, fmt.Errorf("profile %s has no contract", ro.profile.Name)
	}
	observer := Observers(o.observer, ro.observer)

	if tracing.GetTraceID(ctx) == "" {
		ctx = tracing.NewRequestContext(ctx)
	}
	ctx, span := tracing.StartSpan(ctx, tracerName, "research.request",
		attribute.String("research.profile", ro.profile.Name),
	)
	defer span.End()

	logger := tracing.LoggerFromContext(ctx, o.logger).With().
		Str("profile", ro.profile.Name).
		Logger()

	logger.Info().Int("query_length", len(query)).Msg("Research request received")

	result, err := o.retry(ctx, query, ro.profile, observer, logger)
	observability.RecordResearchRun(ro.profile.Name, err == nil)
	if err != nil {
		tracing.RecordError(span, err)
		logger.Error().Err(err).Msg("Research request failed")
		return nil, err
	}

	logger.Info().
		Str("session_id", result.SessionID).
		Int("attempts", result.Attempts).
		Int("iterations", result.Iterations).
		Msg("Research request completed")

	return result, nil
}

func (o *Orchestrator) retry(ctx context.Context, query string, profile Profile, observer Observer, logger zerolog.Logger) (*Result, error) {
	// Nodes add trace fields from ctx themselves.
	nodeLogger := o.logger.With().Str("profile", profile.Name).Logger()
	planner := NewPlanner(o.provider, o.tools.ToolSpecs(), profile.PlannerInstruction, o.settings, nodeLogger)
	synthesizer := NewSynthesizer(o.provider, profile.SynthesizerInstruction, o.settings, nodeLogger)

	var lastErr error
	for number := 1; number <= o.maxAttempts; number++ {
		if number > 1 {
			if err := o.wait(ctx, number-1); err != nil {
				return nil, err
			}
		}

		sessionID := o.newSessionID()
		a := &attempt{
			sessionID:     sessionID,
			number:        number,
			planner:       planner,
			synthesizer:   synthesizer,
			tools:         o.tools,
			store:         o.store,
			maxIterations: o.maxIterations,
			observer:      observer,
			logger:        logger.With().Str("session_id", sessionID).Int("attempt", number).Logger(),
		}

		outcome, err := o.runAttempt(ctx, a, query)
		if err == nil {
			observability.RecordAttempt("success")
			observability.RecordLoopIterations(outcome.iterations)
			return o.finish(a, profile, outcome, observer)
		}

		lastErr = err
		observer.OnEvent(Event{
			Type:      EventAttemptFailed,
			SessionID: sessionID,
			Attempt:   number,
			Phase:     PhaseFailed,
			Err:       err.Error(),
		})

		if !retryable(ctx, err) {
			observability.RecordAttempt("fatal")
			return nil, err
		}
		observability.RecordAttempt("retry")
	}

	return nil, &RetryExhaustedError{Attempts: o.maxAttempts, Last: lastErr}
}

func (o *Orchestrator) runAttempt(ctx context.Context, a *attempt, query string) (*attemptOutcome, error) {
	ctx = tracing.NewAttemptContext(ctx, a.sessionID, a.number)
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	ctx, span := tracing.StartSpan(ctx, tracerName, "research.attempt",
		attribute.String("research.session_id", a.sessionID),
		attribute.Int("research.attempt", a.number),
	)
	defer span.End()

	a.observer.OnEvent(Event{Type: EventAttemptStarted, SessionID: a.sessionID, Attempt: a.number, Phase: PhasePlanning})

	outcome, err := a.run(ctx, query)
	tracing.RecordError(span, err)
	return outcome, err
}

func (o *Orchestrator) finish(a *attempt, profile Profile, outcome *attemptOutcome, observer Observer) (*Result, error) {
	final, _ := outcome.state.Last()

	result := &Result{
		SessionID:  a.sessionID,
		Attempts:   a.number,
		Iterations: outcome.iterations,
		Profile:    profile.Name,
		Text:       final.Content,
		Messages:   outcome.state.Messages(),
	}

	if profile.Contract.Structured() {
		payload, err := profile.Contract.Decode(final.Content)
		if err != nil {
			return nil, err
		}
		result.Payload = payload
	}

	observer.OnEvent(Event{
		Type:      EventRunCompleted,
		SessionID: a.sessionID,
		Attempt:   a.number,
		Phase:     PhaseDone,
		Message:   &final,
	})

	return result, nil
}

func (o *Orchestrator) wait(ctx context.Context, failed int) error {
	if o.backoff <= 0 {
		return ctx.Err()
	}
	delay := o.backoff << (failed - 1)

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// retryable reports whether a failed attempt should be followed by a fresh one.
// Anything not classified as fatal is retried.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	switch {
	case errors.Is(err, ErrLoopLimit),
		errors.Is(err, ErrPayloadDecode),
		errors.Is(err, ErrEmptyQuery),
		errors.Is(err, context.Canceled):
		return false
	default:
		return true
	}
}
