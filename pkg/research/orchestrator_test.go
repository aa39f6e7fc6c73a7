package research

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/harun/ideascout/pkg/checkpoint"
	"github.com/harun/ideascout/pkg/conversation"
	"github.com/harun/ideascout/pkg/llm"
	"github.com/harun/ideascout/pkg/search"
	"github.com/harun/ideascout/pkg/toolexecutor"
)

type step func(ctx context.Context, req llm.Request) (*llm.Response, error)

// scriptedProvider replays steps in order, then repeats the fallback if set.
type scriptedProvider struct {
	mu       sync.Mutex
	steps    []step
	fallback step
	requests []llm.Request
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	var next step
	switch {
	case len(p.steps) > 0:
		next = p.steps[0]
		p.steps = p.steps[1:]
	case p.fallback != nil:
		next = p.fallback
	}
	p.mu.Unlock()

	if next == nil {
		return nil, errors.New("script exhausted")
	}
	return next(ctx, req)
}

func (p *scriptedProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

func reply(content string, calls ...conversation.ToolCall) step {
	return func(ctx context.Context, req llm.Request) (*llm.Response, error) {
		return &llm.Response{
			Message: conversation.AssistantMessage(content, calls...),
			Usage:   &llm.Usage{InputTokens: 10, OutputTokens: 5},
		}, nil
	}
}

func fail(err error) step {
	return func(ctx context.Context, req llm.Request) (*llm.Response, error) {
		return nil, err
	}
}

func searchCall(id, query string) conversation.ToolCall {
	return conversation.ToolCall{
		ID:        id,
		Name:      search.ToolName,
		Arguments: map[string]interface{}{"query": query},
	}
}

type stubSearcher struct {
	mu      sync.Mutex
	results []search.Result
	queries []string
}

func (s *stubSearcher) Search(ctx context.Context, query string, maxResults int) ([]search.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, query)
	return s.results, nil
}

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) Name() string { return "mock" }

func (m *mockProvider) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	args := m.Called(ctx, req)
	resp, _ := args.Get(0).(*llm.Response)
	return resp, args.Error(1)
}

type fixture struct {
	searcher *stubSearcher
	executor *toolexecutor.ToolExecutor
	store    *checkpoint.MemoryStore
	events   []Event
}

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stdout).Level(zerolog.ErrorLevel)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		searcher: &stubSearcher{results: []search.Result{{Title: "Turo", URL: "https://turo.com", Snippet: "Peer-to-peer car sharing"}}},
		store:    checkpoint.NewMemoryStore(),
	}
	f.executor = toolexecutor.New(toolexecutor.Config{Logger: testLogger()})
	require.NoError(t, f.executor.RegisterTool(search.NewTool(f.searcher, 4, testLogger())))
	require.NoError(t, f.executor.RegisterTool(toolexecutor.ToolDefinition{
		Name:        "broken",
		Description: "Always fails with a credential error",
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			return nil, toolexecutor.Unrecoverable(errors.New("quota exhausted"))
		},
	}))
	return f
}

func (f *fixture) orchestrator(t *testing.T, provider llm.Provider, mutate ...func(*Config)) *Orchestrator {
	t.Helper()

	counter := 0
	cfg := Config{
		Provider: provider,
		Tools:    f.executor,
		Store:    f.store,
		Model:    "test-model",
		NewSessionID: func() string {
			counter++
			return fmt.Sprintf("session-%d", counter)
		},
		Observer: ObserverFunc(func(e Event) { f.events = append(f.events, e) }),
		Logger:   testLogger(),
	}
	for _, m := range mutate {
		m(&cfg)
	}

	orch, err := New(cfg)
	require.NoError(t, err)
	return orch
}

func (f *fixture) eventTypes() []EventType {
	out := make([]EventType, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.Type)
	}
	return out
}

func TestNew(t *testing.T) {
	f := newFixture(t)
	provider := &scriptedProvider{}

	t.Run("should create orchestrator with valid config", func(t *testing.T) {
		orch, err := New(Config{Provider: provider, Tools: f.executor, Store: f.store, Model: "m", Logger: testLogger()})
		require.NoError(t, err)
		assert.Equal(t, ProfileMarket, orch.profile.Name)
		assert.Equal(t, DefaultMaxAttempts, orch.maxAttempts)
		assert.Equal(t, DefaultMaxIterations, orch.maxIterations)
		assert.Same(t, f.store, orch.Store())
	})

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"should fail without provider", Config{Tools: f.executor, Store: f.store, Model: "m"}, "provider is required"},
		{"should fail without tools", Config{Provider: provider, Store: f.store, Model: "m"}, "tools are required"},
		{"should fail without store", Config{Provider: provider, Tools: f.executor, Model: "m"}, "checkpoint store is required"},
		{"should fail without model", Config{Provider: provider, Tools: f.executor, Store: f.store}, "model is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestResearchLoop(t *testing.T) {
	tests := []struct {
		name   string
		rounds int
	}{
		{"no tool rounds", 0},
		{"one tool round", 1},
		{"three tool rounds", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			var steps []step
			for i := 0; i < tt.rounds; i++ {
				steps = append(steps, reply("", searchCall(fmt.Sprintf("call_%d", i), fmt.Sprintf("query %d", i))))
			}
			steps = append(steps, reply("research gathered"), reply("final narrative"))
			provider := &scriptedProvider{steps: steps}

			res, err := f.orchestrator(t, provider).Research(context.Background(), "idea")
			require.NoError(t, err)

			assert.Equal(t, "final narrative", res.Text)
			assert.Equal(t, 1, res.Attempts)
			assert.Equal(t, tt.rounds+1, res.Iterations)
			assert.Len(t, f.searcher.queries, tt.rounds)
			assert.Equal(t, tt.rounds+2, provider.calls())

			// user + (planner + tool result) per round + final planner + synthesizer
			assert.Len(t, res.Messages, 1+2*tt.rounds+2)
			assert.Equal(t, conversation.RoleUser, res.Messages[0].Role)

			history, err := f.store.History(context.Background(), res.SessionID)
			require.NoError(t, err)
			assert.Len(t, history, 2*tt.rounds+2)
			for i, cp := range history {
				assert.Equal(t, i+1, cp.Step)
			}
			assert.Equal(t, NodeSynthesizer, history[len(history)-1].Node)
			assert.Equal(t, string(PhaseDone), history[len(history)-1].Phase)
		})
	}
}

func TestResearchInstructionsNotPersisted(t *testing.T) {
	f := newFixture(t)
	provider := &scriptedProvider{steps: []step{reply("research"), reply("narrative")}}

	res, err := f.orchestrator(t, provider).Research(context.Background(), "idea")
	require.NoError(t, err)

	for _, msg := range res.Messages {
		assert.NotEqual(t, conversation.RoleSystem, msg.Role)
	}

	require.Len(t, provider.requests, 2)
	planReq, synthReq := provider.requests[0], provider.requests[1]

	assert.Equal(t, marketResearchInstruction, planReq.SystemPrompt)
	assert.NotEmpty(t, planReq.Tools)
	assert.Equal(t, "test-model", planReq.Model)

	assert.Equal(t, marketSummaryInstruction, synthReq.SystemPrompt)
	assert.Empty(t, synthReq.Tools)
	for _, msg := range synthReq.Messages {
		assert.NotEqual(t, conversation.RoleSystem, msg.Role)
	}
}

func TestResearchEvents(t *testing.T) {
	f := newFixture(t)
	provider := &scriptedProvider{steps: []step{reply("", searchCall("c1", "q")), reply("research"), reply("narrative")}}

	var perRequest []EventType
	_, err := f.orchestrator(t, provider).Research(context.Background(), "idea",
		WithObserver(ObserverFunc(func(e Event) { perRequest = append(perRequest, e.Type) })),
	)
	require.NoError(t, err)

	want := []EventType{
		EventAttemptStarted,
		EventNodeCompleted,
		EventNodeCompleted,
		EventNodeCompleted,
		EventNodeCompleted,
		EventRunCompleted,
	}
	assert.Equal(t, want, f.eventTypes())
	assert.Equal(t, want, perRequest)

	assert.Equal(t, NodeTools, f.events[2].Node)
	require.NotNil(t, f.events[2].Message)
	assert.Equal(t, conversation.RoleTool, f.events[2].Message.Role)
	assert.Equal(t, "narrative", f.events[5].Message.Content)
}

func TestResearchRetry(t *testing.T) {
	t.Run("should return third attempt and discard partial state", func(t *testing.T) {
		f := newFixture(t)
		provider := &scriptedProvider{steps: []step{
			fail(errors.New("upstream 503")),
			reply("", conversation.ToolCall{ID: "b1", Name: "broken", Arguments: map[string]interface{}{}}),
			reply("research"),
			reply("third attempt narrative"),
		}}

		res, err := f.orchestrator(t, provider).Research(context.Background(), "idea")
		require.NoError(t, err)

		assert.Equal(t, "session-3", res.SessionID)
		assert.Equal(t, 3, res.Attempts)
		assert.Equal(t, "third attempt narrative", res.Text)
		require.Len(t, res.Messages, 3)
		for _, msg := range res.Messages {
			assert.Empty(t, msg.ToolCalls)
			assert.NotEqual(t, conversation.RoleTool, msg.Role)
		}

		first, err := f.store.History(context.Background(), "session-1")
		require.NoError(t, err)
		assert.Empty(t, first)

		second, err := f.store.History(context.Background(), "session-2")
		require.NoError(t, err)
		assert.Len(t, second, 1)

		failed := 0
		for _, e := range f.events {
			if e.Type == EventAttemptFailed {
				failed++
				assert.Equal(t, PhaseFailed, e.Phase)
				assert.NotEmpty(t, e.Err)
			}
		}
		assert.Equal(t, 2, failed)
	})

	t.Run("should exhaust after three failed attempts", func(t *testing.T) {
		f := newFixture(t)
		provider := &mockProvider{}
		provider.On("Complete", mock.Anything, mock.Anything).
			Return(nil, errors.New("model unavailable")).
			Times(3)

		res, err := f.orchestrator(t, provider).Research(context.Background(), "idea")
		require.Error(t, err)
		assert.Nil(t, res)

		assert.ErrorIs(t, err, ErrRetryExhausted)
		assert.ErrorIs(t, err, ErrModelInvocation)

		var exhausted *RetryExhaustedError
		require.True(t, errors.As(err, &exhausted))
		assert.Equal(t, 3, exhausted.Attempts)
		assert.Equal(t, "Failed to process request after 3 attempts", exhausted.Reason())

		provider.AssertExpectations(t)
		provider.AssertNumberOfCalls(t, "Complete", 3)
	})

	t.Run("should retry unknown tool", func(t *testing.T) {
		f := newFixture(t)
		provider := &scriptedProvider{steps: []step{
			reply("", conversation.ToolCall{ID: "x1", Name: "nonexistent"}),
			reply("research"),
			reply("narrative"),
		}}

		res, err := f.orchestrator(t, provider).Research(context.Background(), "idea")
		require.NoError(t, err)
		assert.Equal(t, 2, res.Attempts)
	})

	t.Run("should retry after attempt deadline", func(t *testing.T) {
		f := newFixture(t)
		provider := &scriptedProvider{steps: []step{
			func(ctx context.Context, req llm.Request) (*llm.Response, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			},
			reply("research"),
			reply("narrative"),
		}}

		res, err := f.orchestrator(t, provider, func(c *Config) {
			c.AttemptTimeout = 20 * time.Millisecond
		}).Research(context.Background(), "idea")
		require.NoError(t, err)
		assert.Equal(t, 2, res.Attempts)
	})

	t.Run("should not retry loop limit", func(t *testing.T) {
		f := newFixture(t)
		provider := &scriptedProvider{fallback: reply("", searchCall("c", "again"))}

		_, err := f.orchestrator(t, provider, func(c *Config) {
			c.MaxIterations = 2
		}).Research(context.Background(), "idea")
		require.Error(t, err)

		assert.ErrorIs(t, err, ErrLoopLimit)
		assert.NotErrorIs(t, err, ErrRetryExhausted)
		assert.Equal(t, 2, provider.calls())
		assert.Len(t, f.searcher.queries, 1)
	})

	t.Run("should not retry payload decode failure", func(t *testing.T) {
		f := newFixture(t)
		profile, err := ProfileByName(ProfileCompetitors)
		require.NoError(t, err)
		provider := &scriptedProvider{steps: []step{reply("research"), reply(`{"competitors": [`)}}

		_, err = f.orchestrator(t, provider).Research(context.Background(), "idea", WithProfile(profile))
		require.Error(t, err)

		assert.ErrorIs(t, err, ErrPayloadDecode)
		assert.Equal(t, 2, provider.calls())
	})

	t.Run("should not retry caller cancellation", func(t *testing.T) {
		f := newFixture(t)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		provider := &scriptedProvider{fallback: func(_ context.Context, req llm.Request) (*llm.Response, error) {
			cancel()
			return nil, context.Canceled
		}}

		_, err := f.orchestrator(t, provider).Research(ctx, "idea")
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, provider.calls())
	})

	t.Run("should treat empty synthesizer output as model failure", func(t *testing.T) {
		f := newFixture(t)
		provider := &scriptedProvider{fallback: reply("   ")}

		_, err := f.orchestrator(t, provider).Research(context.Background(), "idea")
		assert.ErrorIs(t, err, ErrRetryExhausted)
		assert.ErrorIs(t, err, ErrModelInvocation)
	})
}

func TestResearchNodeLogging(t *testing.T) {
	f := newFixture(t)
	provider := &scriptedProvider{steps: []step{reply(""), reply("narrative")}}

	var buf bytes.Buffer
	orch := f.orchestrator(t, provider, func(c *Config) {
		c.Logger = zerolog.New(&buf).Level(zerolog.DebugLevel)
	})

	_, err := orch.Research(context.Background(), "idea")
	require.NoError(t, err)

	var found bool
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		if entry["message"] != "Planner step completed" {
			continue
		}
		found = true
		assert.Equal(t, ProfileMarket, entry["profile"])
		assert.Equal(t, "session-1", entry["session_id"])
		assert.NotEmpty(t, entry["trace_id"])
	}
	assert.True(t, found, "planner should log its step")
}

func TestResearchEmptyQuery(t *testing.T) {
	f := newFixture(t)
	provider := &scriptedProvider{}

	_, err := f.orchestrator(t, provider).Research(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyQuery)
	assert.Zero(t, provider.calls())
}

func TestResearchCompetitorsProfile(t *testing.T) {
	f := newFixture(t)
	profile, err := ProfileByName(ProfileCompetitors)
	require.NoError(t, err)

	raw := `{"competitors": [], "validation": {"unique": "no comparable data"}}`
	provider := &scriptedProvider{steps: []step{reply("research"), reply(raw)}}

	res, err := f.orchestrator(t, provider, func(c *Config) { c.Profile = profile }).Research(context.Background(), "idea")
	require.NoError(t, err)

	want := &CompetitorReport{Competitors: []Competitor{}, Validation: Validation{Unique: "no comparable data"}}
	assert.Equal(t, want, res.Payload)
	assert.Equal(t, want, res.Output())
	assert.Equal(t, raw, res.Text)
	assert.Equal(t, ProfileCompetitors, res.Profile)
	assert.Equal(t, competitorComparisonInstruction, provider.requests[1].SystemPrompt)
}

func TestResearchTorontoScenario(t *testing.T) {
	const (
		query     = "Vehicle rentals in Toronto, but renting out your own car"
		narrative = "In the space of vehicle rentals in Toronto, but renting out your own car, the major companies are Lyft, Zipcar, Turo and Communauto. " +
			"Lyft is a ridesharing service that does not require the user to own a car. " +
			"Zipcar is a car-sharing service that allows users to rent cars by the day or week. " +
			"Turo is a peer-to-peer car-sharing platform that allows individuals to rent out their own cars to others. " +
			"Communauto has vehicles allocated over the city which users can access at any time."
	)

	f := newFixture(t)
	f.searcher.results = []search.Result{
		{Title: "Lyft", URL: "https://www.lyft.com", Snippet: "Lyft: does not require the user to own a car."},
		{Title: "Zipcar", URL: "https://www.zipcar.com", Snippet: "Zipcar: allows users to rent cars by the day or week."},
		{Title: "Turo", URL: "https://turo.com", Snippet: "Turo: allows users to rent out their own cars to others."},
		{Title: "Communauto", URL: "https://communauto.com", Snippet: "Communauto: has vehicles allocated over the city which users can access at any time."},
	}

	provider := &scriptedProvider{steps: []step{
		reply("A search is needed.", searchCall("call_1", "short-term vehicle rental apps toronto")),
		reply("Research gathered on Lyft, Zipcar, Turo and Communauto."),
		reply(narrative),
	}}

	res, err := f.orchestrator(t, provider).Research(context.Background(), query)
	require.NoError(t, err)

	assert.Equal(t, narrative, res.Text)
	assert.Equal(t, narrative, res.Output())
	assert.Nil(t, res.Payload)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, []string{"short-term vehicle rental apps toronto"}, f.searcher.queries)

	require.Len(t, res.Messages, 5)
	assert.Equal(t, query, res.Messages[0].Content)
	tool := res.Messages[2]
	assert.Equal(t, conversation.RoleTool, tool.Role)
	assert.Equal(t, "call_1", tool.ToolCallID)
	for _, name := range []string{"Lyft", "Zipcar", "Turo", "Communauto"} {
		assert.Contains(t, tool.Content, name)
	}

	require.Len(t, provider.requests, 3)
	assert.Len(t, provider.requests[1].Messages, 3)
	assert.Len(t, provider.requests[2].Messages, 4)

	latest, err := f.store.Latest(context.Background(), res.SessionID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 4, latest.Step)
	assert.Len(t, latest.Messages, 5)
}
