package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/ideascout/pkg/checkpoint"
	"github.com/harun/ideascout/pkg/conversation"
	"github.com/harun/ideascout/pkg/llm"
	"github.com/harun/ideascout/pkg/research"
	"github.com/harun/ideascout/pkg/toolexecutor"
)

// scriptedProvider returns replies in order; an empty string reply is a model error.
type scriptedProvider struct {
	mu      sync.Mutex
	replies []string
	calls   int
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls++
	if len(p.replies) == 0 {
		return nil, errors.New("model unavailable")
	}
	next := p.replies[0]
	p.replies = p.replies[1:]
	if next == "" {
		return nil, errors.New("model unavailable")
	}
	return &llm.Response{Message: conversation.AssistantMessage(next)}, nil
}

type testEnv struct {
	server   *Server
	store    *checkpoint.MemoryStore
	provider *scriptedProvider
}

func testLogger() zerolog.Logger {
	return zerolog.New(os.Stdout).Level(zerolog.ErrorLevel)
}

func newTestEnv(t *testing.T, replies []string, mutate ...func(*Config)) *testEnv {
	t.Helper()

	env := &testEnv{
		store:    checkpoint.NewMemoryStore(),
		provider: &scriptedProvider{replies: replies},
	}

	orch, err := research.New(research.Config{
		Provider: env.provider,
		Tools:    toolexecutor.New(toolexecutor.Config{Logger: testLogger()}),
		Store:    env.store,
		Model:    "test-model",
		Logger:   testLogger(),
	})
	require.NoError(t, err)

	cfg := Config{
		Host:        "127.0.0.1",
		Port:        0,
		Researcher:  orch,
		Checkpoints: env.store,
		Logger:      testLogger(),
	}
	for _, m := range mutate {
		m(&cfg)
	}

	env.server, err = NewServer(cfg)
	require.NoError(t, err)
	return env
}

func (env *testEnv) post(t *testing.T, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/research", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestNewServer(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	orch := &stubResearcher{}

	t.Run("should create server with valid config", func(t *testing.T) {
		s, err := NewServer(Config{Port: 8000, Researcher: orch, Checkpoints: store, Logger: testLogger()})
		require.NoError(t, err)
		assert.Equal(t, ":8000", s.Addr())
	})

	t.Run("should fail without researcher", func(t *testing.T) {
		_, err := NewServer(Config{Port: 8000, Checkpoints: store})
		assert.EqualError(t, err, "researcher is required")
	})

	t.Run("should fail without checkpoint reader", func(t *testing.T) {
		_, err := NewServer(Config{Port: 8000, Researcher: orch})
		assert.EqualError(t, err, "checkpoint reader is required")
	})

	t.Run("should fail with invalid port", func(t *testing.T) {
		_, err := NewServer(Config{Port: 70000, Researcher: orch, Checkpoints: store})
		assert.Error(t, err)
	})
}

type stubResearcher struct {
	err error
}

func (s *stubResearcher) Research(ctx context.Context, query string, opts ...research.RunOption) (*research.Result, error) {
	return nil, s.err
}

func TestHandleResearch(t *testing.T) {
	t.Run("should return the narrative", func(t *testing.T) {
		env := newTestEnv(t, []string{"research gathered", "the final narrative"})

		rec := env.post(t, `{"query": "Vehicle rentals in Toronto, but renting out your own car"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))

		resp := decode[map[string]any](t, rec)
		assert.Equal(t, "the final narrative", resp["result"])
		assert.Equal(t, float64(1), resp["attempts"])
		assert.Equal(t, research.ProfileMarket, resp["profile"])
		assert.NotEmpty(t, resp["session_id"])
	})

	t.Run("should return the decoded competitor payload", func(t *testing.T) {
		env := newTestEnv(t, []string{"research", `{"competitors": [], "validation": {"unique": "no comparable data"}}`})

		rec := env.post(t, `{"query": "idea", "profile": "competitors"}`)
		require.Equal(t, http.StatusOK, rec.Code)

		resp := decode[map[string]any](t, rec)
		assert.Equal(t, map[string]any{
			"competitors": []any{},
			"validation":  map[string]any{"unique": "no comparable data"},
		}, resp["result"])
	})

	tests := []struct {
		name    string
		replies []string
		body    string
		code    int
		detail  string
	}{
		{"should reject empty query", nil, `{"query": "  "}`, http.StatusBadRequest, "query cannot be empty"},
		{"should reject unknown profile", nil, `{"query": "idea", "profile": "pricing"}`, http.StatusBadRequest, "unknown research profile: pricing"},
		{"should reject malformed body", nil, `{"query":`, http.StatusBadRequest, "invalid request body"},
		{"should report exhaustion", nil, `{"query": "idea"}`, http.StatusInternalServerError, "Failed to process request after 3 attempts"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.replies)

			rec := env.post(t, tt.body)
			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, tt.detail, decode[ErrorResponse](t, rec).Detail)
		})
	}

	t.Run("should map payload decode failure to bad gateway", func(t *testing.T) {
		env := newTestEnv(t, []string{"research", `{"competitors": [`})

		rec := env.post(t, `{"query": "idea", "profile": "competitors"}`)
		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Contains(t, decode[ErrorResponse](t, rec).Detail, "competitors payload decode failed")
		assert.Equal(t, 2, env.provider.calls)
	})

	t.Run("should hide unclassified errors", func(t *testing.T) {
		s, err := NewServer(Config{
			Researcher:  &stubResearcher{err: errors.New("dial tcp: secret-host refused")},
			Checkpoints: checkpoint.NewMemoryStore(),
			Logger:      testLogger(),
		})
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodPost, "/research", strings.NewReader(`{"query": "idea"}`))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, genericDetail, decode[ErrorResponse](t, rec).Detail)
	})
}

func TestHandleCheckpoints(t *testing.T) {
	env := newTestEnv(t, []string{"research", "narrative"})

	rec := env.post(t, `{"query": "idea"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	sessionID := decode[ResearchResponse](t, rec).SessionID

	t.Run("should return history", func(t *testing.T) {
		rec := httptest.NewRecorder()
		env.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions/"+sessionID+"/checkpoints", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		resp := decode[CheckpointsResponse](t, rec)
		assert.Equal(t, sessionID, resp.SessionID)
		require.Len(t, resp.Checkpoints, 2)
		assert.Equal(t, research.NodePlanner, resp.Checkpoints[0].Node)
		assert.Equal(t, research.NodeSynthesizer, resp.Checkpoints[1].Node)
		assert.Len(t, resp.Checkpoints[1].Messages, 3)
	})

	t.Run("should return not found for unknown session", func(t *testing.T) {
		rec := httptest.NewRecorder()
		env.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/sessions/missing/checkpoints", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "research_runs_total")
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, []string{"research", "narrative"}, func(c *Config) {
		c.RequestsPerMinute = 1
	})

	assert.Equal(t, http.StatusOK, env.post(t, `{"query": "idea"}`).Code)

	rec := env.post(t, `{"query": "idea"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, limitRate, decode[ErrorResponse](t, rec).Detail)
}

func TestCORS(t *testing.T) {
	env := newTestEnv(t, nil, func(c *Config) {
		c.AllowOrigins = []string{"https://app.example.com"}
	})

	req := httptest.NewRequest(http.MethodOptions, "/research", nil)
	req.Header.Set(echo.HeaderOrigin, "https://app.example.com")
	req.Header.Set(echo.HeaderAccessControlRequestMethod, http.MethodPost)
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "https://app.example.com", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
}

func TestStartAndShutdown(t *testing.T) {
	env := newTestEnv(t, nil)
	require.NoError(t, env.server.Start())

	url := fmt.Sprintf("http://%s/healthz", env.server.Addr())
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, env.server.Shutdown(ctx))

	assert.Equal(t, http.StatusServiceUnavailable, env.post(t, `{"query": "idea"}`).Code)
}

func dialStream(t *testing.T, env *testEnv) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(env.server.Handler())
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/research/stream", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrames(t *testing.T, conn *websocket.Conn) []map[string]any {
	t.Helper()
	var frames []map[string]any
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var frame map[string]any
		if err := conn.ReadJSON(&frame); err != nil {
			return frames
		}
		frames = append(frames, frame)
		if frame["type"] == FrameResult || frame["type"] == FrameError {
			return frames
		}
	}
}

func TestHandleStream(t *testing.T) {
	t.Run("should stream events then result", func(t *testing.T) {
		env := newTestEnv(t, []string{"research", "streamed narrative"})
		conn := dialStream(t, env)

		require.NoError(t, conn.WriteJSON(ResearchRequest{Query: "idea"}))
		frames := readFrames(t, conn)

		types := make([]any, 0, len(frames))
		for _, f := range frames {
			types = append(types, f["type"])
		}
		assert.Equal(t, []any{
			string(research.EventAttemptStarted),
			string(research.EventNodeCompleted),
			string(research.EventNodeCompleted),
			string(research.EventRunCompleted),
			FrameResult,
		}, types)

		final := frames[len(frames)-1]
		assert.Equal(t, "streamed narrative", final["result"])
		assert.Equal(t, float64(1), final["attempts"])
	})

	t.Run("should send error frame for empty query", func(t *testing.T) {
		env := newTestEnv(t, nil)
		conn := dialStream(t, env)

		require.NoError(t, conn.WriteJSON(ResearchRequest{Query: ""}))
		frames := readFrames(t, conn)

		require.Len(t, frames, 1)
		assert.Equal(t, FrameError, frames[0]["type"])
		assert.Equal(t, float64(http.StatusBadRequest), frames[0]["status"])
		assert.Equal(t, "query cannot be empty", frames[0]["detail"])
	})

	t.Run("should send error frame on exhaustion", func(t *testing.T) {
		env := newTestEnv(t, nil)
		conn := dialStream(t, env)

		require.NoError(t, conn.WriteJSON(ResearchRequest{Query: "idea"}))
		frames := readFrames(t, conn)

		final := frames[len(frames)-1]
		assert.Equal(t, FrameError, final["type"])
		assert.Equal(t, "Failed to process request after 3 attempts", final["detail"])
	})
}
