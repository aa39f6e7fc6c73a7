package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultTavilyURL      = "https://api.tavily.com/search"
	defaultMaxResults     = 4
	defaultInitialBackoff = 1 * time.Second
	defaultMaxBackoff     = 30 * time.Second
)

// ErrMissingAPIKey is returned when the Tavily key is not configured.
var ErrMissingAPIKey = errors.New("tavily: API key is missing")

// Result is one search hit.
type Result struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Snippet string  `json:"content"`
	Score   float64 `json:"score,omitempty"`
}

// Searcher runs a web search.
type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]Result, error)
}

// HTTPError reports a non-200 response from the search API.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("tavily http %d", e.StatusCode)
	}
	return fmt.Sprintf("tavily http %d: %s", e.StatusCode, e.Body)
}

// Unauthorized reports whether the key was rejected.
func (e *HTTPError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// TavilyConfig configures the Tavily client.
type TavilyConfig struct {
	APIKey string
	// Depth controls Tavily's search_depth parameter (basic or advanced).
	Depth      string
	BaseURL    string
	HTTPClient *http.Client
	// InitialBackoff and MaxBackoff bound the 429 retry delay.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Tavily calls the Tavily search API.
type Tavily struct {
	apiKey         string
	depth          string
	url            string
	client         *http.Client
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewTavily constructs a Tavily search provider.
func NewTavily(cfg TavilyConfig) *Tavily {
	if cfg.Depth == "" {
		cfg.Depth = "basic"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultTavilyURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = defaultInitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaultMaxBackoff
	}

	return &Tavily{
		apiKey:         cfg.APIKey,
		depth:          cfg.Depth,
		url:            cfg.BaseURL,
		client:         cfg.HTTPClient,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
	}
}

// Search posts a query to Tavily.
func (t *Tavily) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	if strings.TrimSpace(t.apiKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}

	payload, err := json.Marshal(map[string]any{
		"query":        query,
		"api_key":      t.apiKey,
		"search_depth": t.depth,
		"max_results":  maxResults,
	})
	if err != nil {
		return nil, err
	}

	var resp *http.Response
	delay := t.initialBackoff
	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+t.apiKey)

		resp, err = t.client.Do(req)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode != http.StatusTooManyRequests {
			break
		}
		resp.Body.Close()

		// Back off and retry on 429, doubling the delay each time up to the cap.
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay = min(delay*2, t.maxBackoff)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var response struct {
		Results []struct {
			Title   string  `json:"title"`
			URL     string  `json:"url"`
			Content string  `json:"content"`
			Score   float64 `json:"score"`
		} `json:"results"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("tavily: failed to decode response: %w", err)
	}

	results := make([]Result, 0, len(response.Results))
	for _, r := range response.Results {
		results = append(results, Result{Title: r.Title, URL: r.URL, Snippet: r.Content, Score: r.Score})
		if len(results) >= maxResults {
			break
		}
	}
	return results, nil
}
