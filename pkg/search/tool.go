package search

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/harun/ideascout/internal/tracing"
	"github.com/harun/ideascout/pkg/toolexecutor"
)

// ToolName is the name the planner uses to call the search capability.
const ToolName = "web_search"

// NewTool builds the web_search tool definition around a Searcher.
func NewTool(searcher Searcher, maxResults int, logger zerolog.Logger) toolexecutor.ToolDefinition {
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}

	return toolexecutor.ToolDefinition{
		Name:        ToolName,
		Description: "Search the web for current information about markets, competitors, pricing and trends. Returns a list of results with title, url and content.",
		Parameters: []toolexecutor.ToolParameter{
			{
				Name:        "query",
				Type:        "string",
				Description: "The search query",
				Required:    true,
			},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
			query, _ := params["query"].(string)
			query = strings.TrimSpace(query)
			if query == "" {
				return nil, fmt.Errorf("query cannot be empty")
			}

			log := tracing.LoggerFromContext(ctx, logger)

			results, err := searcher.Search(ctx, query, maxResults)
			if err != nil {
				if isCredentialError(err) {
					log.Error().Err(err).Msg("Search credentials rejected")
					return nil, toolexecutor.Unrecoverable(err)
				}
				log.Warn().Err(err).Str("query", query).Msg("Search failed")
				return nil, err
			}

			log.Debug().Str("query", query).Int("results", len(results)).Msg("Search completed")
			return results, nil
		},
	}
}

func isCredentialError(err error) bool {
	if errors.Is(err, ErrMissingAPIKey) {
		return true
	}
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.Unauthorized()
}
