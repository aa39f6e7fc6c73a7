package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/harun/ideascout/pkg/conversation"
)

var (
	// ErrUnsupportedProvider is returned by NewProvider for unknown provider names.
	ErrUnsupportedProvider = errors.New("unsupported provider")
	// ErrMalformedToolArguments marks tool call arguments that are not a JSON object.
	ErrMalformedToolArguments = errors.New("malformed tool arguments")
	// ErrEmptyResponse marks a completion without any choice or content block.
	ErrEmptyResponse = errors.New("empty response")
)

// Provider is a chat completion backend capable of tool calls
type Provider interface {
	// Complete sends the conversation and returns the next assistant message
	Complete(ctx context.Context, request Request) (*Response, error)

	// Name returns the provider name
	Name() string
}

// ToolSpec describes a tool the model may call
type ToolSpec struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

// Request contains the request parameters for one completion
type Request struct {
	Model        string
	SystemPrompt string
	Messages     []conversation.Message
	Tools        []ToolSpec
	Temperature  float64
	MaxTokens    int
}

// Usage tracks token consumption
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Response contains the assistant message produced by a completion
type Response struct {
	Message conversation.Message
	Usage   *Usage
}

// Config selects and configures a provider
type Config struct {
	Provider   string // openai, anthropic
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	// MaxRetries is the SDK-level retry count; nil keeps the SDK default.
	MaxRetries *int
}

// NewProvider creates a provider from its name, defaulting to openai
func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "", "openai":
		return NewOpenAIProvider(cfg), nil
	case "anthropic":
		return NewAnthropicProvider(cfg), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, cfg.Provider)
	}
}

func requiredFields(schema map[string]interface{}) []string {
	switch required := schema["required"].(type) {
	case []string:
		return required
	case []interface{}:
		out := make([]string, 0, len(required))
		for _, v := range required {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
