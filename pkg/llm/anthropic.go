package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/harun/ideascout/pkg/conversation"
)

const defaultAnthropicMaxTokens = 4096

// AnthropicProvider implements Provider for the Anthropic messages API
type AnthropicProvider struct {
	client anthropic.Client
}

// NewAnthropicProvider creates a new Anthropic provider
func NewAnthropicProvider(cfg Config) *AnthropicProvider {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	if cfg.MaxRetries != nil {
		opts = append(opts, option.WithMaxRetries(*cfg.MaxRetries))
	}

	return &AnthropicProvider{
		client: anthropic.NewClient(opts...),
	}
}

// Name returns the provider name
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// Complete makes a messages API call to Anthropic
func (p *AnthropicProvider) Complete(ctx context.Context, request Request) (*Response, error) {
	messages := []anthropic.MessageParam{}
	var system []string
	if request.SystemPrompt != "" {
		system = append(system, request.SystemPrompt)
	}

	for _, msg := range request.Messages {
		switch msg.Role {
		case conversation.RoleSystem:
			system = append(system, msg.Content)

		case conversation.RoleTool:
			block := anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false)
			// Results of one batch share a single user turn.
			if n := len(messages); n > 0 && messages[n-1].Role == anthropic.MessageParamRoleUser && isToolResultTurn(messages[n-1]) {
				messages[n-1].Content = append(messages[n-1].Content, block)
				continue
			}
			messages = append(messages, anthropic.NewUserMessage(block))

		case conversation.RoleAssistant:
			blocks := []anthropic.ContentBlockParamUnion{}
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, tc.Arguments, tc.Name))
			}
			// The API rejects empty text blocks.
			if len(blocks) == 0 {
				continue
			}
			messages = append(messages, anthropic.MessageParam{
				Role:    anthropic.MessageParamRoleAssistant,
				Content: blocks,
			})

		case conversation.RoleUser:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}

	maxTokens := request.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(request.Model),
		Messages:  messages,
		MaxTokens: int64(maxTokens),
	}

	if len(system) > 0 {
		params.System = []anthropic.TextBlockParam{
			{Text: strings.Join(system, "\n\n")},
		}
	}

	if request.Temperature > 0 {
		params.Temperature = anthropic.Float(request.Temperature)
	}

	if len(request.Tools) > 0 {
		tools := make([]anthropic.ToolUnionParam, 0, len(request.Tools))
		for _, tool := range request.Tools {
			toolParam := anthropic.ToolParam{
				Name:        tool.Name,
				Description: anthropic.String(tool.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: tool.InputSchema["properties"],
					Required:   requiredFields(tool.InputSchema),
				},
			}
			tools = append(tools, anthropic.ToolUnionParam{OfTool: &toolParam})
		}
		params.Tools = tools
	}

	response, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, err
	}

	if len(response.Content) == 0 {
		return nil, fmt.Errorf("%w: no content blocks returned", ErrEmptyResponse)
	}

	var content strings.Builder
	toolCalls := []conversation.ToolCall{}

	for _, block := range response.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			content.WriteString(b.Text)
		case anthropic.ToolUseBlock:
			args, err := decodeArguments(b.JSON.Input.Raw())
			if err != nil {
				return nil, fmt.Errorf("tool call %s (%s): %w", b.ID, b.Name, err)
			}
			toolCalls = append(toolCalls, conversation.ToolCall{
				ID:        b.ID,
				Name:      b.Name,
				Arguments: args,
			})
		}
	}

	return &Response{
		Message: conversation.AssistantMessage(content.String(), toolCalls...),
		Usage: &Usage{
			InputTokens:  int(response.Usage.InputTokens),
			OutputTokens: int(response.Usage.OutputTokens),
		},
	}, nil
}

func isToolResultTurn(msg anthropic.MessageParam) bool {
	for _, block := range msg.Content {
		if block.OfToolResult == nil {
			return false
		}
	}
	return len(msg.Content) > 0
}
