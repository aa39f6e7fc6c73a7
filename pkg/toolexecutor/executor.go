package toolexecutor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/xeipuuv/gojsonschema"
	"go.opentelemetry.io/otel/attribute"

	"github.com/harun/ideascout/internal/observability"
	"github.com/harun/ideascout/internal/tracing"
	"github.com/harun/ideascout/pkg/conversation"
	"github.com/harun/ideascout/pkg/llm"
)

const (
	defaultTimeout        = 30 * time.Second
	defaultMaxOutputBytes = 10 * 1024
	truncationMarker      = "\n... [output truncated]"
)

// ToolParameter defines a parameter for a tool
type ToolParameter struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Description string      `json:"description"`
	Required    bool        `json:"required"`
	Default     interface{} `json:"default,omitempty"`
}

// ToolDefinition defines a tool's metadata and handler
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  []ToolParameter `json:"parameters"`
	Handler     ToolHandler     `json:"-"`
}

// ToolHandler is the function signature for tool execution
type ToolHandler func(ctx context.Context, params map[string]interface{}) (interface{}, error)

// Config configures a ToolExecutor
type Config struct {
	// Timeout bounds a single handler call; zero uses 30s.
	Timeout time.Duration
	// MaxOutputBytes caps result content; zero uses 10KB.
	MaxOutputBytes int
	Logger         zerolog.Logger
}

type registeredTool struct {
	def       ToolDefinition
	schemaMap map[string]interface{}
	schema    *gojsonschema.Schema
}

// ToolExecutor manages and executes tools
type ToolExecutor struct {
	tools          map[string]*registeredTool
	timeout        time.Duration
	maxOutputBytes int
	logger         zerolog.Logger
	mu             sync.RWMutex
}

// New creates a new ToolExecutor
func New(cfg Config) *ToolExecutor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = defaultMaxOutputBytes
	}

	te := &ToolExecutor{
		tools:          make(map[string]*registeredTool),
		timeout:        cfg.Timeout,
		maxOutputBytes: cfg.MaxOutputBytes,
		logger:         cfg.Logger.With().Str("component", "toolexecutor").Logger(),
	}

	te.logger.Debug().Dur("timeout", cfg.Timeout).Msg("Tool executor initialized")

	return te
}

// RegisterTool registers a new tool
func (te *ToolExecutor) RegisterTool(def ToolDefinition) error {
	if err := validateToolDefinition(def); err != nil {
		return fmt.Errorf("invalid tool definition: %w", err)
	}

	schemaMap := generateSchemaMap(def)
	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schemaMap))
	if err != nil {
		return fmt.Errorf("failed to generate schema: %w", err)
	}

	te.mu.Lock()
	defer te.mu.Unlock()

	if _, exists := te.tools[def.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, def.Name)
	}

	te.tools[def.Name] = &registeredTool{
		def:       def,
		schemaMap: schemaMap,
		schema:    schema,
	}

	te.logger.Info().Str("tool", def.Name).Msg("Tool registered")

	return nil
}

// GetTool returns a tool definition by name
func (te *ToolExecutor) GetTool(name string) *ToolDefinition {
	te.mu.RLock()
	defer te.mu.RUnlock()

	tool, ok := te.tools[name]
	if !ok {
		return nil
	}
	def := tool.def
	return &def
}

// ListTools returns all registered tool names, sorted
func (te *ToolExecutor) ListTools() []string {
	te.mu.RLock()
	defer te.mu.RUnlock()

	names := lo.Keys(te.tools)
	slices.Sort(names)
	return names
}

// GetToolCount returns the number of registered tools
func (te *ToolExecutor) GetToolCount() int {
	te.mu.RLock()
	defer te.mu.RUnlock()

	return len(te.tools)
}

// ToolSpecs exports registered tools for binding to a model, sorted by name
func (te *ToolExecutor) ToolSpecs() []llm.ToolSpec {
	te.mu.RLock()
	defer te.mu.RUnlock()

	names := lo.Keys(te.tools)
	slices.Sort(names)

	return lo.Map(names, func(name string, _ int) llm.ToolSpec {
		tool := te.tools[name]
		return llm.ToolSpec{
			Name:        tool.def.Name,
			Description: tool.def.Description,
			InputSchema: tool.schemaMap,
		}
	})
}

// ExecuteAll resolves every call in request order. Results are returned only when all calls resolved.
func (te *ToolExecutor) ExecuteAll(ctx context.Context, calls []conversation.ToolCall) ([]conversation.Message, error) {
	results := make([]conversation.Message, 0, len(calls))
	for _, call := range calls {
		msg, err := te.Execute(ctx, call)
		if err != nil {
			return nil, err
		}
		results = append(results, msg)
	}
	return results, nil
}

// Execute runs one tool call and returns its tool-result message
func (te *ToolExecutor) Execute(ctx context.Context, call conversation.ToolCall) (conversation.Message, error) {
	logger := tracing.LoggerFromContext(ctx, te.logger).With().
		Str("tool", call.Name).
		Str("tool_call_id", call.ID).
		Logger()

	te.mu.RLock()
	tool := te.tools[call.Name]
	te.mu.RUnlock()

	if tool == nil {
		logger.Error().Msg("Tool not found")
		return conversation.Message{}, fmt.Errorf("%w: %s", ErrUnknownTool, call.Name)
	}

	ctx, span := tracing.StartSpan(ctx, "ideascout.toolexecutor", "tool."+call.Name,
		attribute.String("tool.call_id", call.ID),
	)
	defer span.End()

	startTime := time.Now()
	content, success, err := te.run(ctx, tool, call, logger)
	duration := time.Since(startTime)

	if err != nil {
		observability.RecordToolExecution(call.Name, duration, false)
		tracing.RecordError(span, err)
		return conversation.Message{}, err
	}

	observability.RecordToolExecution(call.Name, duration, success)

	content, truncated := te.truncateOutput(content)
	if truncated {
		logger.Warn().Int("limit", te.maxOutputBytes).Msg("Output truncated")
	}

	logger.Debug().
		Dur("duration", duration).
		Bool("success", success).
		Bool("truncated", truncated).
		Msg("Tool execution completed")

	return conversation.ToolResultMessage(call.ID, call.Name, content), nil
}

// run returns the result content and whether the tool succeeded. An error is returned only
// for failures that must abort the attempt.
func (te *ToolExecutor) run(ctx context.Context, tool *registeredTool, call conversation.ToolCall, logger zerolog.Logger) (string, bool, error) {
	params := call.Arguments
	if params == nil {
		params = map[string]interface{}{}
	}

	if err := validateParameters(tool.schema, params); err != nil {
		logger.Warn().Err(err).Msg("Parameter validation failed")
		return fmt.Sprintf("error: parameter validation failed: %v", err), false, nil
	}

	timeoutCtx, cancel := context.WithTimeout(ContextWithCall(ctx, call), te.timeout)
	defer cancel()

	resultChan := make(chan interface{}, 1)
	errChan := make(chan error, 1)

	go func() {
		result, err := tool.def.Handler(timeoutCtx, params)
		if err != nil {
			errChan <- err
		} else {
			resultChan <- result
		}
	}()

	select {
	case result := <-resultChan:
		text, err := toText(result)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to encode tool output")
			return fmt.Sprintf("error: failed to encode output: %v", err), false, nil
		}
		return text, true, nil

	case err := <-errChan:
		if errors.Is(err, ErrUnrecoverable) {
			logger.Error().Err(err).Msg("Tool execution failed unrecoverably")
			return "", false, fmt.Errorf("%w: %s: %w", ErrToolFailure, call.Name, err)
		}
		if ctx.Err() != nil {
			return "", false, ctx.Err()
		}
		logger.Warn().Err(err).Msg("Tool execution failed")
		return fmt.Sprintf("error: %v", err), false, nil

	case <-timeoutCtx.Done():
		// The caller's own cancellation or deadline ends the attempt.
		if ctx.Err() != nil {
			return "", false, ctx.Err()
		}
		logger.Warn().Dur("timeout", te.timeout).Msg("Tool execution timeout")
		return fmt.Sprintf("error: tool execution timeout after %v", te.timeout), false, nil
	}
}

func toText(result interface{}) (string, error) {
	switch v := result.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case fmt.Stringer:
		return v.String(), nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
}

// truncateOutput cuts content at a rune boundary once it exceeds the size limit
func (te *ToolExecutor) truncateOutput(content string) (string, bool) {
	if len(content) <= te.maxOutputBytes {
		return content, false
	}

	cut := te.maxOutputBytes
	for cut > 0 && !utf8.RuneStart(content[cut]) {
		cut--
	}

	return content[:cut] + truncationMarker, true
}

// validateToolDefinition validates a tool definition
func validateToolDefinition(def ToolDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if def.Description == "" {
		return fmt.Errorf("tool description cannot be empty")
	}
	if def.Handler == nil {
		return fmt.Errorf("tool handler cannot be nil")
	}

	validTypes := map[string]bool{
		"string": true, "number": true, "boolean": true,
		"object": true, "array": true, "integer": true,
	}

	seen := map[string]bool{}
	for _, param := range def.Parameters {
		if param.Name == "" {
			return fmt.Errorf("parameter name cannot be empty")
		}
		if seen[param.Name] {
			return fmt.Errorf("duplicate parameter %s", param.Name)
		}
		seen[param.Name] = true
		if param.Type == "" {
			return fmt.Errorf("parameter type cannot be empty for %s", param.Name)
		}
		if param.Description == "" {
			return fmt.Errorf("parameter description cannot be empty for %s", param.Name)
		}
		if !validTypes[param.Type] {
			return fmt.Errorf("invalid parameter type %s for %s", param.Type, param.Name)
		}
	}

	return nil
}

// generateSchemaMap builds the JSON Schema object for a tool's parameters
func generateSchemaMap(def ToolDefinition) map[string]interface{} {
	properties := make(map[string]interface{}, len(def.Parameters))
	required := []string{}

	for _, param := range def.Parameters {
		paramSchema := map[string]interface{}{
			"type":        param.Type,
			"description": param.Description,
		}

		if param.Default != nil {
			paramSchema["default"] = param.Default
		}

		properties[param.Name] = paramSchema

		if param.Required {
			required = append(required, param.Name)
		}
	}

	schemaMap := map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           properties,
	}
	if len(required) > 0 {
		schemaMap["required"] = required
	}

	return schemaMap
}

// validateParameters validates parameters against a JSON Schema
func validateParameters(schema *gojsonschema.Schema, params map[string]interface{}) error {
	if schema == nil {
		return nil
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(params))
	if err != nil {
		return err
	}

	if !result.Valid() {
		messages := lo.Map(result.Errors(), func(e gojsonschema.ResultError, _ int) string {
			return e.String()
		})
		return fmt.Errorf("validation errors: %s", strings.Join(messages, "; "))
	}

	return nil
}
