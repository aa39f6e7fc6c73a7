package config

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
)

var (
	validProviders = []string{"openai", "anthropic"}
	validProfiles  = []string{"market", "competitors", "opportunities"}
	validBackends  = []string{"memory", "sqlite", "redis"}
	validDepths    = []string{"basic", "advanced"}
	validLevels    = []string{"debug", "info", "warn", "error"}
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateProvider validates the language model provider name
func (v *Validator) ValidateProvider(provider string) error {
	if !lo.Contains(validProviders, provider) {
		return fmt.Errorf("invalid llm provider: %s (must be one of: %s)", provider, strings.Join(validProviders, ", "))
	}
	return nil
}

// ValidateAPIKey validates an API key format
func (v *Validator) ValidateAPIKey(key string, provider string) error {
	if key == "" {
		return fmt.Errorf("%s API key cannot be empty", provider)
	}

	switch provider {
	case "anthropic":
		if !strings.HasPrefix(key, "sk-ant-") {
			return fmt.Errorf("invalid Anthropic API key format (should start with sk-ant-)")
		}
	case "openai":
		if !strings.HasPrefix(key, "sk-") {
			return fmt.Errorf("invalid OpenAI API key format (should start with sk-)")
		}
	case "tavily":
		if !strings.HasPrefix(key, "tvly-") {
			return fmt.Errorf("invalid Tavily API key format (should start with tvly-)")
		}
	}

	return nil
}

// ValidateTemperature validates temperature value
func (v *Validator) ValidateTemperature(temp float64) error {
	if temp < 0 || temp > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %f", temp)
	}
	return nil
}

// ValidateMaxTokens validates max tokens value
func (v *Validator) ValidateMaxTokens(tokens int) error {
	if tokens <= 0 {
		return fmt.Errorf("max tokens must be positive, got %d", tokens)
	}
	if tokens > 200000 {
		return fmt.Errorf("max tokens too large (max 200000), got %d", tokens)
	}
	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	if !lo.Contains(validLevels, level) {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
	}
	return nil
}

// ValidateProfile validates a research profile name
func (v *Validator) ValidateProfile(profile string) error {
	if !lo.Contains(validProfiles, profile) {
		return fmt.Errorf("invalid research profile: %s (must be one of: %s)", profile, strings.Join(validProfiles, ", "))
	}
	return nil
}

// ValidateBackend validates a checkpoint backend name
func (v *Validator) ValidateBackend(backend string) error {
	if !lo.Contains(validBackends, backend) {
		return fmt.Errorf("invalid checkpoint backend: %s (must be one of: %s)", backend, strings.Join(validBackends, ", "))
	}
	return nil
}

// ValidatePort validates a TCP port
func (v *Validator) ValidatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", port)
	}
	return nil
}

// ValidateConfig performs comprehensive validation of bounds and enum fields
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	if err := v.ValidateTemperature(cfg.LLM.Temperature); err != nil {
		errors = append(errors, fmt.Errorf("llm: %w", err))
	}
	if err := v.ValidateMaxTokens(cfg.LLM.MaxTokens); err != nil {
		errors = append(errors, fmt.Errorf("llm: %w", err))
	}

	if cfg.Search.MaxResults < 1 || cfg.Search.MaxResults > 20 {
		errors = append(errors, fmt.Errorf("search.max_results must be between 1 and 20, got %d", cfg.Search.MaxResults))
	}
	if !lo.Contains(validDepths, cfg.Search.Depth) {
		errors = append(errors, fmt.Errorf("invalid search depth: %s (must be one of: %s)", cfg.Search.Depth, strings.Join(validDepths, ", ")))
	}
	if cfg.Search.Timeout < 0 {
		errors = append(errors, fmt.Errorf("search.timeout must be >= 0"))
	}

	if err := v.ValidateProfile(cfg.Research.Profile); err != nil {
		errors = append(errors, err)
	}
	if cfg.Research.MaxAttempts < 1 || cfg.Research.MaxAttempts > 3 {
		errors = append(errors, fmt.Errorf("research.max_attempts must be between 1 and 3, got %d", cfg.Research.MaxAttempts))
	}
	if cfg.Research.MaxIterations < 1 {
		errors = append(errors, fmt.Errorf("research.max_iterations must be >= 1, got %d", cfg.Research.MaxIterations))
	}
	if cfg.Research.AttemptTimeout < 0 {
		errors = append(errors, fmt.Errorf("research.attempt_timeout must be >= 0"))
	}
	if cfg.Research.RetryBackoff < 0 {
		errors = append(errors, fmt.Errorf("research.retry_backoff must be >= 0"))
	}
	if cfg.Research.ToolTimeout < 0 {
		errors = append(errors, fmt.Errorf("research.tool_timeout must be >= 0"))
	}

	if err := v.ValidateBackend(cfg.Checkpoint.Backend); err != nil {
		errors = append(errors, err)
	}
	if cfg.Checkpoint.Backend == "redis" && cfg.Checkpoint.Redis.Addr == "" {
		errors = append(errors, fmt.Errorf("checkpoint.redis.addr is required for the redis backend"))
	}
	if cfg.Checkpoint.MaxSessions < 0 {
		errors = append(errors, fmt.Errorf("checkpoint.max_sessions must be >= 0"))
	}

	if err := v.ValidatePort(cfg.Server.Port); err != nil {
		errors = append(errors, err)
	}

	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}

	if cfg.Telemetry.SampleRatio < 0 || cfg.Telemetry.SampleRatio > 1 {
		errors = append(errors, fmt.Errorf("telemetry.sample_ratio must be between 0 and 1, got %f", cfg.Telemetry.SampleRatio))
	}

	return errors
}
