package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Config represents the main IdeaScout configuration
type Config struct {
	// Language model provider
	LLM LLMConfig `json:"llm" mapstructure:"llm"`

	// Web search tool
	Search SearchConfig `json:"search" mapstructure:"search"`

	// Research loop bounds
	Research ResearchConfig `json:"research" mapstructure:"research"`

	// Session checkpoint store
	Checkpoint CheckpointConfig `json:"checkpoint" mapstructure:"checkpoint"`

	// HTTP gateway
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Tracing
	Telemetry TelemetryConfig `json:"telemetry" mapstructure:"telemetry"`
}

// LLMConfig holds language model provider configuration
type LLMConfig struct {
	Provider    string  `json:"provider" mapstructure:"provider"` // openai, anthropic
	Model       string  `json:"model" mapstructure:"model"`
	APIKey      string  `json:"api_key" mapstructure:"api_key"`
	BaseURL     string  `json:"base_url" mapstructure:"base_url"`
	Temperature float64 `json:"temperature" mapstructure:"temperature"`
	MaxTokens   int     `json:"max_tokens" mapstructure:"max_tokens"`
}

// SearchConfig holds Tavily search configuration
type SearchConfig struct {
	APIKey     string        `json:"api_key" mapstructure:"api_key"`
	BaseURL    string        `json:"base_url" mapstructure:"base_url"`
	MaxResults int           `json:"max_results" mapstructure:"max_results"`
	Depth      string        `json:"depth" mapstructure:"depth"` // basic, advanced
	Timeout    time.Duration `json:"timeout" mapstructure:"timeout"`
}

// ResearchConfig bounds a single research request
type ResearchConfig struct {
	Profile        string        `json:"profile" mapstructure:"profile"` // market, competitors, opportunities
	MaxAttempts    int           `json:"max_attempts" mapstructure:"max_attempts"`
	MaxIterations  int           `json:"max_iterations" mapstructure:"max_iterations"`
	AttemptTimeout time.Duration `json:"attempt_timeout" mapstructure:"attempt_timeout"`
	RetryBackoff   time.Duration `json:"retry_backoff" mapstructure:"retry_backoff"`
	ToolTimeout    time.Duration `json:"tool_timeout" mapstructure:"tool_timeout"`
}

// CheckpointConfig selects and configures the checkpoint backend
type CheckpointConfig struct {
	Backend string `json:"backend" mapstructure:"backend"` // memory, sqlite, redis
	DSN     string `json:"dsn" mapstructure:"dsn"`         // sqlite only

	// Sessions retained by memory and sqlite; zero keeps all
	MaxSessions int         `json:"max_sessions" mapstructure:"max_sessions"`
	Redis       RedisConfig `json:"redis" mapstructure:"redis"`
}

// RedisConfig holds Redis connection settings for the checkpoint store
type RedisConfig struct {
	Addr     string        `json:"addr" mapstructure:"addr"`
	Password string        `json:"password" mapstructure:"password"`
	DB       int           `json:"db" mapstructure:"db"`
	Prefix   string        `json:"prefix" mapstructure:"prefix"`
	TTL      time.Duration `json:"ttl" mapstructure:"ttl"`
}

// ServerConfig holds gateway server configuration
type ServerConfig struct {
	Host            string        `json:"host" mapstructure:"host"`
	Port            int           `json:"port" mapstructure:"port"`
	AllowOrigins    []string      `json:"allow_origins" mapstructure:"allow_origins"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" mapstructure:"shutdown_timeout"`

	// Per client IP; zero disables the limit
	RequestsPerMinute int `json:"requests_per_minute" mapstructure:"requests_per_minute"`
	MaxConcurrent     int `json:"max_concurrent" mapstructure:"max_concurrent"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// TelemetryConfig holds OpenTelemetry settings
type TelemetryConfig struct {
	Enabled     bool    `json:"enabled" mapstructure:"enabled"`
	ServiceName string  `json:"service_name" mapstructure:"service_name"`
	Environment string  `json:"environment" mapstructure:"environment"`
	SampleRatio float64 `json:"sample_ratio" mapstructure:"sample_ratio"`
}

// Addr returns the host:port the gateway listens on
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:    "openai",
			Model:       "gpt-4o",
			Temperature: 0,
			MaxTokens:   4096,
		},
		Search: SearchConfig{
			MaxResults: 4,
			Depth:      "basic",
			Timeout:    30 * time.Second,
		},
		Research: ResearchConfig{
			Profile:        "market",
			MaxAttempts:    3,
			MaxIterations:  8,
			AttemptTimeout: 2 * time.Minute,
			RetryBackoff:   500 * time.Millisecond,
			ToolTimeout:    30 * time.Second,
		},
		Checkpoint: CheckpointConfig{
			Backend:     "memory",
			DSN:         ":memory:",
			MaxSessions: 1000,
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "ideascout:checkpoint",
				TTL:    24 * time.Hour,
			},
		},
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              8000,
			AllowOrigins:      []string{"*"},
			ShutdownTimeout:   10 * time.Second,
			RequestsPerMinute: 30,
			MaxConcurrent:     4,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Pretty:    true,
			Redaction: true,
		},
		Telemetry: TelemetryConfig{
			Enabled:     false,
			ServiceName: "ideascout",
			Environment: "development",
			SampleRatio: 1.0,
		},
	}
}

// String returns a JSON representation of the config with secrets masked
func (c *Config) String() string {
	masked := *c
	masked.LLM.APIKey = mask(c.LLM.APIKey)
	masked.Search.APIKey = mask(c.Search.APIKey)
	masked.Checkpoint.Redis.Password = mask(c.Checkpoint.Redis.Password)
	data, _ := json.MarshalIndent(masked, "", "  ")
	return string(data)
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "***"
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	v := NewValidator()

	if err := v.ValidateProvider(c.LLM.Provider); err != nil {
		return err
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm.model is required")
	}
	if c.LLM.APIKey == "" {
		return fmt.Errorf("no %s API key configured: set llm.api_key or the provider environment variable", c.LLM.Provider)
	}
	// Compatible endpoints issue their own key formats.
	if c.LLM.BaseURL == "" {
		if err := v.ValidateAPIKey(c.LLM.APIKey, c.LLM.Provider); err != nil {
			return err
		}
	}
	if c.Search.APIKey == "" {
		return fmt.Errorf("no search API key configured: set search.api_key or TAVILY_API_KEY")
	}

	return errors.Join(v.ValidateConfig(c)...)
}
