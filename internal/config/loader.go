package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "IDEASCOUT"

// wellKnownEnv maps config keys to the provider variables users already export.
var wellKnownEnv = map[string][]string{
	"llm.api_key":    {"OPENAI_API_KEY"},
	"search.api_key": {"TAVILY_API_KEY"},
}

// Loader handles configuration loading
type Loader struct {
	configPath string
	envFile    string
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
		envFile:    ".env",
	}
}

// WithEnvFile overrides the dotenv file read before environment binding; empty disables it
func (l *Loader) WithEnvFile(path string) *Loader {
	l.envFile = path
	return l
}

// Load resolves the configuration from defaults, the config file, the dotenv file and the environment
func (l *Loader) Load() (*Config, error) {
	if l.envFile != "" {
		if err := godotenv.Load(l.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", l.envFile, err)
		}
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, names := range wellKnownEnv {
		if err := v.BindEnv(append([]string{key, envKey(key)}, names...)...); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	configPath := l.GetConfigPath()
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// An anthropic provider reads its own key variable unless one was set explicitly.
	if cfg.LLM.Provider == "anthropic" && os.Getenv(envKey("llm.api_key")) == "" && !v.InConfig("llm.api_key") {
		if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
			cfg.LLM.APIKey = key
		}
	}

	return cfg, nil
}

// Save saves the configuration to file
func (l *Loader) Save(cfg *Config) error {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return fmt.Errorf("failed to resolve config path")
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)

	v.Set("llm", cfg.LLM)
	v.Set("search", cfg.Search)
	v.Set("research", cfg.Research)
	v.Set("checkpoint", cfg.Checkpoint)
	v.Set("server", cfg.Server)
	v.Set("logging", cfg.Logging)
	v.Set("telemetry", cfg.Telemetry)

	if err := v.WriteConfigAs(configPath); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".ideascout", "config.json")
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	return NewLoader(configPath).Load()
}

func envKey(key string) string {
	return envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// setDefaults registers every key so AutomaticEnv can override it during Unmarshal.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("llm.provider", cfg.LLM.Provider)
	v.SetDefault("llm.model", cfg.LLM.Model)
	v.SetDefault("llm.api_key", cfg.LLM.APIKey)
	v.SetDefault("llm.base_url", cfg.LLM.BaseURL)
	v.SetDefault("llm.temperature", cfg.LLM.Temperature)
	v.SetDefault("llm.max_tokens", cfg.LLM.MaxTokens)

	v.SetDefault("search.api_key", cfg.Search.APIKey)
	v.SetDefault("search.base_url", cfg.Search.BaseURL)
	v.SetDefault("search.max_results", cfg.Search.MaxResults)
	v.SetDefault("search.depth", cfg.Search.Depth)
	v.SetDefault("search.timeout", cfg.Search.Timeout)

	v.SetDefault("research.profile", cfg.Research.Profile)
	v.SetDefault("research.max_attempts", cfg.Research.MaxAttempts)
	v.SetDefault("research.max_iterations", cfg.Research.MaxIterations)
	v.SetDefault("research.attempt_timeout", cfg.Research.AttemptTimeout)
	v.SetDefault("research.retry_backoff", cfg.Research.RetryBackoff)
	v.SetDefault("research.tool_timeout", cfg.Research.ToolTimeout)

	v.SetDefault("checkpoint.backend", cfg.Checkpoint.Backend)
	v.SetDefault("checkpoint.dsn", cfg.Checkpoint.DSN)
	v.SetDefault("checkpoint.max_sessions", cfg.Checkpoint.MaxSessions)
	v.SetDefault("checkpoint.redis.addr", cfg.Checkpoint.Redis.Addr)
	v.SetDefault("checkpoint.redis.password", cfg.Checkpoint.Redis.Password)
	v.SetDefault("checkpoint.redis.db", cfg.Checkpoint.Redis.DB)
	v.SetDefault("checkpoint.redis.prefix", cfg.Checkpoint.Redis.Prefix)
	v.SetDefault("checkpoint.redis.ttl", cfg.Checkpoint.Redis.TTL)

	v.SetDefault("server.host", cfg.Server.Host)
	v.SetDefault("server.port", cfg.Server.Port)
	v.SetDefault("server.allow_origins", cfg.Server.AllowOrigins)
	v.SetDefault("server.shutdown_timeout", cfg.Server.ShutdownTimeout)
	v.SetDefault("server.requests_per_minute", cfg.Server.RequestsPerMinute)
	v.SetDefault("server.max_concurrent", cfg.Server.MaxConcurrent)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.pretty", cfg.Logging.Pretty)
	v.SetDefault("logging.redaction", cfg.Logging.Redaction)

	v.SetDefault("telemetry.enabled", cfg.Telemetry.Enabled)
	v.SetDefault("telemetry.service_name", cfg.Telemetry.ServiceName)
	v.SetDefault("telemetry.environment", cfg.Telemetry.Environment)
	v.SetDefault("telemetry.sample_ratio", cfg.Telemetry.SampleRatio)
}
