package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/harun/ideascout/internal/config"
	"github.com/harun/ideascout/internal/logger"
	"github.com/harun/ideascout/internal/tracing"
	"github.com/harun/ideascout/pkg/checkpoint"
	"github.com/harun/ideascout/pkg/llm"
	"github.com/harun/ideascout/pkg/research"
	"github.com/harun/ideascout/pkg/search"
	"github.com/harun/ideascout/pkg/toolexecutor"
)

// app holds the wired components shared by serve and research
type app struct {
	cfg          *config.Config
	log          *logger.Logger
	store        checkpoint.Store
	orchestrator *research.Orchestrator
	telemetry    bool
}

// loadConfig reads the config file and environment, applying the --log-level flag when set
func loadConfig() (*config.Config, error) {
	cfg, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		return nil, err
	}
	if rootCmd.PersistentFlags().Changed("log-level") {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	log, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   true,
		Pretty:    cfg.Logging.Pretty,
		Redaction: cfg.Logging.Redaction,
		Output:    os.Stderr,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	a := &app{cfg: cfg, log: log}

	if cfg.Telemetry.Enabled {
		if err := tracing.InitOpenTelemetry(tracing.ProviderConfig{
			ServiceName:    cfg.Telemetry.ServiceName,
			ServiceVersion: GetVersion(),
			Environment:    cfg.Telemetry.Environment,
			SampleRatio:    cfg.Telemetry.SampleRatio,
		}); err != nil {
			_ = log.Close()
			return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		a.telemetry = true
	}

	noRetries := 0
	provider, err := llm.NewProvider(llm.Config{
		Provider:   cfg.LLM.Provider,
		APIKey:     cfg.LLM.APIKey,
		BaseURL:    cfg.LLM.BaseURL,
		MaxRetries: &noRetries,
	})
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}

	executor := toolexecutor.New(toolexecutor.Config{
		Timeout: cfg.Research.ToolTimeout,
		Logger:  log.Component("toolexecutor"),
	})
	tavily := search.NewTavily(search.TavilyConfig{
		APIKey:     cfg.Search.APIKey,
		Depth:      cfg.Search.Depth,
		BaseURL:    cfg.Search.BaseURL,
		HTTPClient: &http.Client{Timeout: cfg.Search.Timeout},
	})
	if err := executor.RegisterTool(search.NewTool(tavily, cfg.Search.MaxResults, log.Component("search"))); err != nil {
		_ = a.Close(ctx)
		return nil, fmt.Errorf("failed to register search tool: %w", err)
	}

	a.store, err = checkpoint.Open(ctx, checkpoint.Config{
		Backend:     cfg.Checkpoint.Backend,
		DSN:         cfg.Checkpoint.DSN,
		MaxSessions: cfg.Checkpoint.MaxSessions,
		Redis: checkpoint.RedisConfig{
			Addr:     cfg.Checkpoint.Redis.Addr,
			Password: cfg.Checkpoint.Redis.Password,
			DB:       cfg.Checkpoint.Redis.DB,
			Prefix:   cfg.Checkpoint.Redis.Prefix,
			TTL:      cfg.Checkpoint.Redis.TTL,
		},
		Logger: log.Component("checkpoint"),
	})
	if err != nil {
		_ = a.Close(ctx)
		return nil, fmt.Errorf("failed to open checkpoint store: %w", err)
	}

	profile, err := research.ProfileByName(cfg.Research.Profile)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}

	a.orchestrator, err = research.New(research.Config{
		Provider:       provider,
		Tools:          executor,
		Store:          a.store,
		Profile:        profile,
		Model:          cfg.LLM.Model,
		Temperature:    cfg.LLM.Temperature,
		MaxTokens:      cfg.LLM.MaxTokens,
		MaxAttempts:    cfg.Research.MaxAttempts,
		MaxIterations:  cfg.Research.MaxIterations,
		AttemptTimeout: cfg.Research.AttemptTimeout,
		RetryBackoff:   cfg.Research.RetryBackoff,
		Logger:         log.Component("research"),
	})
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}

	return a, nil
}

// Close releases the store, flushes telemetry and closes the log file
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.telemetry {
		errs = append(errs, tracing.ShutdownOpenTelemetry(ctx))
	}
	errs = append(errs, a.log.Close())
	return errors.Join(errs...)
}
