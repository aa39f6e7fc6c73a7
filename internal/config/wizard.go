package config

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Wizard provides an interactive configuration wizard
type Wizard struct {
	reader *bufio.Reader
	out    io.Writer
}

// NewWizard creates a new configuration wizard reading answers from in
func NewWizard(in io.Reader, out io.Writer) *Wizard {
	return &Wizard{
		reader: bufio.NewReader(in),
		out:    out,
	}
}

// Run runs the interactive configuration wizard
func (w *Wizard) Run() (*Config, error) {
	fmt.Fprintln(w.out, "=== IdeaScout Configuration Wizard ===")
	fmt.Fprintln(w.out)

	cfg := DefaultConfig()
	validator := NewValidator()

	// Provider
	for {
		provider, err := w.prompt("LLM provider (openai/anthropic)", cfg.LLM.Provider)
		if err != nil {
			return nil, err
		}
		if err := validator.ValidateProvider(provider); err != nil {
			fmt.Fprintf(w.out, "Error: %v\n", err)
			continue
		}
		cfg.LLM.Provider = provider
		break
	}
	if cfg.LLM.Provider == "anthropic" {
		cfg.LLM.Model = "claude-sonnet-4-5"
	}

	// Provider key
	for {
		key, err := w.prompt(fmt.Sprintf("%s API key", cfg.LLM.Provider), "")
		if err != nil {
			return nil, err
		}
		if err := validator.ValidateAPIKey(key, cfg.LLM.Provider); err != nil {
			fmt.Fprintf(w.out, "Error: %v\n", err)
			continue
		}
		cfg.LLM.APIKey = key
		break
	}

	model, err := w.prompt("Model name", cfg.LLM.Model)
	if err != nil {
		return nil, err
	}
	cfg.LLM.Model = model

	fmt.Fprintln(w.out)

	// Search key
	for {
		key, err := w.prompt("Tavily API key", "")
		if err != nil {
			return nil, err
		}
		if err := validator.ValidateAPIKey(key, "tavily"); err != nil {
			fmt.Fprintf(w.out, "Error: %v\n", err)
			continue
		}
		cfg.Search.APIKey = key
		break
	}

	fmt.Fprintln(w.out)

	// Research profile
	profile, err := w.prompt("Default research profile (market/competitors/opportunities)", cfg.Research.Profile)
	if err != nil {
		return nil, err
	}
	if err := validator.ValidateProfile(profile); err != nil {
		fmt.Fprintf(w.out, "Warning: %v, using default (%s)\n", err, cfg.Research.Profile)
	} else {
		cfg.Research.Profile = profile
	}

	// Log level
	level, err := w.prompt("Log level (debug/info/warn/error)", cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	if err := validator.ValidateLogLevel(level); err != nil {
		fmt.Fprintf(w.out, "Warning: %v, using default (%s)\n", err, cfg.Logging.Level)
	} else {
		cfg.Logging.Level = level
	}

	fmt.Fprintln(w.out)
	fmt.Fprintln(w.out, "Configuration complete!")

	return cfg, nil
}

func (w *Wizard) prompt(label, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(w.out, "%s [%s]: ", label, def)
	} else {
		fmt.Fprintf(w.out, "%s: ", label)
	}

	line, err := w.readLine()
	if err != nil {
		return "", err
	}
	if line == "" {
		return def, nil
	}
	return line, nil
}

func (w *Wizard) readLine() (string, error) {
	line, err := w.reader.ReadString('\n')
	if err != nil {
		if err == io.EOF && line != "" {
			return strings.TrimSpace(line), nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}
