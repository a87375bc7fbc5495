package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Wizard provides interactive configuration setup
type Wizard struct {
	reader    *bufio.Reader
	out       io.Writer
	validator *Validator
}

// NewWizard creates a new configuration wizard on stdin/stdout
func NewWizard() *Wizard {
	return NewWizardWithIO(os.Stdin, os.Stdout)
}

// NewWizardWithIO creates a wizard reading answers from in and prompting on out.
func NewWizardWithIO(in io.Reader, out io.Writer) *Wizard {
	return &Wizard{
		reader:    bufio.NewReader(in),
		out:       out,
		validator: NewValidator(),
	}
}

// Run runs the interactive configuration wizard, starting from base.
func (w *Wizard) Run(base *Config) (*Config, error) {
	cfg := base
	if cfg == nil {
		cfg = DefaultConfig()
	}

	fmt.Fprintln(w.out, "Welcome to Aura Configuration Wizard")
	fmt.Fprintln(w.out, "====================================")
	fmt.Fprintln(w.out)
	fmt.Fprintln(w.out, "API Keys:")

	profiles := []AIProfile{}
	priority := 1
	for _, provider := range []string{"anthropic", "openai"} {
		key, err := w.askAPIKey(provider)
		if err != nil {
			return nil, err
		}
		if key == "" {
			continue
		}
		profiles = append(profiles, AIProfile{
			ID:       provider + "-default",
			Provider: provider,
			APIKey:   key,
			Priority: priority,
		})
		priority++
	}

	if len(profiles) == 0 {
		return nil, fmt.Errorf("at least one API key is required")
	}
	cfg.AI.Profiles = profiles

	fmt.Fprintln(w.out)

	model, err := w.ask(fmt.Sprintf("Model name [%s]: ", cfg.Agent.Model))
	if err != nil {
		return nil, err
	}
	if model != "" {
		if err := w.validator.ValidateModel(model); err != nil {
			fmt.Fprintf(w.out, "Warning: %v, keeping %s\n", err, cfg.Agent.Model)
		} else {
			cfg.Agent.Model = model
		}
	}

	workspace, err := w.ask("Workspace directory for file tools (press Enter for current directory): ")
	if err != nil {
		return nil, err
	}
	if workspace != "" {
		cfg.Tools.Workspace = workspace
	}

	port, err := w.ask(fmt.Sprintf("HTTP server port [%d]: ", cfg.Server.Port))
	if err != nil {
		return nil, err
	}
	if port != "" {
		n, convErr := strconv.Atoi(port)
		if convErr == nil {
			convErr = w.validator.ValidatePort(n)
		}
		if convErr != nil {
			fmt.Fprintf(w.out, "Warning: %v, using default (%d)\n", convErr, cfg.Server.Port)
		} else {
			cfg.Server.Port = n
		}
	}

	level, err := w.ask("Log level (debug/info/warn/error) [info]: ")
	if err != nil {
		return nil, err
	}
	if level != "" {
		if err := w.validator.ValidateLogLevel(level); err != nil {
			fmt.Fprintf(w.out, "Warning: %v, using default (info)\n", err)
		} else {
			cfg.Logging.Level = level
		}
	}

	fmt.Fprintln(w.out)
	fmt.Fprintln(w.out, "Configuration complete!")

	return cfg, nil
}

func (w *Wizard) askAPIKey(provider string) (string, error) {
	for {
		key, err := w.ask(fmt.Sprintf("%s API Key (press Enter to skip): ", strings.ToUpper(provider[:1])+provider[1:]))
		if err != nil {
			return "", err
		}
		if key == "" {
			return "", nil
		}
		if err := w.validator.ValidateAPIKey(key, provider); err != nil {
			fmt.Fprintf(w.out, "Error: %v\n", err)
			continue
		}
		return key, nil
	}
}

func (w *Wizard) ask(prompt string) (string, error) {
	fmt.Fprint(w.out, prompt)
	line, err := w.reader.ReadString('\n')
	if err != nil {
		if err == io.EOF && line != "" {
			return strings.TrimSpace(line), nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}
