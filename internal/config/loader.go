package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	defaultDirName  = ".aura"
	defaultFileName = "aura.json"
	envPrefix       = "AURA"
)

// envKeys are the scalar settings that can be overridden with AURA_* variables,
// e.g. AURA_AGENT_MODEL or AURA_SERVER_PORT.
var envKeys = []string{
	"data_dir",
	"agent.model",
	"agent.temperature",
	"agent.max_tokens",
	"agent.max_retries",
	"agent.system_prompt",
	"tools.workspace",
	"tools.timeout_seconds",
	"memory.db_path",
	"memory.conversation",
	"logging.level",
	"logging.file",
	"logging.audit_file",
	"server.host",
	"server.port",
}

// Loader handles configuration loading
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// Load reads the config file when present, applies AURA_* overrides and fills
// derived paths. A missing file yields the defaults.
func (l *Loader) Load() (*Config, error) {
	configPath, err := l.resolvePath()
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	if _, err := os.Stat(configPath); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := applyDerived(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDerived fills the paths that depend on data_dir and the process
// environment.
func applyDerived(cfg *Config) error {
	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		cfg.DataDir = filepath.Join(home, defaultDirName)
	}

	if cfg.Memory.DBPath == "" {
		cfg.Memory.DBPath = filepath.Join(cfg.DataDir, "aura.db")
	}

	if cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join(cfg.DataDir, "aura.log")
	}

	if cfg.Logging.AuditFile == "" {
		cfg.Logging.AuditFile = filepath.Join(cfg.DataDir, "audit.log")
	}

	if cfg.Tools.Workspace == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get working directory: %w", err)
		}
		cfg.Tools.Workspace = wd
	}

	if len(cfg.AI.Profiles) == 0 {
		cfg.AI.Profiles = profilesFromEnv()
	}

	return nil
}

// profilesFromEnv builds profiles from the providers' conventional key
// variables when the config file declares none.
func profilesFromEnv() []AIProfile {
	profiles := []AIProfile{}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		profiles = append(profiles, AIProfile{ID: "anthropic-env", Provider: "anthropic", APIKey: key, Priority: 1})
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		profiles = append(profiles, AIProfile{ID: "openai-env", Provider: "openai", APIKey: key, Priority: 2})
	}
	return profiles
}

// Save saves the configuration to file
func (l *Loader) Save(cfg *Config) error {
	configPath, err := l.resolvePath()
	if err != nil {
		return err
	}

	// Ensure directory exists
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	v.Set("ai", cfg.AI)
	v.Set("agent", cfg.Agent)
	v.Set("tools", cfg.Tools)
	v.Set("memory", cfg.Memory)
	v.Set("logging", cfg.Logging)
	v.Set("server", cfg.Server)
	v.Set("data_dir", cfg.DataDir)

	if err := v.WriteConfig(); err != nil {
		// If file doesn't exist, create it
		if os.IsNotExist(err) {
			if err := v.SafeWriteConfig(); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}
		} else {
			return fmt.Errorf("failed to write config file: %w", err)
		}
	}

	return nil
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	path, err := l.resolvePath()
	if err != nil {
		return ""
	}
	return path
}

func (l *Loader) resolvePath() (string, error) {
	if l.configPath != "" {
		return l.configPath, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, defaultDirName, defaultFileName), nil
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	loader := NewLoader(configPath)
	return loader.Load()
}
