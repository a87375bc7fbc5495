package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Config represents the main Aura configuration
type Config struct {
	// AI provider credentials, tried in priority order
	AI AIConfig `json:"ai" mapstructure:"ai"`

	// Agent completion settings
	Agent AgentConfig `json:"agent" mapstructure:"agent"`

	// Tools
	Tools ToolsConfig `json:"tools" mapstructure:"tools"`

	// Conversation memory
	Memory MemoryConfig `json:"memory" mapstructure:"memory"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// HTTP API server
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`
}

// AIConfig holds AI provider configuration
type AIConfig struct {
	Profiles []AIProfile `json:"profiles" mapstructure:"profiles"`
}

// AIProfile represents an AI provider profile
type AIProfile struct {
	ID       string `json:"id" mapstructure:"id"`
	Provider string `json:"provider" mapstructure:"provider"` // anthropic, openai
	APIKey   string `json:"api_key" mapstructure:"api_key"`
	BaseURL  string `json:"base_url,omitempty" mapstructure:"base_url"`
	// Model overrides agent.model for this profile.
	Model    string `json:"model,omitempty" mapstructure:"model"`
	Priority int    `json:"priority" mapstructure:"priority"`
}

// AgentConfig holds the completion parameters used for every exchange
type AgentConfig struct {
	Model        string  `json:"model" mapstructure:"model"`
	Temperature  float64 `json:"temperature" mapstructure:"temperature"`
	MaxTokens    int     `json:"max_tokens" mapstructure:"max_tokens"`
	MaxRetries   int     `json:"max_retries" mapstructure:"max_retries"`
	SystemPrompt string  `json:"system_prompt" mapstructure:"system_prompt"`
}

// ToolsConfig holds tool configuration
type ToolsConfig struct {
	// Workspace is the base directory for the default path roots.
	Workspace string `json:"workspace" mapstructure:"workspace"`
	// Roots overrides the derived root list when non-empty. The first entry is
	// where new files are created.
	Roots          []string         `json:"roots" mapstructure:"roots"`
	TimeoutSeconds int              `json:"timeout_seconds" mapstructure:"timeout_seconds"`
	Screenshot     ScreenshotConfig `json:"screenshot" mapstructure:"screenshot"`
}

// ScreenshotConfig configures the external capture command
type ScreenshotConfig struct {
	// Command is an argv; "{file}" is replaced by the output path.
	Command        []string `json:"command" mapstructure:"command"`
	TimeoutSeconds int      `json:"timeout_seconds" mapstructure:"timeout_seconds"`
	Dir            string   `json:"dir" mapstructure:"dir"`
}

// MemoryConfig holds conversation storage settings
type MemoryConfig struct {
	DBPath       string `json:"db_path" mapstructure:"db_path"`
	Conversation string `json:"conversation" mapstructure:"conversation"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	AuditFile string `json:"audit_file" mapstructure:"audit_file"`
	Console   bool   `json:"console" mapstructure:"console"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// ServerConfig holds HTTP API server configuration
type ServerConfig struct {
	Host            string `json:"host" mapstructure:"host"`
	Port            int    `json:"port" mapstructure:"port"`
	ShutdownTimeout int    `json:"shutdown_timeout" mapstructure:"shutdown_timeout"` // seconds

	// RateLimitPerMinute caps chat requests per client IP; 0 disables the limit.
	RateLimitPerMinute int `json:"rate_limit_per_minute" mapstructure:"rate_limit_per_minute"`
}

// Addr returns host:port for net/http.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ToolTimeout returns the per-call tool deadline.
func (t ToolsConfig) ToolTimeout() time.Duration {
	return time.Duration(t.TimeoutSeconds) * time.Second
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		AI: AIConfig{
			Profiles: []AIProfile{},
		},
		Agent: AgentConfig{
			Model:       "claude-3-5-sonnet-20241022",
			Temperature: 0.7,
			MaxTokens:   4096,
			MaxRetries:  3,
		},
		Tools: ToolsConfig{
			TimeoutSeconds: 30,
			Screenshot: ScreenshotConfig{
				TimeoutSeconds: 10,
			},
		},
		Memory: MemoryConfig{
			Conversation: "default_user",
		},
		Logging: LoggingConfig{
			Level:     "info",
			Console:   true,
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
		Server: ServerConfig{
			Host:               "127.0.0.1",
			Port:               3000,
			ShutdownTimeout:    10,
			RateLimitPerMinute: 60,
		},
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Require at least one AI profile
	if len(c.AI.Profiles) == 0 {
		return fmt.Errorf("no AI credentials configured: at least one AI profile is required")
	}

	seen := make(map[string]bool, len(c.AI.Profiles))
	for i, profile := range c.AI.Profiles {
		if profile.ID == "" {
			return fmt.Errorf("AI profile %d: ID is required", i)
		}
		if seen[profile.ID] {
			return fmt.Errorf("AI profile %s: duplicate ID", profile.ID)
		}
		seen[profile.ID] = true
		if profile.Provider == "" {
			return fmt.Errorf("AI profile %s: provider is required", profile.ID)
		}
		if profile.APIKey == "" {
			return fmt.Errorf("AI profile %s: api_key is required", profile.ID)
		}
		if profile.Provider != "anthropic" && profile.Provider != "openai" {
			return fmt.Errorf("AI profile %s: invalid provider %s (must be: anthropic, openai)", profile.ID, profile.Provider)
		}
	}

	if c.Agent.Model == "" {
		return fmt.Errorf("agent: model is required")
	}
	if c.Agent.MaxTokens <= 0 {
		return fmt.Errorf("agent: max_tokens must be positive")
	}
	if c.Agent.MaxRetries < 0 {
		return fmt.Errorf("agent: max_retries must be >= 0")
	}

	if c.Tools.TimeoutSeconds < 0 {
		return fmt.Errorf("tools: timeout_seconds must be >= 0")
	}
	if c.Tools.Screenshot.TimeoutSeconds < 0 {
		return fmt.Errorf("tools.screenshot: timeout_seconds must be >= 0")
	}

	if c.Memory.Conversation == "" {
		return fmt.Errorf("memory: conversation is required")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server: invalid port %d", c.Server.Port)
	}
	if c.Server.RateLimitPerMinute < 0 {
		return fmt.Errorf("server: rate_limit_per_minute must be >= 0")
	}

	return nil
}
