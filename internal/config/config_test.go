package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.AI.Profiles = []AIProfile{
		{ID: "primary", Provider: "anthropic", APIKey: "sk-ant-test123", Priority: 1},
	}
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.NotNil(t, cfg)
	assert.Equal(t, "claude-3-5-sonnet-20241022", cfg.Agent.Model)
	assert.Equal(t, 0.7, cfg.Agent.Temperature)
	assert.Equal(t, 4096, cfg.Agent.MaxTokens)
	assert.Equal(t, 3, cfg.Agent.MaxRetries)
	assert.Equal(t, "default_user", cfg.Memory.Conversation)
	assert.Equal(t, 30, cfg.Tools.TimeoutSeconds)
	assert.Equal(t, 10, cfg.Tools.Screenshot.TimeoutSeconds)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Redaction)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Empty(t, cfg.AI.Profiles)
}

func TestConfigHelpers(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "127.0.0.1:3000", cfg.Server.Addr())
	assert.Equal(t, 30*time.Second, cfg.Tools.ToolTimeout())
	assert.Contains(t, cfg.String(), `"conversation": "default_user"`)
}

func TestConfigValidate(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		assert.NoError(t, validConfig().Validate())
	})

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"missing profiles", func(c *Config) { c.AI.Profiles = nil }, "no AI credentials"},
		{"missing profile id", func(c *Config) { c.AI.Profiles[0].ID = "" }, "ID is required"},
		{"duplicate profile id", func(c *Config) {
			c.AI.Profiles = append(c.AI.Profiles, AIProfile{ID: "primary", Provider: "openai", APIKey: "sk-x"})
		}, "duplicate ID"},
		{"missing provider", func(c *Config) { c.AI.Profiles[0].Provider = "" }, "provider is required"},
		{"missing api key", func(c *Config) { c.AI.Profiles[0].APIKey = "" }, "api_key is required"},
		{"unknown provider", func(c *Config) { c.AI.Profiles[0].Provider = "gemini" }, "invalid provider gemini"},
		{"missing model", func(c *Config) { c.Agent.Model = "" }, "model is required"},
		{"zero max tokens", func(c *Config) { c.Agent.MaxTokens = 0 }, "max_tokens"},
		{"negative retries", func(c *Config) { c.Agent.MaxRetries = -1 }, "max_retries"},
		{"negative tool timeout", func(c *Config) { c.Tools.TimeoutSeconds = -1 }, "timeout_seconds"},
		{"negative screenshot timeout", func(c *Config) { c.Tools.Screenshot.TimeoutSeconds = -5 }, "tools.screenshot"},
		{"empty conversation", func(c *Config) { c.Memory.Conversation = "" }, "conversation is required"},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }, "invalid port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
