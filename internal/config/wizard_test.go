package config

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWizardRun(t *testing.T) {
	t.Run("collects answers", func(t *testing.T) {
		answers := strings.Join([]string{
			"bad-key",       // rejected anthropic key
			"sk-ant-wizard", // accepted
			"",              // skip openai
			"gpt-4o",
			"/tmp/work",
			"8088",
			"debug",
		}, "\n") + "\n"
		var out bytes.Buffer

		cfg, err := NewWizardWithIO(strings.NewReader(answers), &out).Run(nil)
		require.NoError(t, err)

		require.Len(t, cfg.AI.Profiles, 1)
		assert.Equal(t, AIProfile{ID: "anthropic-default", Provider: "anthropic", APIKey: "sk-ant-wizard", Priority: 1}, cfg.AI.Profiles[0])
		assert.Equal(t, "gpt-4o", cfg.Agent.Model)
		assert.Equal(t, "/tmp/work", cfg.Tools.Workspace)
		assert.Equal(t, 8088, cfg.Server.Port)
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.Contains(t, out.String(), "invalid Anthropic API key format")
		assert.NoError(t, cfg.Validate())
	})

	t.Run("invalid optional answers keep defaults", func(t *testing.T) {
		answers := "\nsk-openai\n\n\nnot-a-port\nloud\n"
		var out bytes.Buffer

		cfg, err := NewWizardWithIO(strings.NewReader(answers), &out).Run(nil)
		require.NoError(t, err)

		require.Len(t, cfg.AI.Profiles, 1)
		assert.Equal(t, "openai", cfg.AI.Profiles[0].Provider)
		assert.Equal(t, 3000, cfg.Server.Port)
		assert.Equal(t, "info", cfg.Logging.Level)
		assert.Contains(t, out.String(), "Warning")
	})

	t.Run("requires a key", func(t *testing.T) {
		_, err := NewWizardWithIO(strings.NewReader("\n\n"), &bytes.Buffer{}).Run(nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "at least one API key")
	})
}
