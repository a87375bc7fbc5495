package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/harun/aura/internal/config"
	"github.com/harun/aura/internal/daemon"
	"github.com/harun/aura/pkg/agent"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	reply string
	err   error
}

func (p *stubProvider) Call(context.Context, agent.LLMRequest) (*agent.LLMResponse, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &agent.LLMResponse{Content: p.reply}, nil
}

func (p *stubProvider) Provider() string {
	return "stub"
}

type stubFactory struct {
	provider *stubProvider
}

func (f *stubFactory) NewProvider(agent.AuthProfile) (agent.LLMProvider, error) {
	return f.provider, nil
}

// useStubProvider makes every daemon built by the CLI answer with reply.
func useStubProvider(t *testing.T, reply string) {
	t.Helper()
	previous := daemonOptions
	daemonOptions = []daemon.Option{daemon.WithProviderFactory(&stubFactory{provider: &stubProvider{reply: reply}})}
	t.Cleanup(func() { daemonOptions = previous })
}

// useFailingProvider makes every provider call fail with err.
func useFailingProvider(t *testing.T, err error) {
	t.Helper()
	previous := daemonOptions
	daemonOptions = []daemon.Option{daemon.WithProviderFactory(&stubFactory{provider: &stubProvider{err: err}})}
	t.Cleanup(func() { daemonOptions = previous })
}

// writeTestConfig writes a config with one profile below a temp data dir and
// returns its path and the tools workspace.
func writeTestConfig(t *testing.T, withProfile bool) (string, string) {
	t.Helper()
	dir := t.TempDir()
	workspace := filepath.Join(dir, "workspace")
	require.NoError(t, os.MkdirAll(workspace, 0755))

	cfg := config.DefaultConfig()
	cfg.DataDir = filepath.Join(dir, "data")
	cfg.Tools.Workspace = workspace
	cfg.Logging.Console = false
	if withProfile {
		cfg.AI.Profiles = []config.AIProfile{{ID: "test", Provider: "anthropic", APIKey: "sk-ant-test", Priority: 1}}
	}

	data, err := json.Marshal(cfg)
	require.NoError(t, err)
	path := filepath.Join(dir, "aura.json")
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path, workspace
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, child := range cmd.Commands() {
		resetFlags(child)
	}
}

// execute runs the root command with args and stdin, returning stdout.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	cmd := GetRootCmd()
	resetFlags(cmd)
	t.Cleanup(func() { resetFlags(cmd) })

	output := &bytes.Buffer{}
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(output)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)

	err := cmd.Execute()
	return output.String(), err
}
