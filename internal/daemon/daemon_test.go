package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/harun/aura/internal/config"
	"github.com/harun/aura/internal/logger"
	"github.com/harun/aura/pkg/agent"
	"github.com/harun/aura/pkg/toolspec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	reply string
}

func (p *stubProvider) Call(context.Context, agent.LLMRequest) (*agent.LLMResponse, error) {
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

func freePort(t *testing.T) int {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())
	return port
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	tmpDir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.DataDir = tmpDir
	cfg.AI.Profiles = []config.AIProfile{{ID: "test", Provider: "anthropic", APIKey: "sk-ant-test", Priority: 1}}
	cfg.Tools.Workspace = filepath.Join(tmpDir, "workspace")
	cfg.Memory.DBPath = filepath.Join(tmpDir, "aura.db")
	cfg.Logging.AuditFile = filepath.Join(tmpDir, "audit.log")
	cfg.Server.Port = freePort(t)
	cfg.Server.ShutdownTimeout = 1
	require.NoError(t, os.MkdirAll(cfg.Tools.Workspace, 0755))
	return cfg
}

// createTestDaemon creates a daemon backed by a stub provider
func createTestDaemon(t *testing.T) *Daemon {
	t.Helper()

	log, err := logger.New(logger.Config{Level: "info", Console: false})
	require.NoError(t, err)
	t.Cleanup(func() { _ = log.Close() })

	daemon, err := New(testConfig(t), log, WithProviderFactory(&stubFactory{provider: &stubProvider{reply: "hello there"}}))
	require.NoError(t, err)
	t.Cleanup(daemon.Close)

	return daemon
}

func waitHealthy(t *testing.T, daemon *Daemon) {
	t.Helper()
	url := fmt.Sprintf("http://%s/health", daemon.GetConfig().Server.Addr())
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var body map[string]interface{}
		if json.NewDecoder(resp.Body).Decode(&body) != nil {
			return false
		}
		return resp.StatusCode == http.StatusOK && body["status"] == "ok"
	}, 5*time.Second, 50*time.Millisecond)
}

func TestNew(t *testing.T) {
	daemon := createTestDaemon(t)

	assert.NotNil(t, daemon.dispatcher)
	assert.NotNil(t, daemon.store)
	assert.NotNil(t, daemon.runner)
	assert.NotNil(t, daemon.apiServer)
	assert.NotNil(t, daemon.lifecycle)
	assert.Contains(t, daemon.dispatcher.Names(), toolspec.ReadFile.String())
}

func TestNew_RequiresProfiles(t *testing.T) {
	log, err := logger.New(logger.Config{Level: "info"})
	require.NoError(t, err)
	defer log.Close()

	cfg := testConfig(t)
	cfg.AI.Profiles = nil

	_, err = New(cfg, log)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth profile")
}

func TestNew_RequiresConfigAndLogger(t *testing.T) {
	_, err := New(nil, nil)
	assert.Error(t, err)

	_, err = New(testConfig(t), nil)
	assert.Error(t, err)
}

func TestConvertAuthProfiles(t *testing.T) {
	profiles := convertAuthProfiles([]config.AIProfile{
		{ID: "a", Provider: "openai", APIKey: "sk-x", BaseURL: "http://localhost:8080/v1", Model: "gpt-4o-mini", Priority: 2},
	})

	require.Len(t, profiles, 1)
	assert.Equal(t, "a", profiles[0].ID)
	assert.Equal(t, "openai", profiles[0].Provider)
	assert.Equal(t, "http://localhost:8080/v1", profiles[0].BaseURL)
	assert.Equal(t, "gpt-4o-mini", profiles[0].Model)
	assert.Equal(t, 2, profiles[0].Priority)
}

func TestDaemon_RunnerWiring(t *testing.T) {
	daemon := createTestDaemon(t)
	ctx := context.Background()

	result, err := daemon.GetRunner().HandleUserMessage(ctx, "hi")
	require.NoError(t, err)
	assert.Equal(t, "hello there", result.Reply)

	history, err := daemon.GetRunner().History(ctx)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "hi", history[0].Content)

	envelope := daemon.GetRunner().ExecuteTool(ctx, toolspec.CreateFile.String(), map[string]interface{}{
		"path":    "notes.txt",
		"content": "x",
	})
	require.True(t, envelope.Success, envelope.Error)

	data, err := os.ReadFile(filepath.Join(daemon.GetConfig().Tools.Workspace, "notes.txt"))
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))
}

func TestDaemonStartStop(t *testing.T) {
	daemon := createTestDaemon(t)

	err := daemon.Start()
	require.NoError(t, err)

	assert.True(t, daemon.Status().Running)
	assert.Error(t, daemon.Start())

	_, err = os.Stat(daemon.GetLifecycle().PIDFile())
	require.NoError(t, err)

	waitHealthy(t, daemon)

	resp, err := http.Post(
		fmt.Sprintf("http://%s/api/chat", daemon.GetConfig().Server.Addr()),
		"application/json",
		strings.NewReader(`{"message":"hi"}`),
	)
	require.NoError(t, err)
	var chat map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&chat))
	resp.Body.Close()
	assert.Equal(t, "hello there", chat["message"])

	err = daemon.Stop()
	require.NoError(t, err)

	assert.False(t, daemon.Status().Running)
	assert.Error(t, daemon.Stop())

	_, err = os.Stat(daemon.GetLifecycle().PIDFile())
	assert.True(t, os.IsNotExist(err))
}

func TestDaemonStatus(t *testing.T) {
	daemon := createTestDaemon(t)

	status := daemon.Status()
	assert.False(t, status.Running)
	assert.Equal(t, time.Duration(0), status.Uptime)

	require.NoError(t, daemon.Start())
	defer daemon.Stop()
	waitHealthy(t, daemon)

	status = daemon.Status()
	assert.True(t, status.Running)
	assert.Greater(t, status.Uptime, time.Duration(0))
	assert.False(t, status.StartTime.IsZero())
}

func TestDaemonWaitForSignal(t *testing.T) {
	daemon := createTestDaemon(t)
	require.NoError(t, daemon.Start())
	waitHealthy(t, daemon)

	sigChan := make(chan os.Signal, 1)
	sigChan <- syscall.SIGTERM

	err := daemon.waitFor(sigChan)
	assert.NoError(t, err)
	assert.False(t, daemon.Status().Running)
}

func TestDaemonWaitForServeError(t *testing.T) {
	daemon := createTestDaemon(t)

	// Occupy the port so ListenAndServe fails.
	listener, err := net.Listen("tcp", daemon.GetConfig().Server.Addr())
	require.NoError(t, err)
	defer listener.Close()

	require.NoError(t, daemon.Start())

	err = daemon.waitFor(make(chan os.Signal))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start API server")
	assert.False(t, daemon.Status().Running)
}

func TestDaemonGetters(t *testing.T) {
	daemon := createTestDaemon(t)

	assert.NotNil(t, daemon.GetConfig())
	assert.NotNil(t, daemon.GetLogger())
	assert.NotNil(t, daemon.GetRunner())
	assert.NotNil(t, daemon.GetDispatcher())
	assert.NotNil(t, daemon.GetServer())
	assert.NotNil(t, daemon.GetLifecycle())
}
