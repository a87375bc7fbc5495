package cli

import (
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/harun/aura/internal/daemon"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStopCommand(t *testing.T) {
	t.Run("help text", func(t *testing.T) {
		output, err := execute(t, "", "stop", "--help")
		require.NoError(t, err)

		assert.Contains(t, output, "Stop a running Aura API server")
		assert.Contains(t, output, "timeout")
	})

	t.Run("not running removes stale PID file", func(t *testing.T) {
		path, _ := writeTestConfig(t, false)
		dataDir := dataDirOf(t, path)
		require.NoError(t, os.MkdirAll(dataDir, 0755))
		pidFile := filepath.Join(dataDir, daemon.PIDFileName)
		require.NoError(t, os.WriteFile(pidFile, []byte("not-a-pid"), 0644))

		output, err := execute(t, "", "--config", path, "stop")
		require.NoError(t, err)
		assert.Contains(t, output, "Daemon is not running")

		_, err = os.Stat(pidFile)
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("terminates the process", func(t *testing.T) {
		sleeper := exec.Command("sleep", "30")
		if err := sleeper.Start(); err != nil {
			t.Skipf("sleep unavailable: %v", err)
		}
		exited := make(chan struct{})
		go func() {
			_ = sleeper.Wait()
			close(exited)
		}()

		path, _ := writeTestConfig(t, false)
		dataDir := dataDirOf(t, path)
		require.NoError(t, os.MkdirAll(dataDir, 0755))
		require.NoError(t, os.WriteFile(filepath.Join(dataDir, daemon.PIDFileName), []byte(strconv.Itoa(sleeper.Process.Pid)), 0644))

		output, err := execute(t, "", "--config", path, "stop", "--timeout", "5")
		require.NoError(t, err)
		assert.Contains(t, output, "Daemon stopped successfully")
		<-exited
	})
}
