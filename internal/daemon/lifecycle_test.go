package daemon

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLifecycleManager(t *testing.T) {
	daemon := createTestDaemon(t)

	lm := NewLifecycleManager(daemon)
	assert.NotNil(t, lm)
	assert.Equal(t, daemon, lm.daemon)
	assert.Equal(t, filepath.Join(daemon.GetConfig().DataDir, "aura.pid"), lm.PIDFile())
}

func TestLifecycleManagerStartStop(t *testing.T) {
	lm := NewLifecycleManager(createTestDaemon(t))

	err := lm.Start()
	require.NoError(t, err)

	_, err = os.Stat(lm.pidFile)
	assert.NoError(t, err)
	assert.True(t, lm.IsRunning())

	err = lm.Stop()
	require.NoError(t, err)

	_, err = os.Stat(lm.pidFile)
	assert.True(t, os.IsNotExist(err))
	assert.False(t, lm.IsRunning())

	// Stopping twice is harmless.
	assert.NoError(t, lm.Stop())
}

func TestLifecycleManagerGetPID(t *testing.T) {
	lm := NewLifecycleManager(createTestDaemon(t))

	require.NoError(t, lm.Start())
	defer lm.Stop()

	pid, err := lm.GetPID()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestPIDFile_Invalid(t *testing.T) {
	dir := t.TempDir()
	lm := NewPIDFile(dir)

	_, err := lm.GetPID()
	assert.Error(t, err)
	assert.False(t, lm.IsRunning())

	require.NoError(t, os.WriteFile(lm.PIDFile(), []byte("not-a-pid"), 0644))
	_, err = lm.GetPID()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid PID file")
}

func TestPIDFile_StaleIsReplaced(t *testing.T) {
	dir := t.TempDir()
	lm := NewPIDFile(dir)

	// PIDs above the default pid_max are never live.
	require.NoError(t, os.WriteFile(lm.PIDFile(), []byte(strconv.Itoa(1<<22+1)+"\n"), 0644))
	assert.False(t, lm.IsRunning())

	require.NoError(t, lm.Start())
	pid, err := lm.GetPID()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestPIDFile_RefusesLiveOwner(t *testing.T) {
	dir := t.TempDir()
	lm := NewPIDFile(dir)

	// The parent process (the test runner) is alive and is not us.
	require.NoError(t, os.WriteFile(lm.PIDFile(), []byte(strconv.Itoa(os.Getppid())), 0644))
	err := lm.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")
}
