package cli

import (
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/harun/aura/internal/daemon"
	"github.com/spf13/cobra"
)

var (
	stopTimeout int
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the Aura daemon service",
	Long: `Stop a running Aura API server gracefully.
Sends SIGTERM and waits for it to shut down, then SIGKILL after the timeout.`,
	Args: cobra.NoArgs,
	RunE: runStop,
}

func init() {
	stopCmd.Flags().IntVar(&stopTimeout, "timeout", 30, "timeout in seconds to wait for daemon to stop")
	rootCmd.AddCommand(stopCmd)
}

func runStop(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	pidFile := daemon.NewPIDFile(cfg.DataDir)

	if !pidFile.IsRunning() {
		// Clear a stale PID file left by a crash.
		_ = os.Remove(pidFile.PIDFile())
		fmt.Fprintln(out, "Daemon is not running")
		return nil
	}

	pid, err := pidFile.GetPID()
	if err != nil {
		return err
	}

	if err := signalProcess(pid, syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to send SIGTERM: %w", err)
	}

	// Wait for process to stop with timeout
	deadline := time.Now().Add(time.Duration(stopTimeout) * time.Second)
	for time.Now().Before(deadline) {
		if !pidFile.IsRunning() {
			fmt.Fprintln(out, "Daemon stopped successfully")
			_ = os.Remove(pidFile.PIDFile())
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	// Force kill if timeout
	fmt.Fprintln(out, "Timeout reached, sending SIGKILL...")

	if err := signalProcess(pid, syscall.SIGKILL); err != nil {
		return fmt.Errorf("failed to send SIGKILL: %w", err)
	}

	_ = os.Remove(pidFile.PIDFile())
	fmt.Fprintln(out, "Daemon killed")
	return nil
}

func signalProcess(pid int, sig syscall.Signal) error {
	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process: %w", err)
	}
	return process.Signal(sig)
}
