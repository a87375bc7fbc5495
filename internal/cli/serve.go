package cli

import (
	"fmt"

	"github.com/harun/aura/internal/daemon"
	"github.com/spf13/cobra"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Aura API server",
	Long: `Start the Aura HTTP and WebSocket API in the foreground.
The server runs until it receives SIGINT or SIGTERM, then waits for in-flight
requests before exiting.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "override server.port")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w (run 'aura configure')", err)
	}

	if pidFile := daemon.NewPIDFile(cfg.DataDir); pidFile.IsRunning() {
		return fmt.Errorf("daemon is already running (PID file: %s)", pidFile.PIDFile())
	}

	log, err := newLogger(cfg, true)
	if err != nil {
		return err
	}
	defer log.Close()

	d, err := daemon.New(cfg, log, daemonOptions...)
	if err != nil {
		return err
	}

	if err := d.Start(); err != nil {
		d.Close()
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Aura API listening on http://%s\n", cfg.Server.Addr())

	return d.Wait()
}
