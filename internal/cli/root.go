package cli

import (
	"fmt"

	"github.com/harun/aura/internal/config"
	"github.com/harun/aura/internal/daemon"
	"github.com/harun/aura/internal/logger"
	"github.com/spf13/cobra"
)

const version = "0.1.0"

var (
	cfgFile  string
	logLevel string
)

// daemonOptions are applied to every daemon the CLI builds.
var daemonOptions []daemon.Option

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "aura",
	Short: "Aura - tool-using AI assistant",
	Long: `Aura is a conversational assistant that can create, read, delete and list
files in a workspace and capture screenshots on the user's behalf. It keeps a
persistent conversation history and is reachable from the terminal, an HTTP
and WebSocket API, or as an MCP tool server.`,
	Version:      version,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.aura/aura.json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	// Version template
	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)
}

// GetRootCmd returns the root command for testing
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// GetVersion returns the current version
func GetVersion() string {
	return version
}

// loadConfig loads the config file and applies the --log-level flag.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

// newLogger builds the process logger. Interactive commands log to the file
// only so their output stays readable.
func newLogger(cfg *config.Config, console bool) (*logger.Logger, error) {
	logCfg := logger.FromSettings(cfg.Logging)
	logCfg.Console = console && cfg.Logging.Console
	log, err := logger.New(logCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return log, nil
}

// openDaemon builds a daemon for commands that drive the runner in-process.
// The returned cleanup closes the daemon and the logger.
func openDaemon(cmd *cobra.Command, console bool) (*daemon.Daemon, func(), error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w (run 'aura configure')", err)
	}

	log, err := newLogger(cfg, console)
	if err != nil {
		return nil, nil, err
	}

	d, err := daemon.New(cfg, log, daemonOptions...)
	if err != nil {
		_ = log.Close()
		return nil, nil, err
	}

	return d, func() {
		d.Close()
		_ = log.Close()
	}, nil
}
