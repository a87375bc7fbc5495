package cli

import (
	"encoding/json"
	"fmt"

	"github.com/harun/aura/internal/daemon"
	"github.com/harun/aura/pkg/toolexecutor"
	"github.com/harun/aura/pkg/toolspec"
	"github.com/spf13/cobra"
)

var toolCmd = &cobra.Command{
	Use:   "tool <name> [json-arguments]",
	Short: "Run one tool directly",
	Long: `Run a tool through the dispatcher without involving the model and print the
result envelope, for example:

  aura tool listFiles '{"directory":"."}'`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runTool,
}

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tools offered to the model",
	Args:  cobra.NoArgs,
	RunE:  runTools,
}

func init() {
	rootCmd.AddCommand(toolCmd)
	rootCmd.AddCommand(toolsCmd)
}

// openDispatcher builds a dispatcher from config. It needs no AI credentials.
func openDispatcher(cmd *cobra.Command) (*toolexecutor.Dispatcher, func(), error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}

	log, err := newLogger(cfg, false)
	if err != nil {
		return nil, nil, err
	}

	dispatcher, err := daemon.NewToolDispatcher(cfg, log, nil)
	if err != nil {
		_ = log.Close()
		return nil, nil, err
	}

	return dispatcher, func() { _ = log.Close() }, nil
}

func runTool(cmd *cobra.Command, args []string) error {
	arguments := map[string]interface{}{}
	if len(args) == 2 {
		if err := json.Unmarshal([]byte(args[1]), &arguments); err != nil {
			return fmt.Errorf("arguments must be a JSON object: %w", err)
		}
	}

	dispatcher, cleanup, err := openDispatcher(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	env := dispatcher.Execute(cmd.Context(), args[0], arguments)

	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))

	if !env.Success {
		return fmt.Errorf("tool %s failed", args[0])
	}
	return nil
}

func runTools(cmd *cobra.Command, args []string) error {
	data, err := json.MarshalIndent(map[string]interface{}{
		"tools":      toolspec.Describe(),
		"guidelines": toolspec.Guidelines(),
	}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
