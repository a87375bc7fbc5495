package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/harun/aura/internal/server"
	"github.com/spf13/cobra"
)

var (
	historyClear bool
	historyJSON  bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show or clear the conversation history",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().BoolVar(&historyClear, "clear", false, "delete every stored turn")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "print turns as JSON")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	d, cleanup, err := openDaemon(cmd, false)
	if err != nil {
		return err
	}
	defer cleanup()

	runner := d.GetRunner()
	out := cmd.OutOrStdout()

	if historyClear {
		if err := runner.ClearHistory(cmd.Context()); err != nil {
			return fmt.Errorf("failed to clear memory: %w", err)
		}
		fmt.Fprintln(out, "Memory cleared successfully")
		return nil
	}

	turns, err := runner.History(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to retrieve memory: %w", err)
	}

	if historyJSON {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(server.MemoryResponse{Memory: turns})
	}

	if len(turns) == 0 {
		fmt.Fprintln(out, "No conversation history")
		return nil
	}
	for _, turn := range turns {
		fmt.Fprintf(out, "[%s] %s: %s\n", time.UnixMilli(turn.Timestamp).Format("2006-01-02 15:04:05"), turn.Role, turn.Content)
	}
	return nil
}
