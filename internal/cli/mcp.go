package cli

import (
	"fmt"

	"github.com/harun/aura/pkg/mcpbridge"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the tools over MCP on stdio",
	Long: `Expose createFile, readFile, deleteFile, listFiles and captureScreenshot to an
MCP client over stdin/stdout. Logs go to the log file only.`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	dispatcher, cleanup, err := openDispatcher(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	bridge, err := mcpbridge.New(dispatcher, mcpbridge.Options{
		Version: version,
		Logger:  log.Logger.With().Str("component", "mcp").Logger(),
	})
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	return bridge.Serve()
}
