// Package mcpbridge serves the registered tools over the Model Context
// Protocol on stdio. Calls go through the same dispatcher as the chat loop,
// so validation, path confinement and timeouts are identical.
package mcpbridge

import (
	"context"
	"fmt"
	"time"

	"github.com/harun/aura/pkg/toolexecutor"
	"github.com/harun/aura/pkg/toolspec"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
)

const (
	DefaultName    = "aura-tools"
	DefaultVersion = "1.0.0"
)

// Executor runs one tool and returns its envelope. *toolexecutor.Dispatcher
// satisfies it.
type Executor interface {
	Execute(ctx context.Context, name string, args map[string]interface{}) toolexecutor.Envelope
}

// Options configures the MCP server identity.
type Options struct {
	Name    string
	Version string
	Logger  zerolog.Logger
}

// Bridge exposes an Executor as an MCP server.
type Bridge struct {
	server *server.MCPServer
	exec   Executor
	tools  []mcp.Tool
	logger zerolog.Logger
}

// New registers every tool contract on a fresh MCP server.
func New(exec Executor, opts Options) (*Bridge, error) {
	if exec == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if opts.Name == "" {
		opts.Name = DefaultName
	}
	if opts.Version == "" {
		opts.Version = DefaultVersion
	}

	b := &Bridge{
		server: server.NewMCPServer(
			opts.Name,
			opts.Version,
			server.WithToolCapabilities(true),
			server.WithLogging(),
		),
		exec:   exec,
		logger: opts.Logger.With().Str("component", "mcp").Logger(),
	}

	for _, contract := range toolspec.Contracts() {
		tool := toolFor(contract)
		b.tools = append(b.tools, tool)
		b.server.AddTool(tool, b.handler(contract.Name))
	}

	b.logger.Debug().Int("tools", len(b.tools)).Msg("MCP tools registered")
	return b, nil
}

// Tools returns the MCP declarations in registry order.
func (b *Bridge) Tools() []mcp.Tool {
	out := make([]mcp.Tool, len(b.tools))
	copy(out, b.tools)
	return out
}

// Serve blocks serving MCP over stdin/stdout.
func (b *Bridge) Serve() error {
	b.logger.Info().Msg("Starting MCP server on stdio")
	if err := server.ServeStdio(b.server); err != nil {
		return fmt.Errorf("mcp server error: %w", err)
	}
	b.logger.Info().Msg("MCP server stopped")
	return nil
}

// toolFor declares a contract with the registry's own input schema.
func toolFor(contract toolspec.Contract) mcp.Tool {
	schema := toolspec.InputSchema(contract)
	schemaType, _ := schema["type"].(string)
	properties, _ := schema["properties"].(map[string]interface{})
	required, _ := schema["required"].([]string)

	return mcp.Tool{
		Name:        contract.Name.String(),
		Description: contract.Description,
		InputSchema: mcp.ToolInputSchema{
			Type:       schemaType,
			Properties: properties,
			Required:   required,
		},
	}
}

// handler renders the envelope as the text content of the call result. Tool
// failures are results with IsError set, never protocol errors.
func (b *Bridge) handler(name toolspec.Name) func(arguments map[string]interface{}) (*mcp.CallToolResult, error) {
	return func(arguments map[string]interface{}) (*mcp.CallToolResult, error) {
		if arguments == nil {
			arguments = map[string]interface{}{}
		}

		start := time.Now()
		env := b.exec.Execute(context.Background(), name.String(), arguments)

		b.logger.Info().
			Str("tool", name.String()).
			Bool("success", env.Success).
			Dur("duration", time.Since(start)).
			Msg("MCP tool call")

		return &mcp.CallToolResult{
			Content: []interface{}{
				mcp.TextContent{
					Type: "text",
					Text: env.JSON(),
				},
			},
			IsError: !env.Success,
		}, nil
	}
}
