package coretools

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/harun/aura/pkg/toolexecutor"
	"github.com/harun/aura/pkg/toolspec"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Options configures core tool handlers.
type Options struct {
	// Roots is the ordered list of candidate base directories. The first
	// entry is the primary root used when creating new files.
	Roots []string
	// Capturer takes screenshots; nil disables captureScreenshot.
	Capturer Capturer
	// ScreenshotDir holds transient capture artifacts (default os.TempDir()).
	ScreenshotDir string
	Logger        *zerolog.Logger
}

// DefaultRoots returns the conventional search path below a workspace.
func DefaultRoots(workspace string) []string {
	return []string{
		workspace,
		filepath.Join(workspace, "app"),
		filepath.Join(workspace, "app", "utils"),
		filepath.Join(workspace, "utils"),
	}
}

// Handlers builds the handler table for every registered tool.
func Handlers(opts Options) (toolexecutor.Handlers, error) {
	resolver, err := NewPathResolver(opts.Roots)
	if err != nil {
		return nil, err
	}

	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	return toolexecutor.Handlers{
		toolspec.CreateFile:        createFileHandler(resolver),
		toolspec.ReadFile:          readFileHandler(resolver),
		toolspec.DeleteFile:        deleteFileHandler(resolver),
		toolspec.ListFiles:         listFilesHandler(resolver),
		toolspec.CaptureScreenshot: captureScreenshotHandler(opts.Capturer, opts.ScreenshotDir, logger),
	}, nil
}

// NewDispatcher is a convenience wrapper wiring Handlers into a dispatcher.
func NewDispatcher(opts Options, dispatcherOpts ...toolexecutor.Option) (*toolexecutor.Dispatcher, error) {
	handlers, err := Handlers(opts)
	if err != nil {
		return nil, err
	}
	return toolexecutor.New(handlers, dispatcherOpts...)
}

func stringParam(params map[string]interface{}, key string) (string, error) {
	value, ok := params[key].(string)
	if !ok {
		return "", fmt.Errorf("%s must be a string", key)
	}
	return value, nil
}

func checkContext(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("tool execution timed out: %w", err)
		}
		return fmt.Errorf("tool execution cancelled: %w", err)
	}
	return nil
}
