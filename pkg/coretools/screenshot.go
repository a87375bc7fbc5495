package coretools

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/harun/aura/pkg/toolexecutor"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// DefaultScreenshotTimeout bounds a single capture command.
const DefaultScreenshotTimeout = 10 * time.Second

// FilePlaceholder in a capture command is replaced with the output path.
const FilePlaceholder = "{file}"

// Capturer writes a PNG screenshot to dest.
type Capturer interface {
	Capture(ctx context.Context, dest string) error
}

// CommandCapturer captures screenshots by running an OS command.
type CommandCapturer struct {
	// Command is the argv to run. FilePlaceholder is substituted with the
	// output path; without it the path is appended as the last argument.
	Command []string
	Timeout time.Duration
}

// NewCommandCapturer returns a capturer for command, or for the platform
// default when command is empty.
func NewCommandCapturer(command []string, timeout time.Duration) (*CommandCapturer, error) {
	if len(command) == 0 {
		command = DefaultScreenshotCommand()
	}
	if len(command) == 0 {
		return nil, fmt.Errorf("no screenshot command available on %s", runtime.GOOS)
	}
	if timeout <= 0 {
		timeout = DefaultScreenshotTimeout
	}
	return &CommandCapturer{Command: command, Timeout: timeout}, nil
}

// DefaultScreenshotCommand picks a capture command for the running platform.
func DefaultScreenshotCommand() []string {
	switch runtime.GOOS {
	case "darwin":
		return []string{"screencapture", "-x", FilePlaceholder}
	case "linux":
		candidates := [][]string{
			{"grim", FilePlaceholder},
			{"gnome-screenshot", "-f", FilePlaceholder},
			{"import", "-window", "root", FilePlaceholder},
		}
		for _, candidate := range candidates {
			if _, err := exec.LookPath(candidate[0]); err == nil {
				return candidate
			}
		}
	}
	return nil
}

// Capture runs the configured command and waits for it to exit.
func (c *CommandCapturer) Capture(ctx context.Context, dest string) error {
	args := make([]string, 0, len(c.Command)+1)
	substituted := false
	for _, arg := range c.Command {
		if strings.Contains(arg, FilePlaceholder) {
			arg = strings.ReplaceAll(arg, FilePlaceholder, dest)
			substituted = true
		}
		args = append(args, arg)
	}
	if !substituted {
		args = append(args, dest)
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultScreenshotTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, args[0], args[1:]...)
	cmd.WaitDelay = time.Second
	output, err := cmd.CombinedOutput()
	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("screenshot command timed out after %v", timeout)
		}
		if msg := strings.TrimSpace(string(output)); msg != "" {
			return fmt.Errorf("screenshot command failed: %w: %s", err, msg)
		}
		return fmt.Errorf("screenshot command failed: %w", err)
	}
	return nil
}

func captureScreenshotHandler(capturer Capturer, dir string, logger zerolog.Logger) toolexecutor.Handler {
	return func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		if capturer == nil {
			return nil, fmt.Errorf("screenshot capture is not configured")
		}
		if err := checkContext(ctx); err != nil {
			return nil, err
		}

		artifactDir := dir
		if artifactDir == "" {
			artifactDir = os.TempDir()
		}
		id, err := gonanoid.New()
		if err != nil {
			return nil, fmt.Errorf("failed to name screenshot file: %w", err)
		}
		artifact := filepath.Join(artifactDir, "aura-screenshot-"+id+".png")

		defer func() {
			if err := os.Remove(artifact); err != nil && !os.IsNotExist(err) {
				logger.Warn().Err(err).Str("path", artifact).Msg("Failed to remove screenshot artifact")
			}
		}()

		l := logger.With().Str("path", artifact).Logger()
		if execCtx := toolexecutor.ExecContextFromContext(ctx); execCtx != nil {
			l = l.With().Str("exchange_id", execCtx.ExchangeID).Logger()
		}
		l.Debug().Msg("Capturing screenshot")

		if err := capturer.Capture(ctx, artifact); err != nil {
			return nil, fmt.Errorf("failed to capture screenshot: %w", err)
		}

		data, err := os.ReadFile(artifact)
		if err != nil {
			return nil, fmt.Errorf("failed to read screenshot: %w", err)
		}
		if len(data) == 0 {
			return nil, fmt.Errorf("screenshot capture produced an empty image")
		}

		return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data), nil
	}
}
