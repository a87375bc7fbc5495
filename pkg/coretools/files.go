package coretools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/harun/aura/pkg/toolexecutor"
)

const maxReadBytes = 200000

// ErrNotFound is returned when a logical path exists under none of the roots.
var ErrNotFound = errors.New("file not found")

// PathResolver maps logical paths onto an ordered list of candidate roots.
type PathResolver struct {
	roots []string
}

// NewPathResolver validates and cleans the candidate roots.
func NewPathResolver(roots []string) (*PathResolver, error) {
	cleaned := make([]string, 0, len(roots))
	for _, root := range roots {
		root = strings.TrimSpace(root)
		if root == "" {
			continue
		}
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("invalid root %q: %w", root, err)
		}
		cleaned = append(cleaned, abs)
	}
	if len(cleaned) == 0 {
		return nil, fmt.Errorf("at least one root directory is required")
	}
	return &PathResolver{roots: cleaned}, nil
}

// Roots returns the cleaned candidate roots in search order.
func (r *PathResolver) Roots() []string {
	out := make([]string, len(r.roots))
	copy(out, r.roots)
	return out
}

// Existing returns the first candidate under which the logical path exists.
func (r *PathResolver) Existing(logical string) (string, error) {
	candidates, err := r.candidates(logical)
	if err != nil {
		return "", err
	}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, logical)
}

// ForCreate returns an existing match or the location under the primary root.
func (r *PathResolver) ForCreate(logical string) (string, error) {
	if existing, err := r.Existing(logical); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrNotFound) {
		return "", err
	}
	return resolvePathInRoot(r.roots[0], logical)
}

func (r *PathResolver) candidates(logical string) ([]string, error) {
	var (
		candidates []string
		lastErr    error
	)
	for _, root := range r.roots {
		candidate, err := resolvePathInRoot(root, logical)
		if err != nil {
			lastErr = err
			continue
		}
		candidates = append(candidates, candidate)
	}
	if len(candidates) == 0 {
		return nil, lastErr
	}
	return candidates, nil
}

// resolvePathInRoot joins a logical path onto root. A leading slash means the
// root itself; absolute paths already inside root are kept as-is.
func resolvePathInRoot(root string, pathValue string) (string, error) {
	pathValue = strings.TrimSpace(pathValue)
	if pathValue == "" {
		return "", fmt.Errorf("path is required")
	}
	if strings.Contains(pathValue, "://") {
		return "", fmt.Errorf("path must be a local file")
	}

	var candidate string
	if filepath.IsAbs(pathValue) && within(root, filepath.Clean(pathValue)) {
		candidate = filepath.Clean(pathValue)
	} else {
		candidate = filepath.Join(root, strings.TrimLeft(pathValue, `/\`))
	}

	if !within(root, candidate) {
		return "", fmt.Errorf("path %q is outside the workspace roots", pathValue)
	}
	return candidate, nil
}

func within(root, candidate string) bool {
	rel, err := filepath.Rel(root, candidate)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func createFileHandler(resolver *PathResolver) toolexecutor.Handler {
	return func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		if err := checkContext(ctx); err != nil {
			return nil, err
		}
		pathValue, err := stringParam(params, "path")
		if err != nil {
			return nil, err
		}
		content, err := stringParam(params, "content")
		if err != nil {
			return nil, err
		}

		target, err := resolver.ForCreate(pathValue)
		if err != nil {
			return nil, err
		}
		if info, err := os.Stat(target); err == nil && info.IsDir() {
			return nil, fmt.Errorf("%s is a directory", pathValue)
		}
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return nil, err
		}
		if err := os.WriteFile(target, []byte(content), 0644); err != nil {
			return nil, err
		}

		return fmt.Sprintf("File created successfully at %s", target), nil
	}
}

func readFileHandler(resolver *PathResolver) toolexecutor.Handler {
	return func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		if err := checkContext(ctx); err != nil {
			return nil, err
		}
		pathValue, err := stringParam(params, "path")
		if err != nil {
			return nil, err
		}

		target, err := resolver.Existing(pathValue)
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(target)
		if err != nil {
			return nil, err
		}
		if info.IsDir() {
			return nil, fmt.Errorf("%s is a directory, not a file", pathValue)
		}

		data, truncated, err := readFileWithLimit(target, maxReadBytes)
		if err != nil {
			return nil, err
		}
		content := string(data)
		if truncated {
			content += "\n... [truncated]"
		}
		return content, nil
	}
}

func deleteFileHandler(resolver *PathResolver) toolexecutor.Handler {
	return func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		if err := checkContext(ctx); err != nil {
			return nil, err
		}
		pathValue, err := stringParam(params, "path")
		if err != nil {
			return nil, err
		}

		target, err := resolver.Existing(pathValue)
		if err != nil {
			return nil, err
		}
		info, err := os.Stat(target)
		if err != nil {
			return nil, err
		}
		if info.IsDir() {
			return nil, fmt.Errorf("%s is a directory, not a file", pathValue)
		}
		if err := os.Remove(target); err != nil {
			return nil, err
		}

		return fmt.Sprintf("File deleted successfully at %s", target), nil
	}
}

func listFilesHandler(resolver *PathResolver) toolexecutor.Handler {
	return func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		if err := checkContext(ctx); err != nil {
			return nil, err
		}
		directory, err := stringParam(params, "directory")
		if err != nil {
			return nil, err
		}

		target, err := resolver.Existing(directory)
		if err != nil {
			return nil, err
		}
		entries, err := os.ReadDir(target)
		if err != nil {
			return nil, err
		}

		names := make([]string, 0, len(entries))
		for _, entry := range entries {
			names = append(names, entry.Name())
		}
		return names, nil
	}
}

func readFileWithLimit(path string, limit int64) ([]byte, bool, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, false, err
	}
	defer file.Close()

	if limit <= 0 {
		limit = maxReadBytes
	}

	var buf bytes.Buffer
	if _, err := io.CopyN(&buf, file, limit); err != nil && !errors.Is(err, io.EOF) {
		return nil, false, err
	}

	extra := make([]byte, 1)
	n, _ := file.Read(extra)
	return buf.Bytes(), n > 0, nil
}
