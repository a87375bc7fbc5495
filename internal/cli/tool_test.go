package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToolCommand(t *testing.T) {
	t.Run("create and read without credentials", func(t *testing.T) {
		path, workspace := writeTestConfig(t, false)

		output, err := execute(t, "", "--config", path, "tool", "createFile", `{"path":"notes/todo.txt","content":"buy milk"}`)
		require.NoError(t, err)
		assert.Contains(t, output, `"success": true`)

		data, err := os.ReadFile(filepath.Join(workspace, "notes", "todo.txt"))
		require.NoError(t, err)
		assert.Equal(t, "buy milk", string(data))

		output, err = execute(t, "", "--config", path, "tool", "readFile", `{"path":"notes/todo.txt"}`)
		require.NoError(t, err)
		assert.Contains(t, output, "buy milk")
	})

	t.Run("failure envelope", func(t *testing.T) {
		path, _ := writeTestConfig(t, false)

		output, err := execute(t, "", "--config", path, "tool", "readFile", `{"path":"missing.txt"}`)
		require.Error(t, err)
		assert.Contains(t, output, `"success": false`)
		assert.Contains(t, output, "file not found")
	})

	t.Run("unknown tool", func(t *testing.T) {
		path, _ := writeTestConfig(t, false)

		output, err := execute(t, "", "--config", path, "tool", "formatDisk")
		require.Error(t, err)
		assert.Contains(t, output, "unknown tool: formatDisk")
	})

	t.Run("arguments must be JSON", func(t *testing.T) {
		path, _ := writeTestConfig(t, false)

		_, err := execute(t, "", "--config", path, "tool", "readFile", "not-json")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "JSON object")
	})

	t.Run("requires a name", func(t *testing.T) {
		_, err := execute(t, "", "tool")
		assert.Error(t, err)
	})
}

func TestToolsCommand(t *testing.T) {
	output, err := execute(t, "", "tools")
	require.NoError(t, err)

	for _, name := range []string{"createFile", "readFile", "deleteFile", "listFiles", "captureScreenshot"} {
		assert.Contains(t, output, name)
	}
	assert.Contains(t, output, `"guidelines"`)
}
