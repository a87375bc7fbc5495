package toolspec

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAll(t *testing.T) {
	names := All()

	assert.Equal(t, []Name{CreateFile, ReadFile, DeleteFile, ListFiles, CaptureScreenshot}, names)
}

func TestLookup(t *testing.T) {
	t.Run("known tool", func(t *testing.T) {
		name, ok := Lookup("listFiles")
		assert.True(t, ok)
		assert.Equal(t, ListFiles, name)
	})

	t.Run("unknown tool", func(t *testing.T) {
		_, ok := Lookup("nonexistentTool")
		assert.False(t, ok)
	})

	t.Run("lookup is case sensitive", func(t *testing.T) {
		_, ok := Lookup("listfiles")
		assert.False(t, ok)
	})
}

func TestDescribe(t *testing.T) {
	decls := Describe()
	require.Len(t, decls, len(All()))

	byName := map[string]Declaration{}
	for _, d := range decls {
		byName[d.Name] = d
	}

	t.Run("createFile requires path and content", func(t *testing.T) {
		d := byName["createFile"]
		assert.Equal(t, "object", d.InputSchema["type"])
		assert.Equal(t, []string{"path", "content"}, d.InputSchema["required"])
		props := d.InputSchema["properties"].(map[string]interface{})
		assert.Contains(t, props, "path")
		assert.Contains(t, props, "content")
	})

	t.Run("captureScreenshot takes no parameters", func(t *testing.T) {
		d := byName["captureScreenshot"]
		assert.Empty(t, d.InputSchema["properties"])
		assert.Empty(t, d.InputSchema["required"])
	})

	t.Run("every declaration has a description", func(t *testing.T) {
		for _, d := range decls {
			assert.NotEmpty(t, d.Description, d.Name)
		}
	})
}

func TestContractFor(t *testing.T) {
	c, ok := ContractFor(ListFiles)
	require.True(t, ok)
	require.Len(t, c.Parameters, 1)
	assert.Equal(t, "directory", c.Parameters[0].Name)

	// Mutating the returned copy must not leak into the catalogue.
	c.Parameters[0].Name = "changed"
	again, _ := ContractFor(ListFiles)
	assert.Equal(t, "directory", again.Parameters[0].Name)

	_, ok = ContractFor(Name("bogus"))
	assert.False(t, ok)
}

func TestGuidelines(t *testing.T) {
	t.Run("stable across calls", func(t *testing.T) {
		assert.Equal(t, Guidelines(), Guidelines())
	})

	t.Run("covers every tool with envelope shape", func(t *testing.T) {
		var parsed map[string]struct {
			Input  map[string]string `json:"input"`
			Output map[string]string `json:"output"`
		}
		require.NoError(t, json.Unmarshal([]byte(Guidelines()), &parsed))

		for _, name := range All() {
			entry, ok := parsed[string(name)]
			require.True(t, ok, name)
			assert.Equal(t, "boolean", entry.Output["success"])
			assert.NotEmpty(t, entry.Output["result"])
			assert.NotEmpty(t, entry.Output["error"])
		}
		assert.Contains(t, parsed["listFiles"].Input["directory"], "root directory")
		assert.Empty(t, parsed["captureScreenshot"].Input)
	})
}
