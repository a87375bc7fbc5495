package toolspec

import (
	"encoding/json"
)

// Name identifies a registered tool.
type Name string

const (
	CreateFile        Name = "createFile"
	ReadFile          Name = "readFile"
	DeleteFile        Name = "deleteFile"
	ListFiles         Name = "listFiles"
	CaptureScreenshot Name = "captureScreenshot"
)

func (n Name) String() string {
	return string(n)
}

// Parameter describes one named argument of a tool.
type Parameter struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
	// Guide is the human-readable input hint embedded in the system prompt.
	Guide string `json:"-"`
}

// Contract is the full declaration of a tool: its parameters and the
// shape of the envelope it produces.
type Contract struct {
	Name        Name        `json:"name"`
	Description string      `json:"description"`
	Parameters  []Parameter `json:"parameters"`
	ResultGuide string      `json:"-"`
}

// Declaration is the model-facing view of a tool.
type Declaration struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

var contracts = []Contract{
	{
		Name:        CreateFile,
		Description: "Create a new file with the given content",
		Parameters: []Parameter{
			{Name: "path", Type: "string", Description: "The path where the file should be created", Required: true, Guide: "string (e.g., 'path/to/file.txt')"},
			{Name: "content", Type: "string", Description: "The content to write to the file", Required: true, Guide: "string (file content)"},
		},
		ResultGuide: "string (success message with the created path)",
	},
	{
		Name:        ReadFile,
		Description: "Read the contents of a file",
		Parameters: []Parameter{
			{Name: "path", Type: "string", Description: "The path of the file to read", Required: true, Guide: "string (e.g., 'path/to/file.txt')"},
		},
		ResultGuide: "string (file content)",
	},
	{
		Name:        DeleteFile,
		Description: "Delete a file",
		Parameters: []Parameter{
			{Name: "path", Type: "string", Description: "The path of the file to delete", Required: true, Guide: "string (e.g., 'path/to/file.txt')"},
		},
		ResultGuide: "string (success message with the deleted path)",
	},
	{
		Name:        ListFiles,
		Description: "List files in a directory",
		Parameters: []Parameter{
			{Name: "directory", Type: "string", Description: "The directory to list files from", Required: true, Guide: "string (e.g., '/' for root directory)"},
		},
		ResultGuide: "array of strings (file/directory names)",
	},
	{
		Name:        CaptureScreenshot,
		Description: "Capture a screenshot of the current screen",
		Parameters:  []Parameter{},
		ResultGuide: "string (base64 encoded PNG data URL)",
	},
}

// All returns every registered tool name in declaration order.
func All() []Name {
	names := make([]Name, 0, len(contracts))
	for _, c := range contracts {
		names = append(names, c.Name)
	}
	return names
}

// Lookup resolves a wire name to a registered tool.
func Lookup(name string) (Name, bool) {
	for _, c := range contracts {
		if string(c.Name) == name {
			return c.Name, true
		}
	}
	return "", false
}

// ContractFor returns the contract of a registered tool.
func ContractFor(name Name) (Contract, bool) {
	for _, c := range contracts {
		if c.Name == name {
			return copyContract(c), true
		}
	}
	return Contract{}, false
}

// Contracts returns copies of every contract in declaration order.
func Contracts() []Contract {
	out := make([]Contract, 0, len(contracts))
	for _, c := range contracts {
		out = append(out, copyContract(c))
	}
	return out
}

func copyContract(c Contract) Contract {
	params := make([]Parameter, len(c.Parameters))
	copy(params, c.Parameters)
	c.Parameters = params
	return c
}

// InputSchema builds the JSON Schema object for a contract's parameters.
func InputSchema(c Contract) map[string]interface{} {
	properties := make(map[string]interface{}, len(c.Parameters))
	required := []string{}

	for _, param := range c.Parameters {
		properties[param.Name] = map[string]interface{}{
			"type":        param.Type,
			"description": param.Description,
		}
		if param.Required {
			required = append(required, param.Name)
		}
	}

	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

// Describe returns the declarations offered to the model for tool use.
func Describe() []Declaration {
	decls := make([]Declaration, 0, len(contracts))
	for _, c := range contracts {
		decls = append(decls, Declaration{
			Name:        string(c.Name),
			Description: c.Description,
			InputSchema: InputSchema(c),
		})
	}
	return decls
}

// Guidelines renders the catalogue as indented JSON for the system prompt.
// encoding/json sorts map keys, so the output is stable.
func Guidelines() string {
	catalogue := make(map[string]interface{}, len(contracts))
	for _, c := range contracts {
		input := make(map[string]string, len(c.Parameters))
		for _, param := range c.Parameters {
			input[param.Name] = param.Guide
		}
		catalogue[string(c.Name)] = map[string]interface{}{
			"input": input,
			"output": map[string]string{
				"success": "boolean",
				"result":  c.ResultGuide,
				"error":   "string (present only when success is false)",
			},
		}
	}

	data, err := json.MarshalIndent(catalogue, "", "  ")
	if err != nil {
		// Only strings and maps of strings are marshalled.
		panic(err)
	}
	return string(data)
}
