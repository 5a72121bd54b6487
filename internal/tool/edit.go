package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// EditTool performs an exact string replacement in an existing file.
type EditTool struct{}

// Name implements Tool.
func (t *EditTool) Name() string { return "Edit" }

// Description implements Tool.
func (t *EditTool) Description() string { return "Replace an exact string in a file" }

// Schema implements Tool.
func (t *EditTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"file_path": {"type": "string", "description": "Path to the file to edit"},
			"old_string": {"type": "string", "description": "Exact text to replace; must occur exactly once"},
			"new_string": {"type": "string", "description": "Replacement text"}
		},
		"required": ["file_path", "old_string", "new_string"]
	}`)
}

// Execute implements Tool.
func (t *EditTool) Execute(_ context.Context, args json.RawMessage, env ExecutionEnv) (Output, error) {
	var in struct {
		FilePath  string `json:"file_path"`
		OldString string `json:"old_string"`
		NewString string `json:"new_string"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return Output{}, fmt.Errorf("%w: Edit: %v", ErrInvalidArgs, err)
	}
	if in.OldString == in.NewString {
		return Output{}, fmt.Errorf("%w: Edit: old_string and new_string are identical", ErrInvalidArgs)
	}

	path := resolvePath(in.FilePath, env.Workspace)

	data, err := os.ReadFile(path)
	if err != nil {
		return Output{}, fmt.Errorf("Edit %s: %w", path, err)
	}
	content := string(data)

	switch n := strings.Count(content, in.OldString); {
	case n == 0:
		return Output{}, fmt.Errorf("Edit %s: old_string not found", path)
	case n > 1:
		return Output{}, fmt.Errorf("Edit %s: old_string occurs %d times, must be unique", path, n)
	}

	updated := strings.Replace(content, in.OldString, in.NewString, 1)

	mode := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode()
	}
	if err := os.WriteFile(path, []byte(updated), mode); err != nil {
		return Output{}, fmt.Errorf("Edit %s: %w", path, err)
	}

	return Output{Content: fmt.Sprintf("edited %s", path)}, nil
}
