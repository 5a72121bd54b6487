package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// WriteTool creates or overwrites a file.
type WriteTool struct{}

// Name implements Tool.
func (t *WriteTool) Name() string { return "Write" }

// Description implements Tool.
func (t *WriteTool) Description() string { return "Write content to a file, creating it if needed" }

// Schema implements Tool.
func (t *WriteTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"file_path": {"type": "string", "description": "Path to the file to write"},
			"content": {"type": "string", "description": "Full content of the file"}
		},
		"required": ["file_path", "content"]
	}`)
}

// Execute implements Tool.
func (t *WriteTool) Execute(_ context.Context, args json.RawMessage, env ExecutionEnv) (Output, error) {
	var in struct {
		FilePath string `json:"file_path"`
		Content  string `json:"content"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return Output{}, fmt.Errorf("%w: Write: %v", ErrInvalidArgs, err)
	}

	path := resolvePath(in.FilePath, env.Workspace)

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Output{}, fmt.Errorf("Write %s: %w", path, err)
		}
	}

	if err := os.WriteFile(path, []byte(in.Content), 0o644); err != nil {
		return Output{}, fmt.Errorf("Write %s: %w", path, err)
	}

	return Output{Content: fmt.Sprintf("wrote %d bytes to %s", len(in.Content), path)}, nil
}
