package tool

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

const (
	maxReadLines  = 2000
	maxLineLength = 2000
)

// ReadTool reads file contents with optional offset and limit.
type ReadTool struct{}

// Name implements Tool.
func (t *ReadTool) Name() string { return "Read" }

// Description implements Tool.
func (t *ReadTool) Description() string { return "Read a file from the filesystem" }

// Schema implements Tool.
func (t *ReadTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"file_path": {"type": "string", "description": "Path to the file to read"},
			"offset": {"type": "integer", "description": "1-based line to start from"},
			"limit": {"type": "integer", "description": "Maximum number of lines"}
		},
		"required": ["file_path"]
	}`)
}

// Execute implements Tool.
func (t *ReadTool) Execute(_ context.Context, args json.RawMessage, env ExecutionEnv) (Output, error) {
	var in struct {
		FilePath string `json:"file_path"`
		Offset   int    `json:"offset"`
		Limit    int    `json:"limit"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return Output{}, fmt.Errorf("%w: Read: %v", ErrInvalidArgs, err)
	}

	path := resolvePath(in.FilePath, env.Workspace)

	info, err := os.Stat(path)
	if err != nil {
		return Output{}, fmt.Errorf("Read %s: %w", path, err)
	}
	if info.IsDir() {
		return Output{}, fmt.Errorf("Read %s: is a directory", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return Output{}, fmt.Errorf("Read %s: %w", path, err)
	}
	defer f.Close()

	offset := in.Offset
	if offset < 1 {
		offset = 1
	}
	limit := in.Limit
	if limit <= 0 {
		limit = maxReadLines
	}

	var b strings.Builder
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	lineNo := 0
	emitted := 0
	for scanner.Scan() {
		lineNo++
		if lineNo < offset {
			continue
		}
		if emitted >= limit {
			b.WriteString("...(truncated)\n")
			break
		}
		line := scanner.Text()
		if len(line) > maxLineLength {
			line = line[:maxLineLength] + "..."
		}
		fmt.Fprintf(&b, "%6d\t%s\n", lineNo, line)
		emitted++
	}
	if err := scanner.Err(); err != nil {
		return Output{}, fmt.Errorf("Read %s: %w", path, err)
	}

	return Output{Content: b.String()}, nil
}
