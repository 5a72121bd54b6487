package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

const maxGlobResults = 500

// GlobTool matches files against a doublestar pattern (e.g. "**/*.go").
type GlobTool struct{}

// Name implements Tool.
func (t *GlobTool) Name() string { return "Glob" }

// Description implements Tool.
func (t *GlobTool) Description() string { return "Find files matching a glob pattern" }

// Schema implements Tool.
func (t *GlobTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"pattern": {"type": "string", "description": "Glob pattern, ** is supported"}
		},
		"required": ["pattern"]
	}`)
}

// Execute implements Tool.
func (t *GlobTool) Execute(_ context.Context, args json.RawMessage, env ExecutionEnv) (Output, error) {
	var in struct {
		Pattern string `json:"pattern"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return Output{}, fmt.Errorf("%w: Glob: %v", ErrInvalidArgs, err)
	}

	root := env.Workspace
	if root == "" {
		root = "."
	}

	matches, err := doublestar.Glob(os.DirFS(root), in.Pattern)
	if err != nil {
		return Output{}, fmt.Errorf("Glob %q: %w", in.Pattern, err)
	}

	slices.Sort(matches)
	truncated := false
	if len(matches) > maxGlobResults {
		matches = matches[:maxGlobResults]
		truncated = true
	}

	var b strings.Builder
	for _, m := range matches {
		b.WriteString(m)
		b.WriteByte('\n')
	}
	if truncated {
		b.WriteString("...(truncated)\n")
	}
	if len(matches) == 0 {
		b.WriteString("no files matched\n")
	}

	return Output{Content: b.String()}, nil
}
