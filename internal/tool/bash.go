package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"
)

const (
	defaultBashTimeout = 2 * time.Minute
	maxBashOutput      = 256 << 10
)

// BashTool runs a shell command in the workspace.
type BashTool struct{}

// Name implements Tool.
func (t *BashTool) Name() string { return "Bash" }

// Description implements Tool.
func (t *BashTool) Description() string { return "Run a shell command" }

// Schema implements Tool.
func (t *BashTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"command": {"type": "string", "description": "Command to run with sh -c"}
		},
		"required": ["command"]
	}`)
}

// Execute implements Tool.
func (t *BashTool) Execute(ctx context.Context, args json.RawMessage, env ExecutionEnv) (Output, error) {
	var in struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return Output{}, fmt.Errorf("%w: Bash: %v", ErrInvalidArgs, err)
	}
	if in.Command == "" {
		return Output{}, fmt.Errorf("%w: Bash: empty command", ErrInvalidArgs)
	}

	ctx, cancel := context.WithTimeout(ctx, defaultBashTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", in.Command)
	cmd.Dir = env.Workspace

	out, err := cmd.CombinedOutput()
	if len(out) > maxBashOutput {
		out = append(out[:maxBashOutput], []byte("\n...(truncated)")...)
	}

	if err != nil {
		// Command-level failure is a tool result, not a dispatch fault:
		// the agent should see the output and the exit status together.
		return Output{
			Content: fmt.Sprintf("%s\ncommand failed: %v", out, err),
			IsError: true,
		}, nil
	}

	return Output{Content: string(out)}, nil
}
