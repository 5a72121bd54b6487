// Package tool defines the tool interface, the dispatch registry, and the
// executor that consumes the broker's approval decision before any side
// effect runs. Tools are the security boundary: every action an agent
// takes goes through a registered tool gated by the broker.
package tool

import (
	"context"
	"encoding/json"
)

// Tool is a single agent capability.
type Tool interface {
	// Name returns the unique identifier for this tool.
	Name() string

	// Description returns a human-readable description of what the tool does.
	Description() string

	// Schema returns a JSON Schema describing the tool's parameters.
	// The registry validates required fields against it before dispatch.
	Schema() json.RawMessage

	// Execute runs the tool. Handlers resolve relative paths against
	// env.Workspace themselves and must not assume any retry semantics.
	Execute(ctx context.Context, args json.RawMessage, env ExecutionEnv) (Output, error)
}

// ExecutionEnv provides the runtime environment for tool execution.
type ExecutionEnv struct {
	// Workspace is the working directory relative paths resolve against.
	Workspace string
}

// Output is the result of a tool execution. The agent bridge always
// receives text plus an error flag, never a raw fault.
type Output struct {
	// Content is the output text from the tool.
	Content string

	// IsError indicates whether the output represents an error condition.
	IsError bool
}
