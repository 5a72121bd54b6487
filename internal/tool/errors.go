package tool

import "errors"

var (
	// ErrUnknownTool is returned before any side effect when the tool name
	// is not registered.
	ErrUnknownTool = errors.New("tool: unknown tool")

	// ErrInvalidArgs is returned when required fields are missing or the
	// input is not a JSON object. It never reaches a handler.
	ErrInvalidArgs = errors.New("tool: invalid arguments")

	// ErrDenied is returned when the broker's decision blocks execution.
	ErrDenied = errors.New("tool: execution denied")

	// ErrEmptyToolName is returned when registering a tool with no name.
	ErrEmptyToolName = errors.New("tool: name must not be empty")

	// ErrDuplicateTool is returned when registering a tool whose name is
	// already taken.
	ErrDuplicateTool = errors.New("tool: already registered")
)
