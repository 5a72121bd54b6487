package tool

import (
	"cmp"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Schema is a tool's name paired with its JSON Schema.
type Schema struct {
	Name   string
	Schema json.RawMessage
}

// Registry holds registered tools. It is instance-based (not global) for
// better testability.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// NewBuiltinRegistry creates a registry with all built-in tools registered.
func NewBuiltinRegistry() *Registry {
	r := NewRegistry()
	for _, t := range []Tool{
		&ReadTool{}, &WriteTool{}, &EditTool{},
		&GlobTool{}, &GrepTool{}, &BashTool{},
	} {
		// Built-in names are unique by construction.
		_ = r.Register(t)
	}
	return r
}

// Register adds a tool to the registry.
func (r *Registry) Register(t Tool) error {
	name := strings.TrimSpace(t.Name())
	if name == "" {
		return ErrEmptyToolName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, name)
	}
	r.tools[name] = t
	return nil
}

// Get returns the tool with the given name, or ErrUnknownTool.
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return t, nil
}

// Schemas returns all registered tool schemas sorted by name.
func (r *Registry) Schemas() []Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	schemas := make([]Schema, 0, len(r.tools))
	for name, t := range r.tools {
		schemas = append(schemas, Schema{Name: name, Schema: t.Schema()})
	}
	slices.SortFunc(schemas, func(a, b Schema) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return schemas
}

// Names returns all registered tool names sorted alphabetically.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// ValidateArgs checks args against the tool's declared schema: the input
// must be a JSON object and every required field must be present and
// non-null. Unknown fields are ignored. This runs before dispatch so a
// malformed call never reaches a handler.
func ValidateArgs(t Tool, args json.RawMessage) error {
	var schema struct {
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(t.Schema(), &schema); err != nil {
		return fmt.Errorf("tool %s: parsing schema: %w", t.Name(), err)
	}

	var fields map[string]json.RawMessage
	if len(args) == 0 {
		fields = map[string]json.RawMessage{}
	} else if err := json.Unmarshal(args, &fields); err != nil {
		return fmt.Errorf("%w: %s: input is not a JSON object", ErrInvalidArgs, t.Name())
	}

	for _, name := range schema.Required {
		v, ok := fields[name]
		if !ok || string(v) == "null" {
			return fmt.Errorf("%w: %s: missing required field %q", ErrInvalidArgs, t.Name(), name)
		}
	}
	return nil
}
