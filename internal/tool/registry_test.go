package tool

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

type stubTool struct {
	name   string
	schema string
	run    func(ctx context.Context, args json.RawMessage, env ExecutionEnv) (Output, error)
}

func (s *stubTool) Name() string        { return s.name }
func (s *stubTool) Description() string { return "stub" }

func (s *stubTool) Schema() json.RawMessage {
	if s.schema == "" {
		return json.RawMessage(`{"type":"object","properties":{}}`)
	}
	return json.RawMessage(s.schema)
}

func (s *stubTool) Execute(ctx context.Context, args json.RawMessage, env ExecutionEnv) (Output, error) {
	if s.run == nil {
		return Output{Content: "ok"}, nil
	}
	return s.run(ctx, args, env)
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	st := &stubTool{name: "Deploy"}

	if err := r.Register(st); err != nil {
		t.Fatalf("Register: %v", err)
	}

	got, err := r.Get("Deploy")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != st {
		t.Error("Get returned wrong tool instance")
	}
}

func TestRegistry_GetUnknown(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	_, err := r.Get("Nonexistent")
	if !errors.Is(err, ErrUnknownTool) {
		t.Errorf("Get(unknown) = %v, want ErrUnknownTool", err)
	}
}

func TestRegistry_RegisterDuplicate(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	if err := r.Register(&stubTool{name: "Deploy"}); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	err := r.Register(&stubTool{name: "Deploy"})
	if !errors.Is(err, ErrDuplicateTool) {
		t.Errorf("second Register = %v, want ErrDuplicateTool", err)
	}
}

func TestRegistry_RegisterEmptyName(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	err := r.Register(&stubTool{name: "  "})
	if !errors.Is(err, ErrEmptyToolName) {
		t.Errorf("Register = %v, want ErrEmptyToolName", err)
	}
}

func TestNewBuiltinRegistry(t *testing.T) {
	t.Parallel()
	r := NewBuiltinRegistry()

	want := []string{"Bash", "Edit", "Glob", "Grep", "Read", "Write"}
	got := r.Names()
	if len(got) != len(want) {
		t.Fatalf("Names() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Names() = %v, want %v", got, want)
		}
	}
}

func TestRegistry_SchemasSorted(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	_ = r.Register(&stubTool{name: "Zeta"})
	_ = r.Register(&stubTool{name: "Alpha"})

	schemas := r.Schemas()
	if len(schemas) != 2 {
		t.Fatalf("Schemas() length = %d, want 2", len(schemas))
	}
	if schemas[0].Name != "Alpha" || schemas[1].Name != "Zeta" {
		t.Errorf("Schemas() order = [%s %s], want [Alpha Zeta]", schemas[0].Name, schemas[1].Name)
	}
}

func TestValidateArgs(t *testing.T) {
	t.Parallel()
	st := &stubTool{
		name:   "Deploy",
		schema: `{"type":"object","properties":{"target":{"type":"string"}},"required":["target"]}`,
	}

	tests := []struct {
		name    string
		args    string
		wantErr bool
	}{
		{"required present", `{"target":"staging"}`, false},
		{"required missing", `{}`, true},
		{"required null", `{"target":null}`, true},
		{"extra fields ignored", `{"target":"prod","dry_run":true}`, false},
		{"not an object", `[1,2]`, true},
		{"empty input", ``, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var args json.RawMessage
			if tt.args != "" {
				args = json.RawMessage(tt.args)
			}
			err := ValidateArgs(st, args)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateArgs(%s) error = %v, wantErr %v", tt.args, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidArgs) {
				t.Errorf("error = %v, want ErrInvalidArgs", err)
			}
		})
	}
}

func TestValidateArgs_NoRequiredFields(t *testing.T) {
	t.Parallel()
	st := &stubTool{name: "Ping"}
	if err := ValidateArgs(st, nil); err != nil {
		t.Errorf("ValidateArgs(nil) = %v, want nil for schema without required fields", err)
	}
}
