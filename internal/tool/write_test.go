package tool

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteTool_CreatesFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	wt := &WriteTool{}
	args, _ := json.Marshal(map[string]string{"file_path": "out.txt", "content": "hello"})
	if _, err := wt.Execute(context.Background(), args, ExecutionEnv{Workspace: dir}); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "out.txt"))
	if err != nil {
		t.Fatalf("reading written file: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("content = %q, want %q", data, "hello")
	}
}

func TestWriteTool_CreatesParentDirs(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	wt := &WriteTool{}
	args, _ := json.Marshal(map[string]string{"file_path": "nested/deep/out.txt", "content": "x"})
	if _, err := wt.Execute(context.Background(), args, ExecutionEnv{Workspace: dir}); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "nested", "deep", "out.txt")); err != nil {
		t.Errorf("nested file not created: %v", err)
	}
}

func TestWriteTool_Overwrites(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")
	if err := os.WriteFile(path, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	wt := &WriteTool{}
	args, _ := json.Marshal(map[string]string{"file_path": path, "content": "new"})
	if _, err := wt.Execute(context.Background(), args, ExecutionEnv{}); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	data, _ := os.ReadFile(path)
	if string(data) != "new" {
		t.Errorf("content = %q, want %q", data, "new")
	}
}
