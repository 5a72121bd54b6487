package tool

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func runEdit(t *testing.T, dir, oldStr, newStr string) (Output, error) {
	t.Helper()
	et := &EditTool{}
	args, _ := json.Marshal(map[string]string{
		"file_path":  "a.txt",
		"old_string": oldStr,
		"new_string": newStr,
	})
	return et.Execute(context.Background(), args, ExecutionEnv{Workspace: dir})
}

func TestEditTool_Replace(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(path, []byte("hello world\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := runEdit(t, dir, "world", "gopher"); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	data, _ := os.ReadFile(path)
	if string(data) != "hello gopher\n" {
		t.Errorf("content = %q, want %q", data, "hello gopher\n")
	}
}

func TestEditTool_OldStringNotFound(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := runEdit(t, dir, "absent", "x")
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("Execute = %v, want not-found error", err)
	}
}

func TestEditTool_AmbiguousOldString(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("dup dup\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := runEdit(t, dir, "dup", "x")
	if err == nil || !strings.Contains(err.Error(), "unique") {
		t.Errorf("Execute = %v, want uniqueness error", err)
	}
}

func TestEditTool_IdenticalStrings(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := runEdit(t, dir, "hello", "hello")
	if !errors.Is(err, ErrInvalidArgs) {
		t.Errorf("Execute = %v, want ErrInvalidArgs", err)
	}
}

func TestEditTool_PreservesFileMode(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(path, []byte("secret\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := runEdit(t, dir, "secret", "public"); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("file mode = %v, want 0600 preserved", info.Mode().Perm())
	}
}
