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

func TestGrepTool_FindsMatches(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.go"), []byte("package main\nfunc main() {}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "b.txt"), []byte("nothing here\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	gt := &GrepTool{}
	out, err := gt.Execute(context.Background(), json.RawMessage(`{"pattern":"func \\w+"}`), ExecutionEnv{Workspace: dir})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if !strings.Contains(out.Content, "a.go:2:") {
		t.Errorf("output %q should reference a.go line 2", out.Content)
	}
	if strings.Contains(out.Content, "b.txt") {
		t.Error("output should not reference non-matching files")
	}
}

func TestGrepTool_NoMatches(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	gt := &GrepTool{}
	out, err := gt.Execute(context.Background(), json.RawMessage(`{"pattern":"zzz"}`), ExecutionEnv{Workspace: dir})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(out.Content, "no matches") {
		t.Errorf("output = %q, want no-match marker", out.Content)
	}
}

func TestGrepTool_SkipsBinaryFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	binary := append([]byte("match\x00"), make([]byte, 64)...)
	if err := os.WriteFile(filepath.Join(dir, "blob.bin"), binary, 0o644); err != nil {
		t.Fatal(err)
	}

	gt := &GrepTool{}
	out, err := gt.Execute(context.Background(), json.RawMessage(`{"pattern":"match"}`), ExecutionEnv{Workspace: dir})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if strings.Contains(out.Content, "blob.bin") {
		t.Error("binary files must be skipped")
	}
}

func TestGrepTool_BadPattern(t *testing.T) {
	t.Parallel()
	gt := &GrepTool{}
	_, err := gt.Execute(context.Background(), json.RawMessage(`{"pattern":"("}`), ExecutionEnv{Workspace: t.TempDir()})
	if !errors.Is(err, ErrInvalidArgs) {
		t.Errorf("Execute = %v, want ErrInvalidArgs", err)
	}
}

func TestGrepTool_ExplicitPath(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "top.txt"), []byte("needle\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sub, "inner.txt"), []byte("needle\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	gt := &GrepTool{}
	out, err := gt.Execute(context.Background(), json.RawMessage(`{"pattern":"needle","path":"sub"}`), ExecutionEnv{Workspace: dir})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(out.Content, "inner.txt") {
		t.Error("output should cover the requested subdirectory")
	}
	if strings.Contains(out.Content, "top.txt") {
		t.Error("output should be limited to the requested path")
	}
}
