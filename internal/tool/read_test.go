package tool

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestReadTool_Basic(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("one\ntwo\nthree\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	rt := &ReadTool{}
	out, err := rt.Execute(context.Background(), json.RawMessage(`{"file_path":"a.txt"}`), ExecutionEnv{Workspace: dir})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	for _, want := range []string{"one", "two", "three"} {
		if !strings.Contains(out.Content, want) {
			t.Errorf("output missing line %q", want)
		}
	}
	if !strings.Contains(out.Content, "     1\t") {
		t.Error("output should carry line numbers")
	}
}

func TestReadTool_OffsetAndLimit(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("one\ntwo\nthree\nfour\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	rt := &ReadTool{}
	out, err := rt.Execute(context.Background(),
		json.RawMessage(`{"file_path":"a.txt","offset":2,"limit":2}`),
		ExecutionEnv{Workspace: dir})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if strings.Contains(out.Content, "one") {
		t.Error("offset should skip the first line")
	}
	if !strings.Contains(out.Content, "two") || !strings.Contains(out.Content, "three") {
		t.Errorf("output %q should contain lines two and three", out.Content)
	}
	if strings.Contains(out.Content, "four") {
		t.Error("limit should cut off line four")
	}
	if !strings.Contains(out.Content, "truncated") {
		t.Error("truncation marker expected when limit cuts the file")
	}
}

func TestReadTool_MissingFile(t *testing.T) {
	t.Parallel()
	rt := &ReadTool{}
	_, err := rt.Execute(context.Background(),
		json.RawMessage(`{"file_path":"does-not-exist.txt"}`),
		ExecutionEnv{Workspace: t.TempDir()})
	if err == nil {
		t.Error("reading a missing file should fail")
	}
}

func TestReadTool_Directory(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	rt := &ReadTool{}
	_, err := rt.Execute(context.Background(),
		json.RawMessage(`{"file_path":"."}`),
		ExecutionEnv{Workspace: dir})
	if err == nil || !strings.Contains(err.Error(), "directory") {
		t.Errorf("Execute on directory = %v, want directory error", err)
	}
}
