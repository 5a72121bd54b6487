package tool

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const (
	maxGrepMatches  = 200
	maxGrepFileSize = 4 << 20 // skip files larger than 4 MiB
)

// GrepTool searches file contents with a regular expression.
type GrepTool struct{}

// Name implements Tool.
func (t *GrepTool) Name() string { return "Grep" }

// Description implements Tool.
func (t *GrepTool) Description() string { return "Search file contents for a regular expression" }

// Schema implements Tool.
func (t *GrepTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"pattern": {"type": "string", "description": "Go regular expression"},
			"path": {"type": "string", "description": "File or directory to search; defaults to the workspace"}
		},
		"required": ["pattern"]
	}`)
}

// Execute implements Tool.
func (t *GrepTool) Execute(ctx context.Context, args json.RawMessage, env ExecutionEnv) (Output, error) {
	var in struct {
		Pattern string `json:"pattern"`
		Path    string `json:"path"`
	}
	if err := json.Unmarshal(args, &in); err != nil {
		return Output{}, fmt.Errorf("%w: Grep: %v", ErrInvalidArgs, err)
	}

	re, err := regexp.Compile(in.Pattern)
	if err != nil {
		return Output{}, fmt.Errorf("%w: Grep: bad pattern: %v", ErrInvalidArgs, err)
	}

	root := env.Workspace
	if in.Path != "" {
		root = resolvePath(in.Path, env.Workspace)
	}
	if root == "" {
		root = "."
	}

	var b strings.Builder
	matches := 0

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if name := d.Name(); name == ".git" || name == "node_modules" {
				return filepath.SkipDir
			}
			return nil
		}
		if info, err := d.Info(); err != nil || info.Size() > maxGrepFileSize {
			return nil
		}
		if matches >= maxGrepMatches {
			return filepath.SkipAll
		}
		grepFile(path, re, &b, &matches)
		return nil
	})
	if walkErr != nil {
		return Output{}, fmt.Errorf("Grep %s: %w", root, walkErr)
	}

	if matches == 0 {
		b.WriteString("no matches\n")
	} else if matches >= maxGrepMatches {
		b.WriteString("...(truncated)\n")
	}

	return Output{Content: b.String()}, nil
}

func grepFile(path string, re *regexp.Regexp, b *strings.Builder, matches *int) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	// Binary sniff on the first 512 bytes.
	head := make([]byte, 512)
	n, _ := f.Read(head)
	if bytes.IndexByte(head[:n], 0) >= 0 {
		return
	}
	if _, err := f.Seek(0, 0); err != nil {
		return
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if *matches >= maxGrepMatches {
			return
		}
		if re.Match(scanner.Bytes()) {
			fmt.Fprintf(b, "%s:%d:%s\n", path, lineNo, scanner.Text())
			*matches++
		}
	}
}
