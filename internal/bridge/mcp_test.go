package bridge

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/flemzord/toolgate/internal/broker"
	"github.com/flemzord/toolgate/internal/risk"
	"github.com/flemzord/toolgate/internal/tool"
)

// newTestBridge builds a bridge over the builtin tools with no approval
// channel configured, so dangerous calls deny and safe calls run.
func newTestBridge(t *testing.T, workspace string) *Bridge {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	b := broker.New(broker.Options{
		Classifier: risk.NewClassifier(risk.Config{}),
		Adapters:   broker.ResolverFunc(func(string) (broker.Adapter, bool) { return nil, false }),
		Logger:     logger,
	})
	executor := tool.NewExecutor(tool.ExecutorOptions{
		Registry: tool.NewBuiltinRegistry(),
		Broker:   b,
		Logger:   logger,
	})
	return New(Options{
		Executor:  executor,
		Workspace: workspace,
		Channel:   "telegram",
	})
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

// resultText flattens a tool result's content for assertions.
func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	var sb strings.Builder
	for _, c := range res.Content {
		tc, ok := c.(mcp.TextContent)
		if !ok {
			t.Fatalf("unexpected content type %T", c)
		}
		sb.WriteString(tc.Text)
	}
	return sb.String()
}

func TestHandler_SafeToolRuns(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(path, []byte("hello bridge\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	b := newTestBridge(t, dir)
	res, err := b.handlerFor("Read")(context.Background(), callRequest("Read", map[string]any{
		"file_path": path,
	}))
	if err != nil {
		t.Fatalf("handler returned protocol error: %v", err)
	}
	if res.IsError {
		t.Fatalf("result is an error: %s", resultText(t, res))
	}
	if got := resultText(t, res); !strings.Contains(got, "hello bridge") {
		t.Errorf("result %q does not contain the file contents", got)
	}
}

func TestHandler_DenialComesBackAsToolResult(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	b := newTestBridge(t, dir)
	res, err := b.handlerFor("Write")(context.Background(), callRequest("Write", map[string]any{
		"file_path": filepath.Join(dir, "out.txt"),
		"content":   "nope",
	}))
	if err != nil {
		t.Fatalf("denial surfaced as protocol error: %v", err)
	}
	if !res.IsError {
		t.Fatal("denied call did not produce an error result")
	}
	if _, statErr := os.Stat(filepath.Join(dir, "out.txt")); statErr == nil {
		t.Error("denied Write created the file")
	}
}

func TestHandler_InvalidArgs(t *testing.T) {
	t.Parallel()
	b := newTestBridge(t, t.TempDir())

	res, err := b.handlerFor("Read")(context.Background(), callRequest("Read", map[string]any{}))
	if err != nil {
		t.Fatalf("handler returned protocol error: %v", err)
	}
	if !res.IsError {
		t.Fatal("missing required argument did not produce an error result")
	}
}

func TestNew_DefaultsVersion(t *testing.T) {
	t.Parallel()
	b := newTestBridge(t, t.TempDir())
	if b.mcpServer == nil {
		t.Fatal("bridge has no MCP server")
	}
	if b.HTTPHandler() == nil {
		t.Fatal("bridge has no HTTP transport")
	}
}
