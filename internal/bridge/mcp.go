// Package bridge exposes the tool registry to agents over the Model
// Context Protocol. Every call an agent makes lands in the executor, which
// consults the approval broker before a handler runs; the bridge itself
// never bypasses that gate.
package bridge

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/flemzord/toolgate/internal/tool"
	"github.com/flemzord/toolgate/pkg/approval"
)

// Bridge serves the tool registry over MCP, stdio or streamable HTTP.
type Bridge struct {
	executor  *tool.Executor
	mcpServer *server.MCPServer

	workspace string
	channel   string
	context   *approval.Context
}

// Options configures a Bridge. Executor is required.
type Options struct {
	Executor *tool.Executor
	Version  string

	// Workspace is the directory relative tool paths resolve against.
	Workspace string

	// Channel names the approval channel dangerous calls are routed to.
	Channel string

	// Context, when non-nil, binds every call to a conversation so the
	// prompt reaches a specific chat. Nil means headless: adapters fall
	// back to their no-context handling.
	Context *approval.Context
}

// New builds the MCP server and registers every tool in the registry.
func New(opts Options) *Bridge {
	b := &Bridge{
		executor:  opts.Executor,
		workspace: opts.Workspace,
		channel:   opts.Channel,
		context:   opts.Context,
	}

	version := opts.Version
	if version == "" {
		version = "dev"
	}

	s := server.NewMCPServer("toolgate", version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	for _, schema := range opts.Executor.Registry().Schemas() {
		t, err := opts.Executor.Registry().Get(schema.Name)
		if err != nil {
			continue
		}
		s.AddTool(
			mcp.NewToolWithRawSchema(schema.Name, t.Description(), schema.Schema),
			b.handlerFor(schema.Name),
		)
	}

	b.mcpServer = s
	return b
}

// handlerFor returns the MCP handler for one tool. All outcomes, including
// denials and handler errors, come back as tool results so the agent sees
// text instead of a protocol fault.
func (b *Bridge) handlerFor(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, err := json.Marshal(req.GetArguments())
		if err != nil {
			return mcp.NewToolResultError("invalid arguments: " + err.Error()), nil
		}

		out := b.executor.ExecuteSafe(ctx, tool.Call{
			Name:      name,
			Args:      args,
			Workspace: b.workspace,
			Channel:   b.channel,
			Context:   b.context,
		})
		if out.IsError {
			return mcp.NewToolResultError(out.Content), nil
		}
		return mcp.NewToolResultText(out.Content), nil
	}
}

// ServeStdio blocks serving MCP over stdin/stdout until EOF or signal.
func (b *Bridge) ServeStdio() error {
	return server.ServeStdio(b.mcpServer)
}

// HTTPHandler returns the streamable HTTP transport for mounting under the
// gateway. The endpoint path is whatever route it is mounted at.
func (b *Bridge) HTTPHandler() http.Handler {
	return server.NewStreamableHTTPServer(b.mcpServer,
		server.WithStateLess(true),
	)
}
