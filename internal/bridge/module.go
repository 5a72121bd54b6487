package bridge

import (
	"errors"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/toolgate/internal/broker"
	"github.com/flemzord/toolgate/internal/core"
	"github.com/flemzord/toolgate/internal/security"
	"github.com/flemzord/toolgate/internal/tool"
	"github.com/flemzord/toolgate/pkg/approval"
)

func init() {
	core.RegisterModule(&Module{})
}

// ModuleConfig is the YAML configuration for the bridge.mcp module.
type ModuleConfig struct {
	// Workspace is the directory relative tool paths resolve against.
	// Relative values resolve against the app workspace.
	Workspace string `yaml:"workspace,omitempty"`

	// Channel is the approval channel dangerous tool calls are routed to.
	Channel string `yaml:"channel"`

	// ChatID and UserID, when set, bind calls to a conversation so prompts
	// land in a specific chat and only that user may respond.
	ChatID string `yaml:"chat_id,omitempty"`
	UserID string `yaml:"user_id,omitempty"`
}

// Module exposes the builtin tools over MCP streamable HTTP, mounted by
// the gateway. It also owns the executor other entry points share.
type Module struct {
	config ModuleConfig
	bridge *Bridge
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "bridge.mcp",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	return node.Decode(&m.config)
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	if m.config.Channel == "" {
		return errors.New("bridge.mcp: channel is required")
	}
	return nil
}

// Provision implements core.Provisioner. It builds the executor on top of
// the broker's services and registers the MCP handler for the gateway.
func (m *Module) Provision(ctx *core.AppContext) error {
	svc, ok := ctx.Service("approval.broker")
	if !ok {
		return errors.New("bridge.mcp: approval.broker service not available")
	}
	brk, ok := svc.(*broker.Broker)
	if !ok {
		return errors.New("bridge.mcp: approval.broker service has unexpected type")
	}

	var limiter *security.RateLimiter
	if svc, ok := ctx.Service("approval.limiter"); ok {
		limiter, _ = svc.(*security.RateLimiter)
	}
	var audit *security.AuditLogger
	if svc, ok := ctx.Service("approval.audit"); ok {
		audit, _ = svc.(*security.AuditLogger)
	}

	executor := tool.NewExecutor(tool.ExecutorOptions{
		Registry: tool.NewBuiltinRegistry(),
		Broker:   brk,
		Limiter:  limiter,
		Audit:    audit,
		Logger:   ctx.Logger,
	})

	workspace := m.config.Workspace
	if workspace == "" {
		workspace = ctx.Workspace
	}

	var callCtx *approval.Context
	if m.config.ChatID != "" {
		callCtx = &approval.Context{
			Channel: m.config.Channel,
			ChatID:  m.config.ChatID,
			Identity: approval.Identity{
				Channel: m.config.Channel,
				UserID:  m.config.UserID,
			},
		}
	}

	m.bridge = New(Options{
		Executor:  executor,
		Workspace: workspace,
		Channel:   m.config.Channel,
		Context:   callCtx,
	})

	ctx.RegisterService("tool.executor", executor)
	ctx.RegisterService("bridge.mcp", m.bridge)
	ctx.RegisterService("bridge.mcp_handler", m.bridge.HTTPHandler())
	return nil
}
