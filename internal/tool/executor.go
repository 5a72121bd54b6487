package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"unicode/utf8"

	"github.com/flemzord/toolgate/internal/broker"
	"github.com/flemzord/toolgate/internal/security"
	"github.com/flemzord/toolgate/pkg/approval"
)

// Call is one tool invocation submitted to the executor.
type Call struct {
	// Name and Args describe the tool call.
	Name string
	Args json.RawMessage

	// Workspace is the working directory relative paths resolve against.
	Workspace string

	// Channel names the approval channel when Context is absent.
	Channel string

	// Context is the conversation the call originated from; nil when the
	// agent runs without a reachable human.
	Context *approval.Context
}

// Executor dispatches tool calls after consuming the broker's decision.
type Executor struct {
	registry *Registry
	broker   *broker.Broker
	limiter  *security.RateLimiter
	audit    *security.AuditLogger
	logger   *slog.Logger
}

// ExecutorOptions configures an Executor. Registry and Broker are required;
// the rest may be nil.
type ExecutorOptions struct {
	Registry *Registry
	Broker   *broker.Broker
	Limiter  *security.RateLimiter
	Audit    *security.AuditLogger
	Logger   *slog.Logger
}

// NewExecutor creates an Executor from opts.
func NewExecutor(opts ExecutorOptions) *Executor {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		registry: opts.Registry,
		broker:   opts.Broker,
		limiter:  opts.Limiter,
		audit:    opts.Audit,
		logger:   logger.With("component", "executor"),
	}
}

// Execute runs one tool call: lookup → validation → rate limit → approval
// decision → handler. Lookup and validation failures happen before any
// side effect; a denied decision never reaches the handler.
func (e *Executor) Execute(ctx context.Context, call Call) (Output, error) {
	t, err := e.registry.Get(call.Name)
	if err != nil {
		return Output{}, err
	}

	if err := ValidateArgs(t, call.Args); err != nil {
		return Output{}, err
	}

	if err := e.limiter.Allow(security.BucketToolCall); err != nil {
		e.audit.Log(security.AuditEvent{
			Type:     security.EventRateLimit,
			ToolName: call.Name,
			Detail:   "tool call rate limit exceeded",
		})
		return Output{}, fmt.Errorf("tool %s: %w", call.Name, err)
	}

	e.audit.Log(security.AuditEvent{
		Type:     security.EventToolCall,
		ToolName: call.Name,
		Detail:   truncateForAudit(string(call.Args)),
	})

	decision, err := e.broker.RequestApproval(ctx, broker.Request{
		Tool:    call.Name,
		Input:   call.Args,
		Channel: call.Channel,
		Context: call.Context,
	})
	if err != nil {
		return Output{}, err
	}
	if !decision.Allowed() {
		return Output{}, fmt.Errorf("%w: %s: %s", ErrDenied, call.Name, decision.Message)
	}

	args := call.Args
	if decision.UpdatedInput != nil {
		args = decision.UpdatedInput
	}

	out, err := t.Execute(ctx, args, ExecutionEnv{Workspace: call.Workspace})

	detail := truncateForAudit(out.Content)
	if err != nil {
		detail = "error: " + err.Error()
	}
	e.audit.Log(security.AuditEvent{
		Type:     security.EventToolResult,
		ToolName: call.Name,
		Detail:   detail,
		Metadata: map[string]string{
			"is_error": fmt.Sprintf("%v", out.IsError || err != nil),
		},
	})

	return out, err
}

// ExecuteSafe wraps Execute so any failure — returned error or handler
// panic — becomes a structured Output with IsError set. The caller always
// receives text plus an error flag, never a raw fault.
func (e *Executor) ExecuteSafe(ctx context.Context, call Call) (out Output) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("tool handler panicked", "tool", call.Name, "panic", r)
			out = Output{Content: fmt.Sprintf("tool %s panicked: %v", call.Name, r), IsError: true}
		}
	}()

	out, err := e.Execute(ctx, call)
	if err != nil {
		return Output{Content: err.Error(), IsError: true}
	}
	return out
}

// Registry exposes the underlying registry for schema listing.
func (e *Executor) Registry() *Registry {
	return e.registry
}

// resolvePath resolves p against the workspace when it is relative.
func resolvePath(p, workspace string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(workspace, p)
}

// maxAuditDetailLen caps audit detail strings so large tool payloads do
// not bloat the log.
const maxAuditDetailLen = 4096

// truncateForAudit shortens s to maxAuditDetailLen, walking back to a
// valid UTF-8 rune boundary when the cut falls mid-rune.
func truncateForAudit(s string) string {
	if len(s) <= maxAuditDetailLen {
		return s
	}
	i := maxAuditDetailLen
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return s[:i] + "...(truncated)"
}
