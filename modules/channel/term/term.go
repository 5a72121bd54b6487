// Package term implements a local terminal approval channel. Prompts are
// rendered as interactive confirm forms on the controlling TTY; whoever
// holds the terminal is the approver.
package term

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/charmbracelet/huh"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/toolgate/internal/broker"
	"github.com/flemzord/toolgate/internal/channel"
	"github.com/flemzord/toolgate/internal/core"
	"github.com/flemzord/toolgate/pkg/approval"
)

func init() {
	core.RegisterModule(&Term{})
}

// Compile-time interface guards.
var (
	_ broker.Adapter    = (*Term)(nil)
	_ core.Configurable = (*Term)(nil)
	_ core.Provisioner  = (*Term)(nil)
	_ core.Starter      = (*Term)(nil)
	_ core.Stopper      = (*Term)(nil)
)

// Config holds the terminal channel configuration.
type Config struct {
	// QueueSize bounds how many prompts may wait for the terminal at once.
	QueueSize int `yaml:"queue_size,omitempty"`
}

// Term renders approval prompts on the local terminal, one at a time.
type Term struct {
	config Config
	logger *slog.Logger
	broker *broker.Broker

	queue  chan *broker.Pending
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ModuleInfo implements core.Module.
func (t *Term) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "channel.term",
		New: func() core.Module { return &Term{} },
	}
}

// Configure implements core.Configurable.
func (t *Term) Configure(node *yaml.Node) error {
	if err := node.Decode(&t.config); err != nil {
		return fmt.Errorf("term: decode config: %w", err)
	}
	if t.config.QueueSize <= 0 {
		t.config.QueueSize = 16
	}
	return nil
}

// Provision implements core.Provisioner.
func (t *Term) Provision(ctx *core.AppContext) error {
	t.logger = ctx.Logger
	t.queue = make(chan *broker.Pending, t.config.QueueSize)

	svc, ok := ctx.Service("approval.broker")
	if !ok {
		return errors.New("term: approval.broker service not found")
	}
	b, ok := svc.(*broker.Broker)
	if !ok {
		return errors.New("term: approval.broker service has unexpected type")
	}
	t.broker = b

	svc, ok = ctx.Service("approval.channels")
	if !ok {
		return errors.New("term: approval.channels service not found")
	}
	reg, ok := svc.(*channel.Registry)
	if !ok {
		return errors.New("term: approval.channels service has unexpected type")
	}
	return reg.Register(t)
}

// Start implements core.Starter.
func (t *Term) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel

	t.wg.Add(1)
	go t.run(ctx)
	return nil
}

// Stop implements core.Stopper.
func (t *Term) Stop(context.Context) error {
	if t.cancel != nil {
		t.cancel()
	}
	t.wg.Wait()
	return nil
}

// run serializes prompts onto the terminal. Prompts already settled by
// another path (timeout, drain) are skipped.
func (t *Term) run(ctx context.Context) {
	defer t.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case p := <-t.queue:
			if t.broker.Resolved(p.ID) {
				continue
			}
			t.prompt(ctx, p)
		}
	}
}

// prompt runs one confirm form and resolves the request. The terminal user
// answers on behalf of the bound identity; holding the TTY is the trust
// boundary here.
func (t *Term) prompt(ctx context.Context, p *broker.Pending) {
	approved := false
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(fmt.Sprintf("Allow %s?", p.ToolName)).
			Description(renderInput(p.Input)).
			Affirmative("Approve").
			Negative("Deny").
			Value(&approved),
	))

	if err := form.RunWithContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			t.logger.Error("term: prompt failed", "request_id", p.ID, "error", err)
		}
		return
	}

	decision := approval.Decision{Behavior: approval.Deny, Message: "denied at terminal"}
	if approved {
		decision = approval.Decision{Behavior: approval.Allow}
	}
	t.broker.ResolveExternal(p.ID, decision, p.Context.Identity)
}

// Name implements broker.Adapter.
func (t *Term) Name() string { return "term" }

// BuildPending implements broker.Adapter.
func (t *Term) BuildPending(*broker.Pending) {}

// SendApprovalRequest implements broker.Adapter. Delivery means enqueueing
// for the terminal worker; a full queue is a delivery failure.
func (t *Term) SendApprovalRequest(_ context.Context, p *broker.Pending) error {
	select {
	case t.queue <- p:
		return nil
	default:
		return errors.New("term: prompt queue full")
	}
}

// HandleNoContext implements broker.Adapter.
func (t *Term) HandleNoContext(toolName string, _ json.RawMessage) approval.Decision {
	return approval.Decision{
		Behavior: approval.Deny,
		Message:  fmt.Sprintf("tool %q requires approval but no terminal session is attached", toolName),
	}
}

// HandleSendFailure implements broker.Adapter.
func (t *Term) HandleSendFailure(_ *broker.Pending, sendErr error) approval.Decision {
	return approval.Decision{
		Behavior: approval.Deny,
		Message:  fmt.Sprintf("could not queue approval prompt: %v", sendErr),
	}
}

// renderInput pretty-prints tool input for the confirm description.
func renderInput(input json.RawMessage) string {
	out := string(input)
	if pretty, err := json.MarshalIndent(json.RawMessage(input), "", "  "); err == nil {
		out = string(pretty)
	}
	if len(out) > 600 {
		out = out[:600] + "\n...(truncated)"
	}
	return strings.TrimSpace(out)
}
