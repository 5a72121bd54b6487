// Package broker implements the cross-channel approval state machine. It
// tracks in-flight approval requests, races them against timeouts and
// delivery failures, and guarantees each request resolves exactly once.
//
// The registry invariant: a request is in the pending map if and only if it
// is unresolved. Every terminal path funnels through a single removal step
// under the broker mutex, which is the linearization point that makes
// double resolution impossible even when two paths fire in the same
// scheduling instant.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/flemzord/toolgate/internal/risk"
	"github.com/flemzord/toolgate/internal/security"
	"github.com/flemzord/toolgate/pkg/approval"
)

const tracerName = "github.com/flemzord/toolgate/internal/broker"

// History records terminal transitions for later inspection. Implemented
// by the sqlite history store; nil disables persistence.
type History interface {
	Record(ctx context.Context, rec HistoryRecord) error
}

// HistoryRecord is one resolved approval request.
type HistoryRecord struct {
	ID         string    `json:"id"`
	ToolName   string    `json:"tool_name"`
	Channel    string    `json:"channel"`
	UserID     string    `json:"user_id"`
	Outcome    string    `json:"outcome"`
	Message    string    `json:"message,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	ResolvedAt time.Time `json:"resolved_at"`
}

// Config holds the broker's approval policy knobs.
type Config struct {
	// Timeout is how long a prompt may stay unanswered before the default
	// behavior applies. Zero or negative disables the timer: the request
	// can then only be resolved externally or by shutdown.
	Timeout time.Duration `yaml:"timeout"`

	// ChannelTimeouts overrides Timeout per channel name.
	ChannelTimeouts map[string]time.Duration `yaml:"channel_timeouts,omitempty"`

	// DefaultOnTimeout is the behavior applied when the timer fires.
	// Defaults to deny.
	DefaultOnTimeout approval.Behavior `yaml:"default_on_timeout"`
}

func (c *Config) defaults() {
	if c.DefaultOnTimeout == "" {
		c.DefaultOnTimeout = approval.Deny
	}
}

// Request is a tool call submitted for an approval decision.
type Request struct {
	// Tool and Input describe the call.
	Tool  string
	Input json.RawMessage

	// Channel names the adapter to deliver through. Optional when Context
	// is set, in which case Context.Channel wins.
	Channel string

	// Context is the conversation the call originated from. Nil means no
	// human is reachable; dangerous calls then fail closed through the
	// adapter's no-context handler.
	Context *approval.Context
}

func (r Request) channel() string {
	if r.Context != nil && r.Context.Channel != "" {
		return r.Context.Channel
	}
	return r.Channel
}

// Options configures a Broker. Classifier and Adapters are required.
type Options struct {
	Classifier *risk.Classifier
	Adapters   AdapterResolver
	Config     Config
	Logger     *slog.Logger
	Metrics    *Metrics
	Audit      *security.AuditLogger
	History    History

	// Now and NewID are injectable for tests.
	Now   func() time.Time
	NewID func() string
}

// Broker mediates approval of dangerous tool calls across channels.
type Broker struct {
	mu       sync.Mutex
	pending  map[string]*Pending
	draining bool

	classifier *risk.Classifier
	adapters   AdapterResolver
	cfg        Config
	logger     *slog.Logger
	metrics    *Metrics
	audit      *security.AuditLogger
	history    History
	tracer     trace.Tracer

	now   func() time.Time
	newID func() string
}

// New creates a Broker from opts.
func New(opts Options) *Broker {
	opts.Config.defaults()
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		// uuid v4: 122 bits of randomness. The ID doubles as a capability
		// to resolve the request, so never derive it from timestamps.
		opts.NewID = uuid.NewString
	}
	return &Broker{
		pending:    make(map[string]*Pending),
		classifier: opts.Classifier,
		adapters:   opts.Adapters,
		cfg:        opts.Config,
		logger:     opts.Logger.With("component", "broker"),
		metrics:    opts.Metrics,
		audit:      opts.Audit,
		history:    opts.History,
		tracer:     otel.Tracer(tracerName),
		now:        opts.Now,
		newID:      opts.NewID,
	}
}

// RequestApproval decides whether the tool call may run. Safe calls return
// immediately without any delivery. Dangerous calls register a pending
// record, deliver a prompt through the channel adapter, and suspend the
// caller until the first of: external resolution, timeout, delivery
// failure, or drain. Caller context cancellation also settles the entry.
func (b *Broker) RequestApproval(ctx context.Context, req Request) (approval.Decision, error) {
	ctx, span := b.tracer.Start(ctx, "broker.RequestApproval", trace.WithAttributes(
		attribute.String("tool.name", req.Tool),
		attribute.String("approval.channel", req.channel()),
	))
	defer span.End()

	// Fast path: safe tools never touch the registry or the channel.
	if !b.classifier.RequiresApproval(req.Tool, req.Input) {
		b.metrics.outcome(outcomeAllowedSafe)
		span.SetAttributes(attribute.String("approval.outcome", outcomeAllowedSafe))
		return approval.Decision{Behavior: approval.Allow, UpdatedInput: req.Input}, nil
	}

	adapter, ok := b.adapters.Adapter(req.channel())
	if !ok {
		b.logger.Warn("no adapter for dangerous tool call, denying",
			"tool", req.Tool, "channel", req.channel())
		b.metrics.outcome(outcomeNoChannel)
		return approval.Decision{
			Behavior: approval.Deny,
			Message:  fmt.Sprintf("no approval channel %q is configured", req.channel()),
		}, nil
	}

	// No conversation context means no reachable human: the adapter's
	// no-context handler decides, and its contract is to fail closed.
	if req.Context == nil {
		b.metrics.outcome(outcomeNoContext)
		span.SetAttributes(attribute.String("approval.outcome", outcomeNoContext))
		return adapter.HandleNoContext(req.Tool, req.Input), nil
	}

	p := &Pending{
		ID:        b.newID(),
		ToolName:  req.Tool,
		Input:     req.Input,
		Context:   *req.Context,
		CreatedAt: b.now(),
		done:      make(chan outcome, 1),
	}
	adapter.BuildPending(p)

	timeout := b.timeoutFor(adapter.Name())

	b.mu.Lock()
	if b.draining {
		b.mu.Unlock()
		return approval.Decision{}, ErrDraining
	}
	b.pending[p.ID] = p
	if timeout > 0 {
		id := p.ID
		p.timer = time.AfterFunc(timeout, func() { b.resolveTimeout(id, timeout) })
	}
	b.mu.Unlock()

	b.metrics.registered()
	b.audit.Log(security.AuditEvent{
		Type:      security.EventApprovalRequested,
		RequestID: p.ID,
		Channel:   p.Context.Channel,
		UserID:    p.Context.Identity.UserID,
		ToolName:  p.ToolName,
	})
	b.logger.Info("approval requested",
		"request_id", p.ID, "tool", p.ToolName,
		"channel", p.Context.Channel, "user", p.Context.Identity.UserID,
		"timeout", timeout)

	if err := adapter.SendApprovalRequest(ctx, p); err != nil {
		// Delivery failed: resolve as deny and make sure no orphaned
		// pending entry survives. The timer may already have won the
		// race; settle is a no-op then and the outcome below reflects
		// whichever path got there first.
		d := adapter.HandleSendFailure(p, err)
		d.Behavior = approval.Deny
		d.UpdatedInput = nil
		if d.Message == "" {
			d.Message = fmt.Sprintf("approval prompt delivery failed: %v", err)
		}
		b.settle(p.ID, outcome{decision: d}, outcomeSendFailure)
	}

	select {
	case out := <-p.done:
		span.SetAttributes(attribute.Bool("approval.allowed", out.err == nil && out.decision.Allowed()))
		return out.decision, out.err
	case <-ctx.Done():
		if b.removeAndFinish(p, outcomeCanceled) {
			return approval.Decision{}, ctx.Err()
		}
		// Lost the race: a terminal path already removed the entry and
		// its outcome is in flight.
		out := <-p.done
		return out.decision, out.err
	}
}

// ResolveExternal delivers a user's decision for the pending request id
// and reports whether it settled the request. Unknown or already-settled
// ids are logged and ignored, since this path is driven by untrusted
// external input. A response from an identity other than the one bound to
// the request is ignored and the request stays pending; the mismatch is
// never surfaced to the responder, so the existence of other users'
// requests does not leak. Adapters must not distinguish the false cases
// in anything they show the responder.
//
// Identity binding compares user identifiers only. There is no
// transport-level replay protection: a captured response payload could be
// replayed within the request's lifetime.
func (b *Broker) ResolveExternal(id string, decision approval.Decision, responder approval.Identity) bool {
	b.mu.Lock()
	p, ok := b.pending[id]
	if !ok {
		b.mu.Unlock()
		b.metrics.staleResponse()
		b.logger.Info("response for unknown or settled approval request", "request_id", id)
		return false
	}
	if !p.Context.Identity.Equal(responder) {
		b.mu.Unlock()
		b.metrics.identityMismatch()
		b.logger.Warn("approval response identity mismatch",
			"request_id", id,
			"bound_user", p.Context.Identity.UserID,
			"responder", responder.UserID)
		b.audit.Log(security.AuditEvent{
			Type:      security.EventAuthFailure,
			RequestID: id,
			Channel:   responder.Channel,
			UserID:    responder.UserID,
			Detail:    "approval response from non-requesting identity",
		})
		return false
	}
	delete(b.pending, id)
	b.mu.Unlock()

	if p.timer != nil {
		p.timer.Stop()
	}

	label := outcomeDenied
	switch decision.Behavior {
	case approval.Allow:
		label = outcomeApproved
		if decision.UpdatedInput == nil {
			decision.UpdatedInput = p.Input
		}
	default:
		decision.Behavior = approval.Deny
		decision.UpdatedInput = nil
		if decision.Message == "" {
			decision.Message = fmt.Sprintf("denied by %s", responder.UserID)
		}
	}

	b.finish(p, outcome{decision: decision}, label)
	return true
}

// Resolved reports whether a request id is no longer pending. Used by
// adapters that want to update their prompt rendering.
func (b *Broker) Resolved(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.pending[id]
	return !ok
}

// PendingSnapshot returns a point-in-time view of all pending requests,
// ordered arbitrarily. Used by the gateway and the reminder job.
func (b *Broker) PendingSnapshot() []Info {
	b.mu.Lock()
	defer b.mu.Unlock()

	infos := make([]Info, 0, len(b.pending))
	for _, p := range b.pending {
		infos = append(infos, p.info())
	}
	return infos
}

// RemindStale invokes the adapter's reminder hook for every request that
// has been pending longer than olderThan. Adapters without reminder
// support are skipped.
func (b *Broker) RemindStale(ctx context.Context, olderThan time.Duration) {
	now := b.now()

	b.mu.Lock()
	stale := make([]*Pending, 0, len(b.pending))
	for _, p := range b.pending {
		if p.Age(now) >= olderThan {
			stale = append(stale, p)
		}
	}
	b.mu.Unlock()

	for _, p := range stale {
		adapter, ok := b.adapters.Adapter(p.Context.Channel)
		if !ok {
			continue
		}
		sender, ok := adapter.(ReminderSender)
		if !ok {
			continue
		}
		if err := sender.SendReminder(ctx, p); err != nil {
			b.logger.Warn("approval reminder failed",
				"request_id", p.ID, "channel", p.Context.Channel, "error", err)
		}
	}
}

// Drain settles every pending request with approval.ErrShutdown and leaves
// the registry empty. It is all-or-nothing: the registry is swapped out
// under the lock, so no new resolution can race a half-drained state.
// Requests arriving after Drain are rejected with ErrDraining.
func (b *Broker) Drain() {
	b.mu.Lock()
	b.draining = true
	entries := b.pending
	b.pending = make(map[string]*Pending)
	b.mu.Unlock()

	for _, p := range entries {
		if p.timer != nil {
			p.timer.Stop()
		}
		b.finish(p, outcome{err: approval.ErrShutdown}, outcomeShutdown)
	}

	if len(entries) > 0 {
		b.logger.Info("drained pending approvals", "count", len(entries))
	}
}

// timeoutFor resolves the effective timeout for a channel.
func (b *Broker) timeoutFor(channel string) time.Duration {
	if d, ok := b.cfg.ChannelTimeouts[channel]; ok {
		return d
	}
	return b.cfg.Timeout
}

// resolveTimeout is the timer callback. The removal below is a no-op when
// another path already settled the request.
func (b *Broker) resolveTimeout(id string, elapsed time.Duration) {
	b.mu.Lock()
	p, ok := b.pending[id]
	if ok {
		delete(b.pending, id)
	}
	b.mu.Unlock()
	if !ok {
		return
	}

	behavior := b.cfg.DefaultOnTimeout
	d := approval.Decision{
		Behavior: behavior,
		Message:  fmt.Sprintf("no response after %s, defaulting to %s", elapsed, behavior),
	}
	if behavior == approval.Allow {
		d.UpdatedInput = p.Input
	}

	b.finish(p, outcome{decision: d}, outcomeTimeout)
}

// settle removes the entry and delivers out to the suspended caller.
// Returns false if the entry was already gone.
func (b *Broker) settle(id string, out outcome, label string) bool {
	b.mu.Lock()
	p, ok := b.pending[id]
	if ok {
		delete(b.pending, id)
	}
	b.mu.Unlock()
	if !ok {
		return false
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	b.finish(p, out, label)
	return true
}

// removeAndFinish removes the entry without sending an outcome; used when
// the suspended caller itself is going away (context cancellation).
func (b *Broker) removeAndFinish(p *Pending, label string) bool {
	b.mu.Lock()
	_, ok := b.pending[p.ID]
	if ok {
		delete(b.pending, p.ID)
	}
	b.mu.Unlock()
	if !ok {
		return false
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	b.bookkeep(p, approval.Decision{}, label)
	return true
}

// finish delivers the outcome to the waiting continuation and records the
// terminal transition. The done channel is buffered and finish is only
// reachable after the single registry removal, so the send never blocks
// and never happens twice.
func (b *Broker) finish(p *Pending, out outcome, label string) {
	p.done <- out
	b.bookkeep(p, out.decision, label)
}

func (b *Broker) bookkeep(p *Pending, decision approval.Decision, label string) {
	resolvedAt := b.now()
	b.metrics.settled(label, resolvedAt.Sub(p.CreatedAt))
	b.audit.Log(security.AuditEvent{
		Type:      security.EventApprovalResolved,
		RequestID: p.ID,
		Channel:   p.Context.Channel,
		UserID:    p.Context.Identity.UserID,
		ToolName:  p.ToolName,
		Detail:    label,
	})
	b.logger.Info("approval resolved",
		"request_id", p.ID, "tool", p.ToolName, "outcome", label)

	if b.history != nil {
		rec := HistoryRecord{
			ID:         p.ID,
			ToolName:   p.ToolName,
			Channel:    p.Context.Channel,
			UserID:     p.Context.Identity.UserID,
			Outcome:    label,
			Message:    decision.Message,
			CreatedAt:  p.CreatedAt,
			ResolvedAt: resolvedAt,
		}
		if err := b.history.Record(context.Background(), rec); err != nil {
			b.logger.Warn("recording approval history failed",
				"request_id", p.ID, "error", err)
		}
	}
}
