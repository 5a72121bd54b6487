package broker

import (
	"context"
	"encoding/json"

	"github.com/flemzord/toolgate/pkg/approval"
)

// Adapter is the capability set a messaging platform must provide to the
// broker. One implementation exists per platform; the broker never sees
// platform SDK types. Adapters are composed into the broker by injection,
// not inheritance: the broker owns the state machine, the adapter owns
// rendering and parsing.
type Adapter interface {
	// Name is the channel identifier used in contexts and configuration.
	Name() string

	// BuildPending lets the adapter attach channel-specific state to a
	// freshly created pending record before delivery.
	BuildPending(p *Pending)

	// SendApprovalRequest renders and delivers a platform-native prompt
	// for the pending request. A returned error resolves the request as
	// an immediate deny; the broker never retries delivery, since a retry
	// could duplicate user-visible prompts.
	SendApprovalRequest(ctx context.Context, p *Pending) error

	// HandleNoContext produces the decision for a dangerous tool call
	// that carries no conversation context. There is no reachable human,
	// so implementations must fail closed with a deny-biased decision.
	HandleNoContext(toolName string, input json.RawMessage) approval.Decision

	// HandleSendFailure produces the diagnostic decision when delivery
	// failed. The broker forces the behavior to deny regardless of what
	// the adapter returns.
	HandleSendFailure(p *Pending, sendErr error) approval.Decision
}

// ReminderSender is optionally implemented by adapters that can re-notify
// a conversation about a still-pending approval. Reminders are distinct
// from delivery retries: the original prompt was delivered successfully.
type ReminderSender interface {
	SendReminder(ctx context.Context, p *Pending) error
}

// AdapterResolver looks up adapters by channel name. The channel registry
// implements it.
type AdapterResolver interface {
	Adapter(name string) (Adapter, bool)
}

// ResolverFunc adapts a lookup function to the AdapterResolver interface.
type ResolverFunc func(name string) (Adapter, bool)

// Adapter implements AdapterResolver.
func (f ResolverFunc) Adapter(name string) (Adapter, bool) { return f(name) }
