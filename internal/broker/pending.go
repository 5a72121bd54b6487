package broker

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/flemzord/toolgate/pkg/approval"
)

// outcome is what a suspended caller receives: exactly one of a decision
// or an error, produced by exactly one terminal path.
type outcome struct {
	decision approval.Decision
	err      error
}

// Pending is one in-flight approval request. It exists in the broker's
// registry for exactly as long as it is unresolved; removal from the
// registry and delivery of the outcome are a single atomic step.
type Pending struct {
	// ID is the opaque request identifier. Possession of it acts as a
	// capability to resolve this request, so it must be unguessable.
	ID string

	// ToolName and Input describe the gated tool call.
	ToolName string
	Input    json.RawMessage

	// Context binds the request to the originating conversation and user.
	Context approval.Context

	// CreatedAt is when the request entered the registry.
	CreatedAt time.Time

	mu     sync.Mutex
	handle string

	// timer fires the timeout path; armed only when the channel's
	// configured timeout is positive. Guarded by the broker mutex.
	timer *time.Timer

	// done carries the single outcome to the suspended caller.
	// Buffered so resolution never blocks on the consumer.
	done chan outcome
}

// SetHandle records a platform message handle (e.g. the sent prompt's
// message ID) so the adapter can edit the prompt after resolution.
func (p *Pending) SetHandle(h string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handle = h
}

// Handle returns the platform message handle, if one was recorded.
func (p *Pending) Handle() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handle
}

// Age returns how long the request has been pending relative to now.
func (p *Pending) Age(now time.Time) time.Duration {
	return now.Sub(p.CreatedAt)
}

// Info is a read-only snapshot of a pending request, safe to hand to the
// gateway and the reminder job.
type Info struct {
	ID        string    `json:"id"`
	ToolName  string    `json:"tool_name"`
	Channel   string    `json:"channel"`
	ChatID    string    `json:"chat_id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (p *Pending) info() Info {
	return Info{
		ID:        p.ID,
		ToolName:  p.ToolName,
		Channel:   p.Context.Channel,
		ChatID:    p.Context.ChatID,
		UserID:    p.Context.Identity.UserID,
		CreatedAt: p.CreatedAt,
	}
}
