// Package approval defines the wire-level types exchanged between the
// broker, channel adapters, and the tool executor. It is the only package
// channels and the broker both depend on.
package approval

import (
	"encoding/json"
	"errors"
)

// Behavior is the outcome of an approval decision.
type Behavior string

// Behavior values.
const (
	Allow Behavior = "allow"
	Deny  Behavior = "deny"
)

// Decision is the result delivered to a caller waiting on an approval.
type Decision struct {
	// Behavior is allow or deny.
	Behavior Behavior `json:"behavior"`

	// UpdatedInput carries the (possibly edited) tool input. Only meaningful
	// when Behavior is Allow; it has the same shape as the original input.
	UpdatedInput json.RawMessage `json:"updatedInput,omitempty"`

	// Message is a human-readable reason. Always set on Deny and on
	// defaulted outcomes such as timeouts.
	Message string `json:"message,omitempty"`
}

// Allowed reports whether the decision permits execution.
func (d Decision) Allowed() bool {
	return d.Behavior == Allow
}

// Identity names the user bound to an approval request or response.
// Only a response from the same identity may resolve a pending request.
type Identity struct {
	Channel  string `json:"channel"`
	UserID   string `json:"user_id"`
	Username string `json:"username,omitempty"`
}

// Equal reports whether two identities refer to the same user on the
// same channel. Username is display-only and not compared.
func (i Identity) Equal(other Identity) bool {
	return i.Channel == other.Channel && i.UserID == other.UserID
}

// Context binds an approval request to the channel conversation it came
// from. The broker treats it as opaque apart from the identity check; the
// channel adapter interprets ChatID and Metadata.
type Context struct {
	// Channel is the adapter name the prompt must be delivered through.
	Channel string `json:"channel"`

	// ChatID identifies the conversation on the platform.
	ChatID string `json:"chat_id"`

	// Identity is the user who initiated the tool call. A response must
	// come from this identity to resolve the request.
	Identity Identity `json:"identity"`

	// Metadata carries adapter-specific extras (thread IDs, locales, ...).
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Sentinel errors shared across the approval pipeline.
var (
	// ErrShutdown is delivered to every caller still suspended when the
	// broker drains during teardown.
	ErrShutdown = errors.New("approval: broker shutting down")

	// ErrValidation indicates malformed tool input rejected before dispatch.
	ErrValidation = errors.New("approval: invalid tool input")
)
