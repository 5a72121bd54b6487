// Package channel holds the registry of approval channel adapters and the
// shared parsing of inbound approval responses. Platform specifics live in
// the concrete adapters under modules/channel; this package and the broker
// never import an SDK type.
package channel

import (
	"sync"

	"github.com/flemzord/toolgate/internal/broker"
)

// InboundHandler is optionally implemented by adapters that receive
// responses through the gateway's webhook endpoint.
type InboundHandler interface {
	// HandleInbound parses a platform callback payload and, when it is an
	// approval response, resolves the referenced request via the broker.
	// Payloads that are not approval responses are ignored without error.
	HandleInbound(body []byte, header map[string][]string) error
}

// Registry maps channel names to their adapters. It implements
// broker.AdapterResolver so it can be injected into the broker directly.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]broker.Adapter
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]broker.Adapter)}
}

// Register adds an adapter under its own name. Returns ErrDuplicateChannel
// if the name is already taken.
func (r *Registry) Register(a broker.Adapter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := a.Name()
	if name == "" {
		return ErrEmptyChannelName
	}
	if _, exists := r.adapters[name]; exists {
		return ErrDuplicateChannel
	}
	r.adapters[name] = a
	return nil
}

// Adapter implements broker.AdapterResolver.
func (r *Registry) Adapter(name string) (broker.Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	return a, ok
}

// Names returns all registered channel names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	return names
}
