package channel

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/flemzord/toolgate/internal/broker"
	"github.com/flemzord/toolgate/pkg/approval"
)

// MockAdapter is a test double implementing broker.Adapter and
// broker.ReminderSender. It records delivered prompts and reminders and
// allows overriding delivery behavior per test.
type MockAdapter struct {
	ChannelName string

	// SendFunc, if set, is called instead of the default recording send.
	SendFunc func(ctx context.Context, p *broker.Pending) error

	// NoContextFunc, if set, overrides the default deny on no context.
	NoContextFunc func(toolName string, input json.RawMessage) approval.Decision

	mu        sync.Mutex
	sent      []*broker.Pending
	reminders []*broker.Pending
}

// Compile-time interface guards.
var (
	_ broker.Adapter        = (*MockAdapter)(nil)
	_ broker.ReminderSender = (*MockAdapter)(nil)
)

// Name implements broker.Adapter.
func (m *MockAdapter) Name() string {
	if m.ChannelName == "" {
		return "mock"
	}
	return m.ChannelName
}

// BuildPending implements broker.Adapter.
func (m *MockAdapter) BuildPending(*broker.Pending) {}

// SendApprovalRequest records the pending request, or delegates to SendFunc.
func (m *MockAdapter) SendApprovalRequest(ctx context.Context, p *broker.Pending) error {
	if m.SendFunc != nil {
		return m.SendFunc(ctx, p)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, p)
	return nil
}

// HandleNoContext denies by default: no reachable human means fail closed.
func (m *MockAdapter) HandleNoContext(toolName string, input json.RawMessage) approval.Decision {
	if m.NoContextFunc != nil {
		return m.NoContextFunc(toolName, input)
	}
	return approval.Decision{
		Behavior: approval.Deny,
		Message:  "approval required but no conversation context is available",
	}
}

// HandleSendFailure implements broker.Adapter.
func (m *MockAdapter) HandleSendFailure(_ *broker.Pending, sendErr error) approval.Decision {
	return approval.Decision{
		Behavior: approval.Deny,
		Message:  "could not deliver approval prompt: " + sendErr.Error(),
	}
}

// SendReminder implements broker.ReminderSender.
func (m *MockAdapter) SendReminder(_ context.Context, p *broker.Pending) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reminders = append(m.reminders, p)
	return nil
}

// Sent returns a copy of all prompts delivered through this adapter.
func (m *MockAdapter) Sent() []*broker.Pending {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]*broker.Pending, len(m.sent))
	copy(cp, m.sent)
	return cp
}

// Reminders returns a copy of all reminders sent through this adapter.
func (m *MockAdapter) Reminders() []*broker.Pending {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]*broker.Pending, len(m.reminders))
	copy(cp, m.reminders)
	return cp
}
