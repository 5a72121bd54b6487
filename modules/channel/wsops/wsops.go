// Package wsops implements a WebSocket approval channel for operator
// consoles. Clients authenticate with a shared token, receive approval
// prompts as they are registered, and answer with structured responses.
// The gateway mounts the handler at /ws/ops.
package wsops

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/toolgate/internal/broker"
	"github.com/flemzord/toolgate/internal/channel"
	"github.com/flemzord/toolgate/internal/core"
	"github.com/flemzord/toolgate/pkg/approval"
)

func init() {
	core.RegisterModule(&WSOps{})
}

// Compile-time interface guards.
var (
	_ broker.Adapter        = (*WSOps)(nil)
	_ broker.ReminderSender = (*WSOps)(nil)
	_ core.Configurable     = (*WSOps)(nil)
	_ core.Provisioner      = (*WSOps)(nil)
	_ core.Validator        = (*WSOps)(nil)
	_ core.Stopper          = (*WSOps)(nil)
)

const authReadTimeout = 10 * time.Second

// Config holds the wsops channel configuration.
type Config struct {
	// Tokens authenticate connecting operator consoles.
	Tokens []string `yaml:"tokens"`

	// MaxClients caps concurrent operator connections.
	MaxClients int `yaml:"max_clients,omitempty"`
}

// client is one authenticated operator connection.
type client struct {
	conn     *websocket.Conn
	operator string

	mu sync.Mutex // serializes writes
}

// WSOps is the WebSocket operator channel module.
type WSOps struct {
	config Config
	logger *slog.Logger
	broker *broker.Broker
	tokens map[string]struct{}

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// ModuleInfo implements core.Module.
func (w *WSOps) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "channel.wsops",
		New: func() core.Module { return &WSOps{} },
	}
}

// Configure implements core.Configurable.
func (w *WSOps) Configure(node *yaml.Node) error {
	if err := node.Decode(&w.config); err != nil {
		return fmt.Errorf("wsops: decode config: %w", err)
	}
	if w.config.MaxClients <= 0 {
		w.config.MaxClients = 10
	}
	return nil
}

// Provision implements core.Provisioner.
func (w *WSOps) Provision(ctx *core.AppContext) error {
	w.logger = ctx.Logger
	w.clients = make(map[*client]struct{})
	w.tokens = make(map[string]struct{}, len(w.config.Tokens))
	for _, t := range w.config.Tokens {
		w.tokens[t] = struct{}{}
	}

	svc, ok := ctx.Service("approval.broker")
	if !ok {
		return errors.New("wsops: approval.broker service not found")
	}
	b, ok := svc.(*broker.Broker)
	if !ok {
		return errors.New("wsops: approval.broker service has unexpected type")
	}
	w.broker = b

	svc, ok = ctx.Service("approval.channels")
	if !ok {
		return errors.New("wsops: approval.channels service not found")
	}
	reg, ok := svc.(*channel.Registry)
	if !ok {
		return errors.New("wsops: approval.channels service has unexpected type")
	}
	if err := reg.Register(w); err != nil {
		return err
	}

	ctx.RegisterService("channel.wsops_handler", http.HandlerFunc(w.handleWebSocket))
	return nil
}

// Validate implements core.Validator.
func (w *WSOps) Validate() error {
	if len(w.tokens) == 0 {
		return errors.New("wsops: at least one token is required")
	}
	return nil
}

// Stop implements core.Stopper. It closes every operator connection.
func (w *WSOps) Stop(context.Context) error {
	w.mu.Lock()
	clients := make([]*client, 0, len(w.clients))
	for c := range w.clients {
		clients = append(clients, c)
	}
	w.clients = make(map[*client]struct{})
	w.mu.Unlock()

	for _, c := range clients {
		_ = c.conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
	return nil
}

// handleWebSocket runs one operator connection: auth, then a read loop of
// approval responses and heartbeats.
func (w *WSOps) handleWebSocket(rw http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(rw, r, nil)
	if err != nil {
		w.logger.Error("wsops: websocket accept failed", "error", err)
		return
	}
	defer func() {
		_ = conn.Close(websocket.StatusInternalError, "unexpected close")
	}()

	c, err := w.authenticate(r.Context(), conn)
	if err != nil {
		w.logger.Warn("wsops: authentication failed", "error", err)
		return
	}

	w.mu.Lock()
	if len(w.clients) >= w.config.MaxClients {
		w.mu.Unlock()
		_ = conn.Close(websocket.StatusTryAgainLater, "too many clients")
		return
	}
	w.clients[c] = struct{}{}
	w.mu.Unlock()

	w.logger.Info("wsops: operator connected", "operator", c.operator)
	w.readLoop(r.Context(), c)

	w.mu.Lock()
	delete(w.clients, c)
	w.mu.Unlock()
	w.logger.Info("wsops: operator disconnected", "operator", c.operator)
}

// authenticate reads the first frame, which must be an auth_request with a
// valid token.
func (w *WSOps) authenticate(ctx context.Context, conn *websocket.Conn) (*client, error) {
	authCtx, cancel := context.WithTimeout(ctx, authReadTimeout)
	defer cancel()

	_, data, err := conn.Read(authCtx)
	if err != nil {
		return nil, fmt.Errorf("read auth_request: %w", err)
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.Type != MsgAuthRequest {
		return nil, fmt.Errorf("expected auth_request, got %s", env.Type)
	}

	var req AuthRequest
	if err := json.Unmarshal(env.Payload, &req); err != nil {
		return nil, fmt.Errorf("unmarshal auth_request: %w", err)
	}

	c := &client{conn: conn, operator: req.Operator}

	if _, ok := w.tokens[req.Token]; !ok || req.Operator == "" {
		w.send(ctx, c, Envelope{
			Type:      MsgAuthResponse,
			ID:        env.ID,
			Payload:   mustMarshal(AuthResponse{Accepted: false, Reason: "invalid token or missing operator"}),
			Timestamp: time.Now(),
		})
		return nil, errors.New("invalid token or missing operator")
	}

	w.send(ctx, c, Envelope{
		Type:      MsgAuthResponse,
		ID:        env.ID,
		Payload:   mustMarshal(AuthResponse{Accepted: true}),
		Timestamp: time.Now(),
	})
	return c, nil
}

// readLoop consumes frames until the connection drops.
func (w *WSOps) readLoop(ctx context.Context, c *client) {
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			w.logger.Warn("wsops: invalid frame", "operator", c.operator, "error", err)
			continue
		}

		switch env.Type {
		case MsgHeartbeat:
			w.send(ctx, c, Envelope{Type: MsgHeartbeatAck, ID: env.ID, Timestamp: time.Now()})

		case MsgApprovalResponse:
			var resp ApprovalResponse
			if err := json.Unmarshal(env.Payload, &resp); err != nil || resp.RequestID == "" {
				w.logger.Warn("wsops: invalid approval_response", "operator", c.operator)
				continue
			}
			behavior := approval.Deny
			if resp.Approved {
				behavior = approval.Allow
			}
			w.broker.ResolveExternal(resp.RequestID,
				approval.Decision{Behavior: behavior, Message: resp.Reason},
				approval.Identity{Channel: w.Name(), UserID: c.operator},
			)

		default:
			w.logger.Warn("wsops: unexpected message type", "operator", c.operator, "type", env.Type)
		}
	}
}

// Name implements broker.Adapter.
func (w *WSOps) Name() string { return "wsops" }

// BuildPending implements broker.Adapter.
func (w *WSOps) BuildPending(*broker.Pending) {}

// SendApprovalRequest implements broker.Adapter. The prompt is broadcast to
// every connected operator; no connected operator is a delivery failure.
func (w *WSOps) SendApprovalRequest(ctx context.Context, p *broker.Pending) error {
	env := Envelope{
		Type:      MsgApprovalRequest,
		ID:        p.ID,
		Payload:   mustMarshal(promptPayload(p)),
		Timestamp: time.Now(),
	}
	if w.broadcast(ctx, env) == 0 {
		return errors.New("wsops: no operator connected")
	}
	return nil
}

// SendReminder implements broker.ReminderSender.
func (w *WSOps) SendReminder(ctx context.Context, p *broker.Pending) error {
	env := Envelope{
		Type:      MsgReminder,
		ID:        p.ID,
		Payload:   mustMarshal(promptPayload(p)),
		Timestamp: time.Now(),
	}
	if w.broadcast(ctx, env) == 0 {
		return errors.New("wsops: no operator connected")
	}
	return nil
}

// HandleNoContext implements broker.Adapter.
func (w *WSOps) HandleNoContext(toolName string, _ json.RawMessage) approval.Decision {
	return approval.Decision{
		Behavior: approval.Deny,
		Message:  fmt.Sprintf("tool %q requires approval but the call is not bound to an operator", toolName),
	}
}

// HandleSendFailure implements broker.Adapter.
func (w *WSOps) HandleSendFailure(_ *broker.Pending, sendErr error) approval.Decision {
	return approval.Decision{
		Behavior: approval.Deny,
		Message:  fmt.Sprintf("could not deliver approval prompt to operators: %v", sendErr),
	}
}

// broadcast writes env to every connected client and returns how many
// clients were reached.
func (w *WSOps) broadcast(ctx context.Context, env Envelope) int {
	w.mu.RLock()
	clients := make([]*client, 0, len(w.clients))
	for c := range w.clients {
		clients = append(clients, c)
	}
	w.mu.RUnlock()

	sent := 0
	for _, c := range clients {
		if w.send(ctx, c, env) {
			sent++
		}
	}
	return sent
}

// send marshals and writes one envelope; write errors are logged, not
// propagated, since the read loop will notice the dead connection.
func (w *WSOps) send(ctx context.Context, c *client, env Envelope) bool {
	data, err := json.Marshal(env)
	if err != nil {
		w.logger.Error("wsops: marshal envelope failed", "error", err)
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		w.logger.Warn("wsops: write failed", "operator", c.operator, "error", err)
		return false
	}
	return true
}

func promptPayload(p *broker.Pending) ApprovalRequest {
	return ApprovalRequest{
		RequestID: p.ID,
		ToolName:  p.ToolName,
		Input:     p.Input,
		User:      p.Context.Identity.UserID,
		CreatedAt: p.CreatedAt,
	}
}

func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
