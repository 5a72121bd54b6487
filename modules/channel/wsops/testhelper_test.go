package wsops

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/flemzord/toolgate/internal/broker"
	"github.com/flemzord/toolgate/internal/risk"
	"github.com/flemzord/toolgate/pkg/approval"
)

const testOperatorToken = "ops-secret-1"

// newTestWSOps wires a WSOps channel to a real broker and serves its
// handler on an httptest server. The returned URL is dialable with the
// websocket client.
func newTestWSOps(t *testing.T, cfg Config) (*WSOps, *broker.Broker, string) {
	t.Helper()

	if cfg.MaxClients <= 0 {
		cfg.MaxClients = 10
	}
	w := &WSOps{
		config:  cfg,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		clients: make(map[*client]struct{}),
		tokens:  make(map[string]struct{}, len(cfg.Tokens)),
	}
	for _, tok := range cfg.Tokens {
		w.tokens[tok] = struct{}{}
	}

	b := broker.New(broker.Options{
		Classifier: risk.NewClassifier(risk.Config{}),
		Adapters: broker.ResolverFunc(func(name string) (broker.Adapter, bool) {
			if name == "wsops" {
				return w, true
			}
			return nil, false
		}),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	w.broker = b

	srv := httptest.NewServer(http.HandlerFunc(w.handleWebSocket))
	t.Cleanup(srv.Close)
	return w, b, srv.URL
}

// dial opens a raw websocket connection to the test server.
func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dialing %s: %v", url, err)
	}
	t.Cleanup(func() {
		_ = conn.Close(websocket.StatusNormalClosure, "")
	})
	return conn
}

// sendEnvelope writes one frame to conn.
func sendEnvelope(t *testing.T, conn *websocket.Conn, env Envelope) {
	t.Helper()
	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshaling envelope: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("writing envelope: %v", err)
	}
}

// readEnvelope reads one frame from conn, failing the test on timeout.
func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("reading envelope: %v", err)
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshaling envelope: %v", err)
	}
	return env
}

// authenticate performs the auth handshake and returns the auth_response.
func authenticate(t *testing.T, conn *websocket.Conn, token, operator string) AuthResponse {
	t.Helper()
	sendEnvelope(t, conn, Envelope{
		Type:      MsgAuthRequest,
		ID:        "auth-1",
		Payload:   mustMarshal(AuthRequest{Token: token, Operator: operator}),
		Timestamp: time.Now(),
	})
	env := readEnvelope(t, conn)
	if env.Type != MsgAuthResponse {
		t.Fatalf("first reply type = %q, want %q", env.Type, MsgAuthResponse)
	}
	var resp AuthResponse
	if err := json.Unmarshal(env.Payload, &resp); err != nil {
		t.Fatalf("unmarshaling auth_response: %v", err)
	}
	return resp
}

// connectOperator dials and authenticates as operator, failing on rejection.
func connectOperator(t *testing.T, url, operator string) *websocket.Conn {
	t.Helper()
	conn := dial(t, url)
	if resp := authenticate(t, conn, testOperatorToken, operator); !resp.Accepted {
		t.Fatalf("authentication rejected: %s", resp.Reason)
	}
	return conn
}

// suspendRequest registers a dangerous call bound to operator userID and
// waits for the broker to record it as pending.
func suspendRequest(t *testing.T, b *broker.Broker, userID string) (string, <-chan approval.Decision) {
	t.Helper()

	decisions := make(chan approval.Decision, 1)
	go func() {
		d, _ := b.RequestApproval(context.Background(), broker.Request{
			Tool:  "Bash",
			Input: json.RawMessage(`{"command":"rm -rf build"}`),
			Context: &approval.Context{
				Channel: "wsops",
				Identity: approval.Identity{
					Channel: "wsops",
					UserID:  userID,
				},
			},
		})
		decisions <- d
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if infos := b.PendingSnapshot(); len(infos) == 1 {
			return infos[0].ID, decisions
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("request never became pending")
	return "", nil
}

// respond sends an approval_response for id as the connected operator.
func respond(t *testing.T, conn *websocket.Conn, id string, approved bool, reason string) {
	t.Helper()
	sendEnvelope(t, conn, Envelope{
		Type:      MsgApprovalResponse,
		ID:        fmt.Sprintf("resp-%s", id),
		Payload:   mustMarshal(ApprovalResponse{RequestID: id, Approved: approved, Reason: reason}),
		Timestamp: time.Now(),
	})
}
