package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/flemzord/toolgate/internal/broker"
	"github.com/flemzord/toolgate/internal/risk"
	"github.com/flemzord/toolgate/pkg/approval"
)

const testToken = "12345:test-token-hash"

// fakeAPI simulates the Telegram Bot API. It records every call and
// answers with canned successful responses unless a handler override is
// installed for the method.
type fakeAPI struct {
	mu        sync.Mutex
	calls     map[string][]json.RawMessage
	overrides map[string]http.HandlerFunc
	server    *httptest.Server
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	f := &fakeAPI{
		calls:     make(map[string][]json.RawMessage),
		overrides: make(map[string]http.HandlerFunc),
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeAPI) handle(w http.ResponseWriter, r *http.Request) {
	method := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	f.calls[method] = append(f.calls[method], json.RawMessage(body))
	override := f.overrides[method]
	f.mu.Unlock()

	if override != nil {
		override(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	switch method {
	case "getMe":
		fmt.Fprint(w, `{"ok":true,"result":{"id":42,"is_bot":true,"first_name":"gate","username":"gatebot"}}`)
	case "sendMessage", "editMessageText":
		fmt.Fprint(w, `{"ok":true,"result":{"message_id":777,"chat":{"id":100,"type":"private"}}}`)
	default:
		fmt.Fprint(w, `{"ok":true,"result":true}`)
	}
}

// override installs a custom response for one API method.
func (f *fakeAPI) override(method string, h http.HandlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.overrides[method] = h
}

// callCount returns how many times method was invoked.
func (f *fakeAPI) callCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls[method])
}

// lastCall decodes the most recent request body for method into v.
func (f *fakeAPI) lastCall(t *testing.T, method string, v any) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	calls := f.calls[method]
	if len(calls) == 0 {
		t.Fatalf("no calls recorded for %s", method)
	}
	if err := json.Unmarshal(calls[len(calls)-1], v); err != nil {
		t.Fatalf("decoding %s call: %v", method, err)
	}
}

// newTestTelegram wires a Telegram adapter to a fake API and a real broker.
func newTestTelegram(t *testing.T, api *fakeAPI, secret string) (*Telegram, *broker.Broker) {
	t.Helper()

	tg := &Telegram{
		config: Config{
			Token:         testToken,
			WebhookURL:    "https://gate.example.com/webhooks/telegram",
			WebhookSecret: secret,
			APIURL:        api.server.URL,
		},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	tg.client = NewClient(tg.config.Token, tg.config.APIURL)

	b := broker.New(broker.Options{
		Classifier: risk.NewClassifier(risk.Config{}),
		Adapters: broker.ResolverFunc(func(name string) (broker.Adapter, bool) {
			if name == "telegram" {
				return tg, true
			}
			return nil, false
		}),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	tg.broker = b
	return tg, b
}

// suspendRequest registers a dangerous call on the broker through the
// telegram adapter and waits for the prompt delivery.
func suspendRequest(t *testing.T, b *broker.Broker, userID int64) (string, <-chan approval.Decision) {
	t.Helper()

	decisions := make(chan approval.Decision, 1)
	go func() {
		d, _ := b.RequestApproval(context.Background(), broker.Request{
			Tool:  "Bash",
			Input: json.RawMessage(`{"command":"rm -rf build"}`),
			Context: &approval.Context{
				Channel: "telegram",
				ChatID:  "100",
				Identity: approval.Identity{
					Channel:  "telegram",
					UserID:   fmt.Sprintf("%d", userID),
					Username: "alice",
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

// callbackUpdate builds a single-button-tap update payload.
func callbackUpdate(data string, fromID int64) []byte {
	u := Update{
		UpdateID: 1,
		CallbackQuery: &CallbackQuery{
			ID:   "cbq-1",
			From: User{ID: fromID, Username: "alice"},
			Message: &Message{
				MessageID: 777,
				Chat:      Chat{ID: 100, Type: "private"},
				Text:      "Approval required",
			},
			Data: data,
		},
	}
	body, _ := json.Marshal(u)
	return body
}

// textUpdate builds a plain-text reply update payload.
func textUpdate(text string, fromID int64) []byte {
	u := Update{
		UpdateID: 2,
		Message: &Message{
			MessageID: 778,
			From:      &User{ID: fromID, Username: "alice"},
			Chat:      Chat{ID: 100, Type: "private"},
			Text:      text,
		},
	}
	body, _ := json.Marshal(u)
	return body
}
