// Package telegram implements the Telegram approval channel. Prompts are
// sent as messages with an inline approve/deny keyboard; responses arrive
// as callback queries or plain text replies through the gateway webhook.
package telegram

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/toolgate/internal/broker"
	"github.com/flemzord/toolgate/internal/channel"
	"github.com/flemzord/toolgate/internal/core"
	"github.com/flemzord/toolgate/pkg/approval"
)

func init() {
	core.RegisterModule(&Telegram{})
}

// Compile-time interface guards.
var (
	_ broker.Adapter         = (*Telegram)(nil)
	_ broker.ReminderSender  = (*Telegram)(nil)
	_ channel.InboundHandler = (*Telegram)(nil)
	_ core.Configurable      = (*Telegram)(nil)
	_ core.Provisioner       = (*Telegram)(nil)
	_ core.Validator         = (*Telegram)(nil)
	_ core.Starter           = (*Telegram)(nil)
	_ core.Stopper           = (*Telegram)(nil)
)

// Telegram implements the Telegram Bot API approval channel.
type Telegram struct {
	config Config
	client *Client
	logger *slog.Logger
	broker *broker.Broker
}

// ModuleInfo implements core.Module.
func (t *Telegram) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "channel.telegram",
		New: func() core.Module { return &Telegram{} },
	}
}

// Configure implements core.Configurable.
func (t *Telegram) Configure(node *yaml.Node) error {
	if err := node.Decode(&t.config); err != nil {
		return fmt.Errorf("telegram: decode config: %w", err)
	}
	t.config.defaults()
	return nil
}

// Provision implements core.Provisioner. It resolves the broker and joins
// the channel registry so approval requests can be routed here.
func (t *Telegram) Provision(ctx *core.AppContext) error {
	t.logger = ctx.Logger
	t.client = NewClient(t.config.Token, t.config.APIURL)

	svc, ok := ctx.Service("approval.broker")
	if !ok {
		return errors.New("telegram: approval.broker service not found")
	}
	b, ok := svc.(*broker.Broker)
	if !ok {
		return errors.New("telegram: approval.broker service has unexpected type")
	}
	t.broker = b

	svc, ok = ctx.Service("approval.channels")
	if !ok {
		return errors.New("telegram: approval.channels service not found")
	}
	reg, ok := svc.(*channel.Registry)
	if !ok {
		return errors.New("telegram: approval.channels service has unexpected type")
	}
	return reg.Register(t)
}

// Validate implements core.Validator.
func (t *Telegram) Validate() error {
	if t.config.Token == "" {
		return errors.New("telegram: token is required")
	}
	if t.config.WebhookURL == "" {
		return errors.New("telegram: webhook_url is required")
	}
	return t.config.validate()
}

// Start implements core.Starter. It validates the bot token and registers
// the webhook with Telegram.
func (t *Telegram) Start() error {
	user, err := t.client.GetMe(context.Background())
	if err != nil {
		return fmt.Errorf("telegram: getMe failed (check token): %w", err)
	}
	t.logger.Info("telegram bot authenticated", "id", user.ID, "username", user.Username)

	if t.config.WebhookSecret == "" {
		t.logger.Warn("telegram webhook running without secret_token — " +
			"consider setting webhook_secret for production deployments")
	}

	if err := t.client.SetWebhook(context.Background(), SetWebhookRequest{
		URL:            t.config.WebhookURL,
		SecretToken:    t.config.WebhookSecret,
		AllowedUpdates: []string{"message", "callback_query"},
	}); err != nil {
		return fmt.Errorf("telegram: setWebhook failed: %w", err)
	}
	t.logger.Info("telegram webhook configured", "url", t.config.WebhookURL)

	return nil
}

// Stop implements core.Stopper.
func (t *Telegram) Stop(ctx context.Context) error {
	if err := t.client.DeleteWebhook(ctx); err != nil {
		t.logger.Warn("telegram: failed to delete webhook on shutdown", "error", err)
	}
	return nil
}

// Name implements broker.Adapter.
func (t *Telegram) Name() string { return "telegram" }

// BuildPending implements broker.Adapter. Telegram needs no extra state on
// the pending record before delivery.
func (t *Telegram) BuildPending(*broker.Pending) {}

// SendApprovalRequest implements broker.Adapter. The prompt carries an
// inline keyboard whose callback data embeds the request ID.
func (t *Telegram) SendApprovalRequest(ctx context.Context, p *broker.Pending) error {
	chatID, err := strconv.ParseInt(p.Context.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid chat ID %q: %w", p.Context.ChatID, err)
	}

	msg, err := t.client.SendMessage(ctx, SendMessageRequest{
		ChatID:      chatID,
		Text:        renderPrompt(p),
		ReplyMarkup: approvalKeyboard(p.ID),
	})
	if err != nil {
		return err
	}

	p.SetHandle(strconv.Itoa(msg.MessageID))
	return nil
}

// SendReminder implements broker.ReminderSender.
func (t *Telegram) SendReminder(ctx context.Context, p *broker.Pending) error {
	chatID, err := strconv.ParseInt(p.Context.ChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid chat ID %q: %w", p.Context.ChatID, err)
	}

	_, err = t.client.SendMessage(ctx, SendMessageRequest{
		ChatID:      chatID,
		Text:        fmt.Sprintf("⏳ Still waiting on approval for %s (request %s).", p.ToolName, p.ID),
		ReplyMarkup: approvalKeyboard(p.ID),
	})
	return err
}

// HandleNoContext implements broker.Adapter. Without a conversation there
// is nobody to ask, so the call fails closed.
func (t *Telegram) HandleNoContext(toolName string, _ json.RawMessage) approval.Decision {
	return approval.Decision{
		Behavior: approval.Deny,
		Message:  fmt.Sprintf("tool %q requires approval but no telegram conversation is attached", toolName),
	}
}

// HandleSendFailure implements broker.Adapter.
func (t *Telegram) HandleSendFailure(p *broker.Pending, sendErr error) approval.Decision {
	return approval.Decision{
		Behavior: approval.Deny,
		Message:  fmt.Sprintf("could not deliver approval prompt to telegram chat %s: %v", p.Context.ChatID, sendErr),
	}
}

// HandleInbound implements channel.InboundHandler. It verifies the webhook
// secret, then resolves the referenced request from either a button tap or
// a text command ("approve <id>" / "deny <id> [reason]").
func (t *Telegram) HandleInbound(body []byte, header map[string][]string) error {
	if t.config.WebhookSecret != "" {
		got := ""
		if vals := header["X-Telegram-Bot-Api-Secret-Token"]; len(vals) > 0 {
			got = vals[0]
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(t.config.WebhookSecret)) != 1 {
			return errors.New("telegram: webhook secret token mismatch")
		}
	}

	var update Update
	if err := json.Unmarshal(body, &update); err != nil {
		return fmt.Errorf("%w: %v", channel.ErrBadPayload, err)
	}

	switch {
	case update.CallbackQuery != nil:
		t.handleCallback(update.CallbackQuery)
	case update.Message != nil:
		t.handleText(update.Message)
	}
	// Other update kinds are not approval responses; ignore them.
	return nil
}

// handleCallback processes an inline keyboard tap. The callback data is
// "approve:<id>" or "deny:<id>".
func (t *Telegram) handleCallback(cb *CallbackQuery) {
	verb, id, ok := strings.Cut(cb.Data, ":")
	if !ok || id == "" {
		return
	}

	var decision approval.Decision
	switch verb {
	case "approve":
		decision = approval.Decision{Behavior: approval.Allow}
	case "deny":
		decision = approval.Decision{Behavior: approval.Deny, Message: "denied via telegram"}
	default:
		return
	}

	responder := approval.Identity{
		Channel:  t.Name(),
		UserID:   strconv.FormatInt(cb.From.ID, 10),
		Username: cb.From.Username,
	}
	applied := t.broker.ResolveExternal(id, decision, responder)

	// The ack is the same whether the response counted or was ignored, so
	// a tap on someone else's prompt learns nothing.
	ctx := context.Background()
	if err := t.client.AnswerCallbackQuery(ctx, AnswerCallbackQueryRequest{
		CallbackQueryID: cb.ID,
		Text:            "Recorded.",
	}); err != nil {
		t.logger.Warn("telegram: answerCallbackQuery failed", "error", err)
	}

	// Strip the keyboard from the prompt so the buttons can't be tapped
	// again, and show the outcome inline.
	if cb.Message != nil && applied {
		outcome := "✅ approved"
		if !decision.Allowed() {
			outcome = "❌ denied"
		}
		_, err := t.client.EditMessageText(ctx, EditMessageTextRequest{
			ChatID:    cb.Message.Chat.ID,
			MessageID: cb.Message.MessageID,
			Text:      fmt.Sprintf("%s\n\n%s by @%s", cb.Message.Text, outcome, cb.From.Username),
		})
		if err != nil {
			t.logger.Warn("telegram: edit prompt after resolution failed", "error", err)
		}
	}
}

// handleText processes a plain text reply as an approval response.
func (t *Telegram) handleText(msg *Message) {
	if msg.From == nil {
		return
	}

	id, decision, ok := channel.ParseResponse(nil, msg.Text)
	if !ok {
		return
	}

	t.broker.ResolveExternal(id, decision, approval.Identity{
		Channel:  t.Name(),
		UserID:   strconv.FormatInt(msg.From.ID, 10),
		Username: msg.From.Username,
	})
}

// renderPrompt formats the approval request as a Telegram message.
func renderPrompt(p *broker.Pending) string {
	input := string(p.Input)
	if pretty, err := json.MarshalIndent(json.RawMessage(p.Input), "", "  "); err == nil {
		input = string(pretty)
	}
	if len(input) > 1000 {
		input = input[:1000] + "\n...(truncated)"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🔐 Approval required\n\nTool: %s\n", p.ToolName)
	if p.Context.Identity.Username != "" {
		fmt.Fprintf(&b, "Requested for: @%s\n", p.Context.Identity.Username)
	}
	fmt.Fprintf(&b, "\nInput:\n%s\n\nRequest: %s\nReply with the buttons below, or \"approve %s\" / \"deny %s <reason>\".",
		input, p.ID, p.ID, p.ID)
	return b.String()
}

// approvalKeyboard builds the approve/deny inline keyboard for a request.
func approvalKeyboard(id string) *InlineKeyboardMarkup {
	return &InlineKeyboardMarkup{
		InlineKeyboard: [][]InlineKeyboardButton{{
			{Text: "✅ Approve", CallbackData: "approve:" + id},
			{Text: "❌ Deny", CallbackData: "deny:" + id},
		}},
	}
}
