package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/flemzord/toolgate/internal/channel"
	"github.com/flemzord/toolgate/internal/security"
)

// maxWebhookBody caps inbound webhook payloads.
const maxWebhookBody = 1 << 20

// handleWebhook dispatches POST /webhooks/{channel} to the channel adapter's
// inbound handler. The channel name in the URL must match a registered
// adapter that accepts webhooks.
func (g *Gateway) handleWebhook() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "channel")
		if name == "" {
			http.Error(w, "missing channel", http.StatusBadRequest)
			return
		}

		if err := g.limiter.Allow(security.BucketResponse); err != nil {
			g.audit.Log(security.AuditEvent{
				Type:    security.EventRateLimit,
				Channel: name,
				Detail:  "webhook response rate limited",
			})
			http.Error(w, "too many requests", http.StatusTooManyRequests)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			http.Error(w, "failed to read body", http.StatusBadRequest)
			return
		}

		// Validate HMAC if a secret is configured for this channel.
		if cfg, ok := g.config.Webhooks[name]; ok && cfg.Secret != "" {
			sig := r.Header.Get("X-Signature-256")
			if !validateHMAC(body, sig, cfg.Secret) {
				g.audit.Log(security.AuditEvent{
					Type:    security.EventAuthFailure,
					Channel: name,
					Detail:  "invalid webhook signature",
				})
				http.Error(w, "invalid signature", http.StatusUnauthorized)
				return
			}
		}

		adapter, ok := g.channels.Adapter(name)
		if !ok {
			g.logger.Warn("webhook for unknown channel", "channel", name)
			http.Error(w, "unknown channel", http.StatusNotFound)
			return
		}

		handler, ok := adapter.(channel.InboundHandler)
		if !ok {
			http.Error(w, "channel does not accept webhooks", http.StatusNotFound)
			return
		}

		if err := handler.HandleInbound(body, r.Header); err != nil {
			if errors.Is(err, channel.ErrBadPayload) {
				http.Error(w, "bad payload", http.StatusBadRequest)
				return
			}
			g.logger.Error("webhook handler failed", "channel", name, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}
}

// validateHMAC checks an HMAC-SHA256 signature in constant time.
func validateHMAC(body []byte, signature, secret string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}
