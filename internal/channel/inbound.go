package channel

import (
	"encoding/json"
	"strings"

	"github.com/flemzord/toolgate/pkg/approval"
)

// rawResponse is the JSON shape shared by structured channels (websocket
// clients, raw webhook payloads).
type rawResponse struct {
	RequestID string `json:"request_id"`
	Approved  *bool  `json:"approved"`
	Reason    string `json:"reason,omitempty"`
}

// ParseResponse extracts an approval response from an inbound payload.
// It first tries the structured JSON form, then the plain-text form
// ("approve <id>" / "deny <id> [reason]"). Returns ok=false when the
// payload is not an approval response at all.
func ParseResponse(raw json.RawMessage, text string) (string, approval.Decision, bool) {
	if id, d, ok := parseRaw(raw); ok {
		return id, d, true
	}
	return parseText(text)
}

func parseRaw(raw json.RawMessage) (string, approval.Decision, bool) {
	if len(raw) == 0 {
		return "", approval.Decision{}, false
	}

	var payload rawResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return "", approval.Decision{}, false
	}
	if payload.RequestID == "" || payload.Approved == nil {
		return "", approval.Decision{}, false
	}

	return payload.RequestID, decision(*payload.Approved, payload.Reason), true
}

func parseText(text string) (string, approval.Decision, bool) {
	parts := strings.Fields(strings.TrimSpace(text))
	if len(parts) < 2 {
		return "", approval.Decision{}, false
	}

	switch strings.ToLower(parts[0]) {
	case "approve", "allow":
		return parts[1], decision(true, ""), true
	case "deny", "reject":
		reason := ""
		if len(parts) > 2 {
			reason = strings.Join(parts[2:], " ")
		}
		return parts[1], decision(false, reason), true
	default:
		return "", approval.Decision{}, false
	}
}

func decision(approved bool, reason string) approval.Decision {
	if approved {
		return approval.Decision{Behavior: approval.Allow, Message: reason}
	}
	return approval.Decision{Behavior: approval.Deny, Message: reason}
}
