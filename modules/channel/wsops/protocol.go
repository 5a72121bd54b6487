package wsops

import (
	"encoding/json"
	"time"
)

// Message types exchanged with operator clients.
const (
	MsgAuthRequest      = "auth_request"
	MsgAuthResponse     = "auth_response"
	MsgApprovalRequest  = "approval_request"
	MsgApprovalResponse = "approval_response"
	MsgReminder         = "reminder"
	MsgHeartbeat        = "heartbeat"
	MsgHeartbeatAck     = "heartbeat_ack"
	MsgError            = "error"
)

// Envelope is the wire frame for every message in both directions.
type Envelope struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// AuthRequest is the first message a client must send.
type AuthRequest struct {
	Token string `json:"token"`

	// Operator is the name responses are attributed to. It must match the
	// identity bound to a request for the response to count.
	Operator string `json:"operator"`
}

// AuthResponse acknowledges or rejects authentication.
type AuthResponse struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

// ApprovalRequest is pushed to operators when a tool call needs a decision.
type ApprovalRequest struct {
	RequestID string          `json:"request_id"`
	ToolName  string          `json:"tool_name"`
	Input     json.RawMessage `json:"input"`
	User      string          `json:"user,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// ApprovalResponse is an operator's decision for a pushed request.
type ApprovalResponse struct {
	RequestID string `json:"request_id"`
	Approved  bool   `json:"approved"`
	Reason    string `json:"reason,omitempty"`
}
