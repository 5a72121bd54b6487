package gateway

import (
	"encoding/json"
	"net/http"
	"time"
)

// StatusResponse is the JSON response for GET /status.
type StatusResponse struct {
	Uptime   time.Duration `json:"uptime_seconds"`
	Pending  int           `json:"pending"`
	Channels []string      `json:"channels"`
}

// handleStatus returns an http.HandlerFunc for GET /status.
func (g *Gateway) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := StatusResponse{
			Uptime:   time.Since(g.startedAt).Truncate(time.Second),
			Channels: []string{},
		}

		if g.broker != nil {
			resp.Pending = len(g.broker.PendingSnapshot())
		}
		if g.channels != nil {
			resp.Channels = g.channels.Names()
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}
