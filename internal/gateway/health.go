package gateway

import (
	"encoding/json"
	"net/http"
)

// HealthResponse is the JSON response for GET /health.
type HealthResponse struct {
	Status   string   `json:"status"`
	Pending  int      `json:"pending"`
	Channels []string `json:"channels"`
}

// handleHealth returns an http.HandlerFunc for GET /health. The gateway is
// healthy as long as it can reach the broker; a broker that was never wired
// reports degraded.
func (g *Gateway) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		resp := HealthResponse{Status: "ok", Channels: []string{}}

		if g.broker != nil {
			resp.Pending = len(g.broker.PendingSnapshot())
		} else {
			resp.Status = "degraded"
		}
		if g.channels != nil {
			resp.Channels = g.channels.Names()
		}

		w.Header().Set("Content-Type", "application/json")
		if resp.Status == "degraded" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(resp)
	}
}
