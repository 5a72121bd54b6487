package gateway

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/flemzord/toolgate/internal/broker"
	"github.com/flemzord/toolgate/internal/core"
	"github.com/flemzord/toolgate/pkg/approval"
)

// handleListApprovals returns the pending approval requests, oldest first.
func (g *Gateway) handleListApprovals() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if g.broker == nil {
			http.Error(w, "broker not available", http.StatusServiceUnavailable)
			return
		}

		pending := g.broker.PendingSnapshot()
		sort.Slice(pending, func(i, j int) bool {
			return pending[i].CreatedAt.Before(pending[j].CreatedAt)
		})

		writeJSON(w, http.StatusOK, pending)
	}
}

// resolveRequest is the JSON body for POST /api/approvals/{id}.
type resolveRequest struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason,omitempty"`
}

// handleResolveApproval lets an authenticated operator approve or deny a
// pending request by ID. The response is attributed to the identity the
// request was originally sent to, since operator auth already gates access.
func (g *Gateway) handleResolveApproval() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.broker == nil {
			http.Error(w, "broker not available", http.StatusServiceUnavailable)
			return
		}

		id := chi.URLParam(r, "id")
		if id == "" {
			http.Error(w, "missing request id", http.StatusBadRequest)
			return
		}

		var body resolveRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}

		var target *broker.Info
		for _, info := range g.broker.PendingSnapshot() {
			if info.ID == id {
				target = &info
				break
			}
		}
		if target == nil {
			http.Error(w, "approval not found", http.StatusNotFound)
			return
		}

		behavior := approval.Deny
		if body.Approved {
			behavior = approval.Allow
		}
		// The snapshot lookup can race another resolution path; the broker
		// reports whether this response actually settled the request.
		if !g.broker.ResolveExternal(id, approval.Decision{
			Behavior: behavior,
			Message:  body.Reason,
		}, approval.Identity{
			Channel: target.Channel,
			UserID:  target.UserID,
		}) {
			http.Error(w, "approval not found", http.StatusNotFound)
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
	}
}

// handleApprovalHistory returns recent resolved approvals, newest first.
func (g *Gateway) handleApprovalHistory() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if g.history == nil {
			http.Error(w, "history not configured", http.StatusServiceUnavailable)
			return
		}

		limit := 50
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 || n > 1000 {
				http.Error(w, "invalid limit", http.StatusBadRequest)
				return
			}
			limit = n
		}

		records, err := g.history.Recent(r.Context(), limit)
		if err != nil {
			g.logger.Error("history query failed", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if records == nil {
			records = []broker.HistoryRecord{}
		}

		writeJSON(w, http.StatusOK, records)
	}
}

// handleListChannels returns registered channel names sorted.
func (g *Gateway) handleListChannels() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		names := []string{}
		if g.channels != nil {
			names = g.channels.Names()
			sort.Strings(names)
		}
		writeJSON(w, http.StatusOK, names)
	}
}

// handleListModules lists all compiled modules.
func (g *Gateway) handleListModules() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		mods := core.GetModules()
		ids := make([]string, 0, len(mods))
		for _, m := range mods {
			ids = append(ids, string(m.ID))
		}
		writeJSON(w, http.StatusOK, ids)
	}
}

// writeJSON encodes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
