package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Public — no auth required.
	r.Get("/health", g.handleHealth())
	r.Handle("/metrics", promhttp.Handler())

	// Webhooks — per-channel verification, not bearer auth.
	r.Post("/webhooks/{channel}", g.handleWebhook())

	// Operator WebSocket — resolves approvals interactively.
	if svc, ok := g.appCtx.Service("channel.wsops_handler"); ok {
		if handler, ok := svc.(http.Handler); ok {
			r.Handle("/ws/ops", handler)
		}
	}

	// MCP over streamable HTTP — the agent-facing tool surface.
	if svc, ok := g.appCtx.Service("bridge.mcp_handler"); ok {
		if handler, ok := svc.(http.Handler); ok {
			r.Handle("/mcp", handler)
			r.Handle("/mcp/*", handler)
		}
	}

	// Operator endpoints — auth required. Not mounted if no auth configured.
	if g.config.Auth.IsConfigured() {
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware(g.config.Auth, g.audit, g.limiter))
			r.Get("/status", g.handleStatus())
			r.Route("/api", func(r chi.Router) {
				r.Get("/approvals", g.handleListApprovals())
				r.Post("/approvals/{id}", g.handleResolveApproval())
				r.Get("/approvals/history", g.handleApprovalHistory())
				r.Get("/channels", g.handleListChannels())
				r.Get("/modules", g.handleListModules())
			})
		})
	}

	return r
}
