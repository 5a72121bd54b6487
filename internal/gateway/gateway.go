// Package gateway provides the HTTP surface of toolgate: channel webhooks,
// operator APIs for pending approvals and history, health, and Prometheus
// metrics. It binds to loopback by default and follows the module system
// pattern.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flemzord/toolgate/internal/broker"
	"github.com/flemzord/toolgate/internal/channel"
	"github.com/flemzord/toolgate/internal/core"
	"github.com/flemzord/toolgate/internal/security"
)

func init() {
	core.RegisterModule(&Gateway{})
}

// historyReader is the slice of the history store the gateway needs.
type historyReader interface {
	Recent(ctx context.Context, limit int) ([]broker.HistoryRecord, error)
}

// Gateway is the HTTP gateway module. It exposes health, metrics, webhook,
// and approval endpoints. It is a leaf module — nothing imports it.
type Gateway struct {
	config    Config
	appCtx    *core.AppContext
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time

	// Resolved lazily at Start() via service registry.
	broker   *broker.Broker
	channels *channel.Registry
	history  historyReader
	audit    *security.AuditLogger
	limiter  *security.RateLimiter
}

// ModuleInfo implements core.Module.
func (g *Gateway) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "gateway.http",
		New: func() core.Module { return &Gateway{} },
	}
}

// Configure implements core.Configurable.
func (g *Gateway) Configure(node *yaml.Node) error {
	if err := node.Decode(&g.config); err != nil {
		return err
	}
	g.config.defaults()
	return nil
}

// Provision implements core.Provisioner.
func (g *Gateway) Provision(ctx *core.AppContext) error {
	g.appCtx = ctx
	g.logger = ctx.Logger
	return nil
}

// Validate implements core.Validator.
func (g *Gateway) Validate() error {
	if _, err := net.ResolveTCPAddr("tcp", g.config.Bind); err != nil {
		return errors.New("gateway: invalid bind address: " + g.config.Bind)
	}
	return nil
}

// Start implements core.Starter. It resolves dependencies from the service
// registry (lazy binding) and starts the HTTP server.
func (g *Gateway) Start() error {
	if svc, ok := g.appCtx.Service("approval.broker"); ok {
		if b, ok := svc.(*broker.Broker); ok {
			g.broker = b
		}
	}
	if svc, ok := g.appCtx.Service("approval.channels"); ok {
		if reg, ok := svc.(*channel.Registry); ok {
			g.channels = reg
		}
	}
	if svc, ok := g.appCtx.Service("approval.history"); ok {
		if h, ok := svc.(historyReader); ok {
			g.history = h
		}
	}
	if svc, ok := g.appCtx.Service("approval.audit"); ok {
		if a, ok := svc.(*security.AuditLogger); ok {
			g.audit = a
		}
	}
	if svc, ok := g.appCtx.Service("approval.limiter"); ok {
		if rl, ok := svc.(*security.RateLimiter); ok {
			g.limiter = rl
		}
	}

	g.startedAt = time.Now()

	g.server = &http.Server{
		Addr:         g.config.Bind,
		Handler:      g.buildRouter(),
		ReadTimeout:  g.config.ReadTimeout,
		WriteTimeout: g.config.WriteTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", g.config.Bind)
	if err != nil {
		return errors.New("gateway: listen failed: " + err.Error())
	}

	go func() {
		g.logger.Info("gateway listening", "addr", g.config.Bind)
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()

	return nil
}

// Stop implements core.Stopper. Graceful shutdown with configured timeout.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	return g.server.Shutdown(shutdownCtx)
}
