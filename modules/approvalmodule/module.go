// Package approvalmodule glues the approval broker into the module system.
// It lives outside package broker so that broker and channel do not import
// each other.
package approvalmodule

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	"github.com/flemzord/toolgate/internal/broker"
	"github.com/flemzord/toolgate/internal/channel"
	"github.com/flemzord/toolgate/internal/core"
	"github.com/flemzord/toolgate/internal/history"
	"github.com/flemzord/toolgate/internal/risk"
	"github.com/flemzord/toolgate/internal/sched"
	"github.com/flemzord/toolgate/internal/security"
	"github.com/flemzord/toolgate/pkg/approval"
)

func init() {
	core.RegisterModule(&Module{})
}

// Duration wraps time.Duration with YAML decoding from strings like "90s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// ModuleConfig is the YAML configuration for the approval.broker module.
type ModuleConfig struct {
	// Timeout is the default approval timeout; "0s" disables the timer.
	Timeout Duration `yaml:"timeout"`

	// ChannelTimeouts overrides Timeout per channel.
	ChannelTimeouts map[string]Duration `yaml:"channel_timeouts,omitempty"`

	// DefaultOnTimeout is "allow" or "deny". Defaults to deny.
	DefaultOnTimeout string `yaml:"default_on_timeout,omitempty"`

	// RemindAfter re-notifies channels about approvals pending longer than
	// this. Zero disables reminders.
	RemindAfter Duration `yaml:"remind_after,omitempty"`

	// RemindSchedule is the cron expression for the reminder job.
	RemindSchedule string `yaml:"remind_schedule,omitempty"`

	// QuietHours suppresses reminders during a daily window, e.g.
	// "23:00-07:00". The original prompt is always delivered; only
	// re-notification pauses.
	QuietHours string `yaml:"quiet_hours,omitempty"`

	// Timezone interprets QuietHours. Defaults to UTC.
	Timezone string `yaml:"timezone,omitempty"`

	// HistoryPath is the SQLite file for the approval history. Relative
	// paths resolve against the data directory. Empty disables history.
	HistoryPath string `yaml:"history_path,omitempty"`

	// AuditLog is the JSONL audit file. Empty disables audit logging.
	AuditLog string `yaml:"audit_log,omitempty"`

	// Risk configures the classifier policy table.
	Risk risk.Config `yaml:"risk,omitempty"`

	// RateLimits configures the pipeline rate limiter.
	RateLimits security.RateLimitConfig `yaml:"rate_limits,omitempty"`
}

// Module glues the broker into the module system. It owns the channel
// registry, the classifier, the audit logger, the history store, and the
// reminder scheduler, and exposes them as services.
type Module struct {
	config ModuleConfig

	broker    *broker.Broker
	channels  *channel.Registry
	historyDB *history.Store
	auditFile *os.File
	scheduler *sched.Scheduler
}

// ModuleInfo implements core.Module.
func (m *Module) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  "approval.broker",
		New: func() core.Module { return &Module{} },
	}
}

// Configure implements core.Configurable.
func (m *Module) Configure(node *yaml.Node) error {
	if err := node.Decode(&m.config); err != nil {
		return err
	}
	if m.config.DefaultOnTimeout == "" {
		m.config.DefaultOnTimeout = string(approval.Deny)
	}
	if m.config.RemindSchedule == "" {
		m.config.RemindSchedule = "*/5 * * * *"
	}
	return nil
}

// Validate implements core.Validator.
func (m *Module) Validate() error {
	switch approval.Behavior(m.config.DefaultOnTimeout) {
	case approval.Allow, approval.Deny:
		return nil
	default:
		return fmt.Errorf("approval.broker: invalid default_on_timeout %q", m.config.DefaultOnTimeout)
	}
}

// Provision implements core.Provisioner. It builds the broker and
// registers the services other modules wire against.
func (m *Module) Provision(ctx *core.AppContext) error {
	m.channels = channel.NewRegistry()

	var audit *security.AuditLogger
	if m.config.AuditLog != "" {
		path := m.config.AuditLog
		if !filepath.IsAbs(path) {
			path = filepath.Join(ctx.DataDir, path)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return fmt.Errorf("approval.broker: audit dir: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("approval.broker: open audit log: %w", err)
		}
		m.auditFile = f
		audit = security.NewAuditLogger(security.AuditLoggerConfig{Writer: f})
	}

	var hist broker.History
	if m.config.HistoryPath != "" {
		path := m.config.HistoryPath
		if !filepath.IsAbs(path) {
			path = filepath.Join(ctx.DataDir, path)
		}
		store, err := history.Open(path)
		if err != nil {
			return err
		}
		m.historyDB = store
		hist = store
	}

	channelTimeouts := make(map[string]time.Duration, len(m.config.ChannelTimeouts))
	for name, d := range m.config.ChannelTimeouts {
		channelTimeouts[name] = time.Duration(d)
	}

	m.broker = broker.New(broker.Options{
		Classifier: risk.NewClassifier(m.config.Risk),
		Adapters:   m.channels,
		Config: broker.Config{
			Timeout:          time.Duration(m.config.Timeout),
			ChannelTimeouts:  channelTimeouts,
			DefaultOnTimeout: approval.Behavior(m.config.DefaultOnTimeout),
		},
		Logger:  ctx.Logger,
		Metrics: broker.NewMetrics(prometheus.DefaultRegisterer),
		Audit:   audit,
		History: hist,
	})

	ctx.RegisterService("approval.broker", m.broker)
	ctx.RegisterService("approval.channels", m.channels)
	ctx.RegisterService("approval.audit", audit)
	ctx.RegisterService("approval.limiter", security.NewRateLimiter(m.config.RateLimits))
	if m.historyDB != nil {
		ctx.RegisterService("approval.history", m.historyDB)
	}

	if remindAfter := time.Duration(m.config.RemindAfter); remindAfter > 0 {
		var quiet *sched.QuietHours
		if m.config.QuietHours != "" {
			q, err := sched.ParseQuietHours(m.config.QuietHours)
			if err != nil {
				return fmt.Errorf("approval.broker: %w", err)
			}
			quiet = &q
		}
		loc := time.UTC
		if m.config.Timezone != "" {
			var err error
			if loc, err = time.LoadLocation(m.config.Timezone); err != nil {
				return fmt.Errorf("approval.broker: invalid timezone %q: %w", m.config.Timezone, err)
			}
		}

		m.scheduler = sched.New(ctx.Logger)
		err := m.scheduler.Add("approval_reminder", m.config.RemindSchedule, func(jobCtx context.Context) error {
			if quiet != nil && quiet.IsQuiet(time.Now().In(loc)) {
				return nil
			}
			m.broker.RemindStale(jobCtx, remindAfter)
			return nil
		})
		if err != nil {
			return err
		}
	}

	return nil
}

// Start implements core.Starter.
func (m *Module) Start() error {
	if m.scheduler != nil {
		return m.scheduler.Start()
	}
	return nil
}

// Stop implements core.Stopper. It drains the broker so every suspended
// caller is released before the process exits.
func (m *Module) Stop(ctx context.Context) error {
	if m.scheduler != nil {
		_ = m.scheduler.Stop(ctx)
	}
	m.broker.Drain()
	if m.historyDB != nil {
		_ = m.historyDB.Close()
	}
	if m.auditFile != nil {
		_ = m.auditFile.Close()
	}
	return nil
}
