package main

import (
	"context"
	"fmt"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"

	"github.com/flemzord/toolgate/internal/core"
	"github.com/flemzord/toolgate/internal/tracing"
)

// program adapts the module app to the service manager's lifecycle.
type program struct {
	cfgPath  string
	app      *core.App
	shutdown func(context.Context) error
}

// Start implements service.Interface. Service managers require Start to
// return promptly, so module startup runs in the background.
func (p *program) Start(service.Service) error {
	app, cfg, err := loadApp(p.cfgPath)
	if err != nil {
		return err
	}
	p.app = app

	p.shutdown, err = tracing.Setup(context.Background(), tracing.Config{
		Enabled:  cfg.Tracing.Enabled,
		Endpoint: cfg.Tracing.Endpoint,
		Insecure: cfg.Tracing.Insecure,
	}, version)
	if err != nil {
		return err
	}

	go func() {
		if err := p.app.Start(); err != nil {
			fmt.Println("toolgate service start failed:", err)
		}
	}()
	return nil
}

// Stop implements service.Interface.
func (p *program) Stop(service.Service) error {
	if p.app != nil {
		p.app.Stop()
	}
	if p.shutdown != nil {
		_ = p.shutdown(context.Background())
	}
	return nil
}

func serviceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "service [install|uninstall|start|stop|run]",
		Short:     "Manage toolgate as a system service",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"install", "uninstall", "start", "stop", "run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")

			svcConfig := &service.Config{
				Name:        "toolgate",
				DisplayName: "toolgate approval broker",
				Description: "Gates agent tool calls behind human approval.",
				Arguments:   []string{"service", "run"},
			}
			if cfgPath != "" {
				svcConfig.Arguments = append(svcConfig.Arguments, "--config", cfgPath)
			}

			s, err := service.New(&program{cfgPath: cfgPath}, svcConfig)
			if err != nil {
				return fmt.Errorf("service setup: %w", err)
			}

			action := args[0]
			if action == "run" {
				return s.Run()
			}
			if err := service.Control(s, action); err != nil {
				return fmt.Errorf("service %s: %w", action, err)
			}
			fmt.Printf("service %s: done\n", action)
			return nil
		},
	}
	cmd.Flags().StringP("config", "c", "", "Path to configuration file")
	return cmd
}
